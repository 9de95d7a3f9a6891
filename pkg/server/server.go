package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/Sahoo999/meeting-ai/pkg/auth"
	"github.com/Sahoo999/meeting-ai/pkg/billing"
	"github.com/Sahoo999/meeting-ai/pkg/config"
	"github.com/Sahoo999/meeting-ai/pkg/handlers"
	"github.com/Sahoo999/meeting-ai/pkg/meetings"
	"github.com/Sahoo999/meeting-ai/pkg/mw"
	"github.com/Sahoo999/meeting-ai/pkg/premium"
	"github.com/Sahoo999/meeting-ai/pkg/ratelimit"
	"github.com/Sahoo999/meeting-ai/pkg/realtime/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the server routes to. Billing may be nil, in
// which case the premium API is not mounted.
type Deps struct {
	Store    meetings.Store
	Usage    meetings.UsageCounter
	Platform handlers.VideoPlatform
	Billing  premium.Billing
	Pinger   handlers.Pinger
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps

	sessions *sessions.Tracker
	limiter  *ratelimit.Limiter
	draining atomic.Bool
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		deps:     deps,
		sessions: sessions.NewTracker(),
		limiter: ratelimit.New(ratelimit.Config{
			RPS:   cfg.LimitRPS,
			Burst: cfg.LimitBurst,
		}),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:   s.cfg,
		Draining: s.Draining,
		Store:    s.deps.Pinger,
		Sessions: s.sessions.Count,
	})
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.Handle("/api/webhook", mw.Deadline(s.cfg.HandlerTimeout, handlers.WebhookHandler{
		Store:        s.deps.Store,
		Platform:     s.deps.Platform,
		Sessions:     s.sessions,
		Logger:       s.logger,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
		OpenAIKey:    s.cfg.OpenAIKey,
	}))

	if s.deps.Billing != nil && s.cfg.AuthJWTSecret != "" {
		s.premiumRoutes()
	}

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) premiumRoutes() {
	svc := &premium.Service{Billing: s.deps.Billing, Usage: s.deps.Usage}
	verifier := auth.NewVerifier(s.cfg.AuthJWTSecret)
	protect := func(h http.Handler) http.Handler {
		return mw.Auth(verifier, mw.RateLimit(s.limiter, mw.Deadline(s.cfg.HandlerTimeout, h)))
	}

	s.mux.Handle("/api/premium/subscription", protect(handlers.PremiumHandler[*billing.Product]{
		Query:  svc.CurrentSubscription,
		Logger: s.logger,
	}))
	s.mux.Handle("/api/premium/products", protect(handlers.PremiumHandler[[]billing.Product]{
		Query: func(ctx context.Context, _ string) ([]billing.Product, error) {
			return svc.Products(ctx)
		},
		Logger: s.logger,
	}))
	s.mux.Handle("/api/premium/usage", protect(handlers.PremiumHandler[*premium.Usage]{
		Query:  svc.FreeUsage,
		Logger: s.logger,
	}))
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness so load balancers stop routing new events.
func (s *Server) SetDraining() {
	if s.draining.CompareAndSwap(false, true) {
		s.logger.Info("draining", "realtime_sessions", s.sessions.Count())
	}
}

func (s *Server) Draining() bool {
	return s.draining.Load()
}

// WaitSessions blocks until every realtime session has ended or ctx is done.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.sessions.Wait(ctx)
}

// CloseSessions ends every live realtime session.
func (s *Server) CloseSessions() int {
	n := s.sessions.CloseAll()
	if n > 0 {
		s.logger.Warn("closed realtime sessions", "count", n)
	}
	return n
}
