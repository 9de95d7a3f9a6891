package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Sahoo999/meeting-ai/pkg/apierror"
	"github.com/Sahoo999/meeting-ai/pkg/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config   config.Config
	Draining func() bool
	// Store is pinged when set.
	Store Pinger
	// Sessions reports live realtime sessions.
	Sessions func() int
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK               bool     `json:"ok"`
		Draining         bool     `json:"draining"`
		Store            string   `json:"store"`
		PremiumEnabled   bool     `json:"premium_enabled"`
		RealtimeSessions int      `json:"realtime_sessions"`
		Issues           []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Config.StreamAPIKey == "" || h.Config.StreamAPISecret == "" {
		issues = append(issues, "stream credentials not configured")
	}
	if h.Config.MaxBodyBytes <= 0 {
		issues = append(issues, "max_body_bytes must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 || h.Config.HandlerTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}
	if h.Config.OpenAIKey() == "" {
		issues = append(issues, "openai api key not configured")
	}
	if h.Config.PremiumEnabled() && h.Config.AuthJWTSecret == "" {
		issues = append(issues, "premium enabled but auth jwt secret missing")
	}
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.Store.Ping(ctx)
		cancel()
		if err != nil {
			issues = append(issues, "store unreachable")
		}
	}

	draining := h.Draining != nil && h.Draining()
	if draining {
		issues = append(issues, "draining")
	}
	live := 0
	if h.Sessions != nil {
		live = h.Sessions()
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	apierror.WriteJSON(w, status, readyResp{
		OK:               ok,
		Draining:         draining,
		Store:            string(h.Config.Store),
		PremiumEnabled:   h.Config.PremiumEnabled(),
		RealtimeSessions: live,
		Issues:           issues,
	})
}

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	apierror.Write(w, apierror.NotFound("not found"))
}
