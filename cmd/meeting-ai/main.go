package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sahoo999/meeting-ai/internal/dotenv"
	"github.com/Sahoo999/meeting-ai/pkg/billing"
	"github.com/Sahoo999/meeting-ai/pkg/config"
	"github.com/Sahoo999/meeting-ai/pkg/handlers"
	"github.com/Sahoo999/meeting-ai/pkg/logger"
	"github.com/Sahoo999/meeting-ai/pkg/server"
	"github.com/Sahoo999/meeting-ai/pkg/store/memory"
	"github.com/Sahoo999/meeting-ai/pkg/store/postgres"
	"github.com/Sahoo999/meeting-ai/pkg/stream"
)

type appDeps struct {
	loadConfig   func() (config.Config, error)
	newServer    func(context.Context, config.Config, *slog.Logger) (*server.Server, func(), error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultAppDeps() appDeps {
	return appDeps{
		loadConfig: config.LoadFromEnv,
		newServer:  buildServer,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildServer wires the store, Stream client, and optional billing into a
// server. The returned cleanup releases the store.
func buildServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*server.Server, func(), error) {
	deps := server.Deps{}
	cleanup := func() {}

	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.MigrateOnStart {
			if err := pg.Migrate(ctx, logger); err != nil {
				pg.Close()
				return nil, nil, err
			}
		}
		deps.Store, deps.Usage, deps.Pinger = pg, pg, pg
		cleanup = pg.Close
	default:
		mem := memory.New()
		deps.Store, deps.Usage = mem, mem
		logger.Warn("using in-memory store; meetings are lost on restart")
	}

	sc, err := stream.New(stream.Options{
		APIKey:             cfg.StreamAPIKey,
		APISecret:          cfg.StreamAPISecret,
		BaseURL:            cfg.StreamBaseURL,
		Logger:             logger,
		Model:              cfg.RealtimeModel,
		HandshakeTimeout:   cfg.RealtimeHandshakeTimeout,
		MaxSessionDuration: cfg.RealtimeMaxSessionDuration,
		TokenTTL:           cfg.RealtimeTokenTTL,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Platform = handlers.StreamPlatform{Client: sc}

	if cfg.PremiumEnabled() {
		bc, err := billing.New(billing.Options{SecretKey: cfg.StripeSecretKey})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Billing = bc
	}

	return server.New(cfg, logger, deps), cleanup, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServer(ctx context.Context, cfg config.Config, logger *slog.Logger, deps appDeps) error {
	if deps.newServer == nil {
		return errors.New("missing newServer dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	srv, cleanup, err := deps.newServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer cleanup()

	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting meeting-ai",
		"addr", cfg.Addr,
		"store", string(cfg.Store),
		"premium", cfg.PremiumEnabled(),
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context cancelled")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	srv.SetDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !srv.WaitSessions(waitCtx) {
		srv.CloseSessions()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("meeting-ai stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps appDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	if deps.loadConfig == nil {
		fmt.Fprintln(stderr, "meeting-ai: missing loadConfig dependency")
		return 1
	}

	if err := dotenv.LoadFiles(".env.local", ".env"); err != nil {
		fmt.Fprintf(stderr, "meeting-ai: %v\n", err)
		return 1
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "meeting-ai: load config: %v\n", err)
		return 1
	}

	log, closeLog := logger.New(logger.Options{
		Level:  cfg.LogLevel,
		JSON:   cfg.IsProduction(),
		File:   cfg.LogFile,
		Stdout: stderr,
	})
	defer closeLog()
	slog.SetDefault(log)

	if err := runServer(ctx, cfg, log, deps); err != nil {
		log.Error("exiting", "error", err)
		fmt.Fprintf(stderr, "meeting-ai: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultAppDeps()))
}
