package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/commentbot/internal/api"
	"github.com/shehryarbajwa/commentbot/internal/job"
	"github.com/shehryarbajwa/commentbot/internal/logbus"
	"github.com/shehryarbajwa/commentbot/internal/ratelimit"
	"github.com/shehryarbajwa/commentbot/internal/realtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting commentbot...")

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	bus := logbus.New(logger.Named("bot"))

	base := botConfig(cfg)
	registry := job.NewRegistry(a.profiles, job.BotFactory(job.BotFactoryConfig{
		Launcher:        a.launcher,
		Sessions:        a.sessions,
		Sink:            bus,
		Logger:          logger.Named("bot"),
		HomeURL:         base.HomeURL,
		LoginURL:        base.LoginURL,
		DebugDir:        base.DebugDir,
		Timings:         base.Timings,
		ResolveHeadless: a.headless,
	}), bus, job.Options{
		MaxConcurrent:   cfg.Jobs.MaxConcurrent,
		MaxCommentCount: cfg.Jobs.MaxCommentCount,
	}, logger.Named("jobs"))
	a.sessions.SetActivityChecker(registry)
	logger.Info("✓ Job registry initialized", zap.Int("max_concurrent", cfg.Jobs.MaxConcurrent))

	limiter := ratelimit.NewLimiter(cfg.RateLimit.RequestsPerHour, cfg.RateLimit.Burst)
	ws := realtime.NewServer(bus, logger.Named("realtime"))

	handler := api.NewHandler(a.profiles, a.sessions, registry, logger.Named("api"))
	router := handler.SetupRoutes(http.HandlerFunc(ws.HandleWebSocket), limiter, cfg.RateLimit.TrustProxy)

	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     router,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("🚀 Server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := a.profiles.Watch(gctx); err != nil {
			logger.Warn("Profile file watching disabled", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("⏳ Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server forced to shutdown", zap.Error(err))
		}
		if err := registry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Jobs still running at shutdown", zap.Strings("profiles", registry.Running()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("✅ Server stopped cleanly")
	return nil
}
