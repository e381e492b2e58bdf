package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/commentbot/internal/automation"
	"github.com/shehryarbajwa/commentbot/internal/bot"
	"github.com/shehryarbajwa/commentbot/internal/browser"
	"github.com/shehryarbajwa/commentbot/internal/config"
	"github.com/shehryarbajwa/commentbot/internal/profile"
	"github.com/shehryarbajwa/commentbot/internal/sessiondir"
)

// app holds the components shared by every command
type app struct {
	profiles *profile.Store
	sessions *sessiondir.Store
	launcher automation.Launcher
	headless func(bool) bool
	close    func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	profiles, err := profile.NewStore(cfg.ProfilesFile, logger.Named("profiles"))
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	logger.Info("✓ Profile store loaded", zap.String("path", cfg.ProfilesFile), zap.Int("profiles", len(profiles.Names())))

	sessions, err := sessiondir.NewStore(cfg.SessionRoot, nil, logger.Named("sessions"))
	if err != nil {
		return nil, err
	}
	logger.Info("✓ Session root ready", zap.String("path", sessions.Root()))

	a := &app{
		profiles: profiles,
		sessions: sessions,
		headless: browser.ResolveHeadless,
		close:    func() error { return nil },
	}

	switch cfg.Browser.Mode {
	case config.BrowserModeDocker:
		pool, err := browser.NewPool(cfg.Browser.DockerImage)
		if err != nil {
			return nil, err
		}

		logger.Info("⏳ Ensuring browser image is available...", zap.String("image", cfg.Browser.DockerImage))
		if err := pool.EnsureImage(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ensure image: %w", err)
		}

		a.launcher = &browser.ContainerLauncher{
			Pool:         pool,
			StartTimeout: cfg.Browser.StartTimeout,
			Logger:       logger.Named("browser"),
		}
		// containers have no display
		a.headless = func(bool) bool { return true }
		a.close = pool.Close
		logger.Info("✓ Docker browser launcher ready")

	default:
		a.launcher = &browser.ChromeLauncher{
			ExecPath:     cfg.Browser.ExecPath,
			StartTimeout: cfg.Browser.StartTimeout,
			Logger:       logger.Named("browser"),
		}
		logger.Info("✓ Local browser launcher ready", zap.Bool("display", browser.HasDisplay()))
	}

	return a, nil
}

// botConfig is the part of a bot's configuration that comes from settings
func botConfig(cfg config.Config) bot.Config {
	return bot.Config{
		HomeURL:  cfg.Site.HomeURL,
		LoginURL: cfg.Site.LoginURL,
		DebugDir: cfg.DebugDir,
		Timings:  bot.DefaultTimings(),
	}
}
