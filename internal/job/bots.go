package job

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/commentbot/internal/automation"
	"github.com/shehryarbajwa/commentbot/internal/bot"
	"github.com/shehryarbajwa/commentbot/internal/logbus"
	"github.com/shehryarbajwa/commentbot/pkg/models"
)

// SessionDirs hands out the on-disk session directory of a profile
type SessionDirs interface {
	Ensure(profile string) (string, error)
}

// BotFactoryConfig is what every bot built by BotFactory shares
type BotFactoryConfig struct {
	Launcher automation.Launcher
	Sessions SessionDirs
	Sink     logbus.Sink
	Logger   *zap.Logger
	HomeURL  string
	LoginURL string
	DebugDir string
	Timings  bot.Timings

	// ResolveHeadless applies platform policy to the requested mode
	ResolveHeadless func(requested bool) bool
}

// BotFactory builds real bots bound to the profile's session directory
func BotFactory(cfg BotFactoryConfig) RunnerFactory {
	return func(spec Spec, onState func(bot.State)) (Runner, error) {
		dir, err := cfg.Sessions.Ensure(spec.Profile.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare session directory: %w", err)
		}

		headless := spec.Headless
		if cfg.ResolveHeadless != nil {
			headless = cfg.ResolveHeadless(headless)
		}

		logger := cfg.Logger
		if logger == nil {
			logger = zap.NewNop()
		}

		return bot.New(bot.Config{
			Profile: spec.Profile.Name,
			Credentials: models.Credentials{
				Username: spec.Profile.Username,
				Password: spec.Profile.Password,
			},
			ProfileDir: dir,
			Headless:   headless,
			HomeURL:    cfg.HomeURL,
			LoginURL:   cfg.LoginURL,
			DebugDir:   cfg.DebugDir,
			Timings:    cfg.Timings,
			OnState:    onState,
		}, cfg.Launcher, cfg.Sink, logger.With(zap.String("run_id", spec.RunID))), nil
	}
}
