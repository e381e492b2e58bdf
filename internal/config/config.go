package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Browser modes
const (
	BrowserModeLocal  = "local"
	BrowserModeDocker = "docker"
)

// Config holds all runtime settings
type Config struct {
	Addr            string        `yaml:"addr"`
	ProfilesFile    string        `yaml:"profiles_file"`
	SessionRoot     string        `yaml:"session_root"`
	DebugDir        string        `yaml:"debug_dir"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Browser   BrowserConfig   `yaml:"browser"`
	Site      SiteConfig      `yaml:"site"`
	Jobs      JobsConfig      `yaml:"jobs"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// BrowserConfig selects and tunes the automation engine
type BrowserConfig struct {
	Mode         string        `yaml:"mode"`
	ExecPath     string        `yaml:"exec_path"`
	DockerImage  string        `yaml:"docker_image"`
	StartTimeout time.Duration `yaml:"start_timeout"`
}

// SiteConfig holds the target site's entry points
type SiteConfig struct {
	HomeURL  string `yaml:"home_url"`
	LoginURL string `yaml:"login_url"`
}

// JobsConfig bounds job submission
type JobsConfig struct {
	MaxConcurrent   int `yaml:"max_concurrent"`
	MaxCommentCount int `yaml:"max_comment_count"`
}

// RateLimitConfig throttles job submissions per client
type RateLimitConfig struct {
	RequestsPerHour int `yaml:"requests_per_hour"`
	Burst           int `yaml:"burst"`
	// TrustProxy keys clients by X-Forwarded-For. Enable only behind a
	// reverse proxy that overwrites the header.
	TrustProxy bool `yaml:"trust_proxy"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Addr:            ":5000",
		ProfilesFile:    "profiles.json",
		SessionRoot:     "sessions",
		LogLevel:        "info",
		LogFormat:       "console",
		ShutdownTimeout: 10 * time.Second,
		Browser: BrowserConfig{
			Mode:         BrowserModeLocal,
			DockerImage:  "browserless/chrome:latest",
			StartTimeout: 60 * time.Second,
		},
		Site: SiteConfig{
			HomeURL:  "https://www.instagram.com/",
			LoginURL: "https://www.instagram.com/accounts/login/",
		},
		Jobs: JobsConfig{
			MaxConcurrent:   4,
			MaxCommentCount: 50,
		},
		RateLimit: RateLimitConfig{
			RequestsPerHour: 60,
			Burst:           10,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment (a .env file is loaded first if present).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	// Missing .env is normal
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate checks for settings the rest of the program cannot work with
func (c Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.SessionRoot == "" {
		errs = append(errs, errors.New("session_root is required"))
	}
	if c.ProfilesFile == "" {
		errs = append(errs, errors.New("profiles_file is required"))
	}
	if c.Browser.Mode != BrowserModeLocal && c.Browser.Mode != BrowserModeDocker {
		errs = append(errs, fmt.Errorf("browser.mode must be %q or %q, got %q", BrowserModeLocal, BrowserModeDocker, c.Browser.Mode))
	}
	if c.Browser.StartTimeout <= 0 {
		errs = append(errs, errors.New("browser.start_timeout must be positive"))
	}
	if c.Jobs.MaxConcurrent < 1 {
		errs = append(errs, errors.New("jobs.max_concurrent must be at least 1"))
	}
	if c.Jobs.MaxCommentCount < 1 {
		errs = append(errs, errors.New("jobs.max_comment_count must be at least 1"))
	}
	if c.RateLimit.RequestsPerHour < 1 || c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("ratelimit values must be at least 1"))
	}

	return errors.Join(errs...)
}

type envBinding struct {
	key   string
	apply func(string) error
}

func applyEnv(cfg *Config) error {
	bindings := []envBinding{
		{"COMMENTBOT_ADDR", setString(&cfg.Addr)},
		{"COMMENTBOT_PROFILES_FILE", setString(&cfg.ProfilesFile)},
		{"COMMENTBOT_SESSION_ROOT", setString(&cfg.SessionRoot)},
		{"COMMENTBOT_DEBUG_DIR", setString(&cfg.DebugDir)},
		{"COMMENTBOT_LOG_LEVEL", setString(&cfg.LogLevel)},
		{"COMMENTBOT_LOG_FORMAT", setString(&cfg.LogFormat)},
		{"COMMENTBOT_SHUTDOWN_TIMEOUT", setDuration(&cfg.ShutdownTimeout)},
		{"COMMENTBOT_BROWSER_MODE", setString(&cfg.Browser.Mode)},
		{"COMMENTBOT_BROWSER_EXEC_PATH", setString(&cfg.Browser.ExecPath)},
		{"COMMENTBOT_BROWSER_DOCKER_IMAGE", setString(&cfg.Browser.DockerImage)},
		{"COMMENTBOT_BROWSER_START_TIMEOUT", setDuration(&cfg.Browser.StartTimeout)},
		{"COMMENTBOT_SITE_HOME_URL", setString(&cfg.Site.HomeURL)},
		{"COMMENTBOT_SITE_LOGIN_URL", setString(&cfg.Site.LoginURL)},
		{"COMMENTBOT_JOBS_MAX_CONCURRENT", setInt(&cfg.Jobs.MaxConcurrent)},
		{"COMMENTBOT_JOBS_MAX_COMMENT_COUNT", setInt(&cfg.Jobs.MaxCommentCount)},
		{"COMMENTBOT_RATELIMIT_REQUESTS_PER_HOUR", setInt(&cfg.RateLimit.RequestsPerHour)},
		{"COMMENTBOT_RATELIMIT_BURST", setInt(&cfg.RateLimit.Burst)},
		{"COMMENTBOT_RATELIMIT_TRUST_PROXY", setBool(&cfg.RateLimit.TrustProxy)},
	}

	for _, b := range bindings {
		value, ok := os.LookupEnv(b.key)
		if !ok || value == "" {
			continue
		}
		if err := b.apply(value); err != nil {
			return fmt.Errorf("invalid %s: %w", b.key, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
