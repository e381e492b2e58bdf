package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	chdir(t, t.TempDir())

	path := filepath.Join(t.TempDir(), "commentbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
session_root: /var/lib/commentbot
browser:
  mode: docker
  start_timeout: 2m
jobs:
  max_concurrent: 2
`), 0o644))

	t.Setenv("COMMENTBOT_ADDR", ":9100")
	t.Setenv("COMMENTBOT_JOBS_MAX_COMMENT_COUNT", "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, "/var/lib/commentbot", cfg.SessionRoot)
	assert.Equal(t, BrowserModeDocker, cfg.Browser.Mode)
	assert.Equal(t, 2*time.Minute, cfg.Browser.StartTimeout)
	assert.Equal(t, 2, cfg.Jobs.MaxConcurrent)
	assert.Equal(t, 5, cfg.Jobs.MaxCommentCount)
	assert.Equal(t, "profiles.json", cfg.ProfilesFile)
}

func TestTrustProxyDefaultsOff(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.RateLimit.TrustProxy)

	t.Setenv("COMMENTBOT_RATELIMIT_TRUST_PROXY", "true")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.RateLimit.TrustProxy)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("COMMENTBOT_JOBS_MAX_CONCURRENT", "many")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMMENTBOT_JOBS_MAX_CONCURRENT")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Browser.Mode = "remote"
	cfg.Jobs.MaxConcurrent = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.mode")
	assert.Contains(t, err.Error(), "jobs.max_concurrent")
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
