package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides_Storage(t *testing.T) {
	t.Run("ARTIFICER_DATA_DIR overrides data dir", func(t *testing.T) {
		t.Setenv("ARTIFICER_DATA_DIR", "/var/lib/artificer")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/var/lib/artificer", cfg.Storage.DataDir)
		assert.Equal(t, "/var/lib/artificer/versions", cfg.Storage.VersionsDir())
	})

	t.Run("unset env leaves defaults", func(t *testing.T) {
		t.Setenv("ARTIFICER_DATA_DIR", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "data", cfg.Storage.DataDir)
	})
}

func TestEnvOverrides_Logging(t *testing.T) {
	t.Run("ARTIFICER_LOG_LEVEL enables logging", func(t *testing.T) {
		t.Setenv("ARTIFICER_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		require.False(t, cfg.Logging.Enabled)
		cfg.applyEnvOverrides()

		assert.True(t, cfg.Logging.Enabled)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestEnvOverrides_Generation(t *testing.T) {
	t.Run("ARTIFICER_MAX_JOBS parses integers", func(t *testing.T) {
		t.Setenv("ARTIFICER_MAX_JOBS", "250")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 250, cfg.Generation.MaxJobs)
	})

	t.Run("non-numeric ARTIFICER_MAX_JOBS is ignored", func(t *testing.T) {
		t.Setenv("ARTIFICER_MAX_JOBS", "lots")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 100, cfg.Generation.MaxJobs)
	})

	t.Run("ARTIFICER_RULES_PATH overrides rules file", func(t *testing.T) {
		t.Setenv("ARTIFICER_RULES_PATH", "/etc/artificer/rules.yaml")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/etc/artificer/rules.yaml", cfg.Validation.RulesPath)
	})
}
