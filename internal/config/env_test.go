package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/env/config.toml")
	t.Setenv(EnvStore, "env-store")
	t.Setenv(EnvRoot, "/env/root")

	got := ReadEnvOverrides()

	assert.Equal(t, EnvOverrides{
		ConfigPath: "/env/config.toml",
		Store:      "env-store",
		Root:       "/env/root",
	}, got)
}

func TestApplyEnvOverridesOnlySetsNonEmpty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Remote.Store = "configured-store"
	cfg.Library.Root = "/configured/root"

	ApplyEnvOverrides(cfg, EnvOverrides{})

	assert.Equal(t, "configured-store", cfg.Remote.Store)
	assert.Equal(t, "/configured/root", cfg.Library.Root)

	ApplyEnvOverrides(cfg, EnvOverrides{Store: "env-store"})
	assert.Equal(t, "env-store", cfg.Remote.Store)
	assert.Equal(t, "/configured/root", cfg.Library.Root)
}
