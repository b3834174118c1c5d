package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigDirRespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")

	assert.Equal(t, filepath.Join("/xdg/config", appName), linuxConfigDir("/home/user"))
}

func TestDefaultConfigDirFallsBackWithoutXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")

	assert.Equal(t, filepath.Join("/home/user", ".config", appName), linuxConfigDir("/home/user"))
}

func TestResolveConfigPathPrecedence(t *testing.T) {
	env := EnvOverrides{ConfigPath: "/env/config.toml"}

	assert.Equal(t, "/cli/config.toml", ResolveConfigPath(env, "/cli/config.toml"))
	assert.Equal(t, "/env/config.toml", ResolveConfigPath(env, ""))
	assert.Equal(t, DefaultConfigPath(), ResolveConfigPath(EnvOverrides{}, ""))
}

func TestDefaultConfigPathJoinsDirAndFileName(t *testing.T) {
	assert.Equal(t, filepath.Join(DefaultConfigDir(), configFileName), DefaultConfigPath())
}
