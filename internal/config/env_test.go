package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvDesired, "/srv/ga4.yaml")
	t.Setenv(EnvStore, "/tmp/sandbox.db")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "/srv/ga4.yaml", overrides.DesiredFile)
	assert.Equal(t, "/tmp/sandbox.db", overrides.StorePath)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDesired, "")
	t.Setenv(EnvStore, "")

	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())
}
