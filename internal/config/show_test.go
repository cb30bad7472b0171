package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_Defaults(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, RenderEffective(&Resolved{Config: DefaultConfig()}, &buf))

	out := buf.String()
	assert.Contains(t, out, "# Effective configuration (defaults)")
	assert.Contains(t, out, "concurrency   = 4")
	assert.Contains(t, out, `ignore_fields = ["name", "uiRef"]`)
	assert.Contains(t, out, `api_base_url        = "https://analyticsadmin.googleapis.com/v1beta"`)
	assert.NotContains(t, out, "store_path")
	assert.NotContains(t, out, "[metrics]")
}

func TestRenderEffective_OptionalSections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source.StorePath = "/tmp/s.db"
	cfg.Metrics.Textfile = "/tmp/ga4.prom"

	var buf bytes.Buffer

	require.NoError(t, RenderEffective(&Resolved{Config: cfg, Path: "/etc/ga4.toml"}, &buf))

	out := buf.String()
	assert.Contains(t, out, "(file: /etc/ga4.toml)")
	assert.Contains(t, out, `store_path   = "/tmp/s.db"`)
	assert.Contains(t, out, `textfile = "/tmp/ga4.prom"`)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestRenderEffective_WriteError(t *testing.T) {
	assert.Error(t, RenderEffective(&Resolved{Config: DefaultConfig()}, failWriter{}))
}
