package main

import (
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimics/ga4-manager/internal/admin"
	"github.com/optimics/ga4-manager/internal/config"
	"github.com/optimics/ga4-manager/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewTokenSource_EnvToken(t *testing.T) {
	t.Setenv(config.EnvToken, "ya29.test")

	ts, err := newTokenSource(t.Context(), discardLogger())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "ya29.test", tok)
}

func TestNewHTTPClient_Timeouts(t *testing.T) {
	n := config.DefaultConfig().Network
	n.ConnectTimeout = "3s"
	n.DataTimeout = "45s"

	client := newHTTPClient(&n)
	assert.Equal(t, 45*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, transport.TLSHandshakeTimeout)
	assert.NotSame(t, http.DefaultTransport, transport)
}

func TestNewTarget_Sandbox(t *testing.T) {
	cfg := &config.Resolved{Config: config.DefaultConfig()}
	cfg.Source.StorePath = filepath.Join(t.TempDir(), "nested", "ga4.db")

	target, err := NewTarget(t.Context(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, target.Close()) })

	_, ok := target.Observed.(*store.Store)
	assert.True(t, ok)
	assert.Contains(t, target.Name, "sandbox")
}

func TestNewTarget_AdminAPI(t *testing.T) {
	t.Setenv(config.EnvToken, "ya29.test")

	cfg := &config.Resolved{Config: config.DefaultConfig()}

	target, err := NewTarget(t.Context(), cfg, discardLogger())
	require.NoError(t, err)

	_, ok := target.Resolver.(*admin.Client)
	assert.True(t, ok)
	assert.Equal(t, cfg.Network.APIBaseURL, target.Name)
	assert.NoError(t, target.Close())
}

func TestNewEngine_Builds(t *testing.T) {
	cfg := &config.Resolved{Config: config.DefaultConfig()}
	cfg.Engine.MaxRetries = 0

	assert.NotNil(t, newEngine(cfg, discardLogger()))
}
