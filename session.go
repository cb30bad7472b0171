package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/optimics/ga4-manager/internal/admin"
	"github.com/optimics/ga4-manager/internal/config"
	"github.com/optimics/ga4-manager/internal/reconcile"
	"github.com/optimics/ga4-manager/internal/store"
)

// Target is the remote side of a run: where observed state is read and
// where mutations go. It is either the Admin API or the SQLite sandbox.
type Target struct {
	Observed reconcile.ObservedReader
	Resolver reconcile.Resolver
	// Name describes the target for status output.
	Name  string
	close func() error
}

// Close releases the target's resources.
func (t *Target) Close() error {
	if t.close == nil {
		return nil
	}

	return t.close()
}

// NewTarget opens the sandbox when a store path is configured, and an
// authenticated Admin API client otherwise.
func NewTarget(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*Target, error) {
	if cfg.Source.StorePath != "" {
		if err := ensureParentDir(cfg.Source.StorePath); err != nil {
			return nil, err
		}

		s, err := store.Open(ctx, cfg.Source.StorePath, logger)
		if err != nil {
			return nil, err
		}

		return &Target{
			Observed: s,
			Resolver: s,
			Name:     "sandbox " + cfg.Source.StorePath,
			close:    s.Close,
		}, nil
	}

	token, err := newTokenSource(ctx, logger)
	if err != nil {
		return nil, err
	}

	client := admin.NewClient(
		cfg.Network.APIBaseURL,
		newHTTPClient(&cfg.Network),
		token,
		admin.NewLimiter(cfg.Network.RequestsPerSecond),
		logger,
		cfg.Network.UserAgent,
	)

	return &Target{
		Observed: client,
		Resolver: client,
		Name:     cfg.Network.APIBaseURL,
	}, nil
}

// newTokenSource prefers a static token from the environment and falls
// back to application default credentials.
func newTokenSource(ctx context.Context, logger *slog.Logger) (admin.TokenSource, error) {
	if tok := os.Getenv(config.EnvToken); tok != "" {
		logger.Debug("using access token from environment", slog.String("var", config.EnvToken))
		return admin.StaticToken(tok, logger), nil
	}

	ts, err := admin.DefaultCredentials(ctx, config.DefaultTokenCachePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("no credentials: set %s or configure application default credentials: %w",
			config.EnvToken, err)
	}

	return ts, nil
}

// newHTTPClient applies the configured timeouts: connectTimeout bounds the
// dial, dataTimeout the whole request.
func newHTTPClient(n *config.NetworkConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: n.ConnectTimeoutDuration()}).DialContext
	transport.TLSHandshakeTimeout = n.ConnectTimeoutDuration()

	return &http.Client{
		Transport: transport,
		Timeout:   n.DataTimeoutDuration(),
	}
}

// newEngine builds a reconcile engine from the engine section. A
// configured max_retries of 0 disables retries.
func newEngine(cfg *config.Resolved, logger *slog.Logger) *reconcile.Engine {
	maxRetries := cfg.Engine.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}

	return reconcile.NewEngine(reconcile.EngineConfig{
		Executor: reconcile.ExecutorConfig{
			Concurrency:  cfg.Engine.Concurrency,
			MaxRetries:   maxRetries,
			RetryBackoff: cfg.Engine.RetryBackoffDuration(),
		},
		IgnoreFields: cfg.Engine.IgnoreFields,
	}, logger)
}

// ensureParentDir creates the directory that will hold path.
func ensureParentDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), pidDirPermissions); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	return nil
}
