package admin

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/optimics/ga4-manager/internal/tokenfile"
)

// EditScope is the OAuth2 scope required to read and change property
// configuration.
const EditScope = "https://www.googleapis.com/auth/analytics.edit"

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer
// per Go convention "accept interfaces, return structs".
type TokenSource interface {
	Token() (string, error)
}

// StaticToken returns a TokenSource that always yields accessToken. Useful
// with `gcloud auth print-access-token` and in tests.
func StaticToken(accessToken string, logger *slog.Logger) TokenSource {
	return &tokenBridge{
		src:    oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
		logger: orDefault(logger),
	}
}

// DefaultCredentials resolves Google application default credentials
// (GOOGLE_APPLICATION_CREDENTIALS service-account file, gcloud user
// credentials, or the metadata server) for EditScope.
//
// When cachePath is set, access tokens are cached there between runs.
// ctx must outlive the TokenSource because token refresh runs under it.
func DefaultCredentials(ctx context.Context, cachePath string, logger *slog.Logger) (TokenSource, error) {
	creds, err := google.FindDefaultCredentials(ctx, EditScope)
	if err != nil {
		return nil, fmt.Errorf("admin: finding default credentials: %w", err)
	}

	logger = orDefault(logger)
	logger.Debug("admin: using application default credentials",
		slog.String("project", creds.ProjectID),
	)

	src := creds.TokenSource
	if cachePath != "" {
		src = tokenfile.NewCache(cachePath, src, map[string]string{
			"scope":   EditScope,
			"project": creds.ProjectID,
		}, logger)
	}

	return &tokenBridge{src: oauth2.ReuseTokenSource(nil, src), logger: logger}, nil
}

// tokenBridge adapts an oauth2.TokenSource to TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("admin: obtaining token: %w", err)
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}

	return logger
}
