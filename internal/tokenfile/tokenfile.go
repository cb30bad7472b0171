// Package tokenfile caches OAuth2 access tokens on disk so consecutive CLI
// invocations reuse a still-valid token instead of minting a new one from
// application default credentials every time. Refresh tokens are never
// written; the cache only ever holds short-lived access tokens.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the cache directory.
const DirPerms = 0o700

// File is the on-disk format. Meta identifies what the token was minted
// for (scope, project); a cached token whose Meta differs from the
// caller's is ignored.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Load reads a cached token. Returns (nil, nil, nil) if the file does not
// exist.
func Load(path string) (*oauth2.Token, map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil {
		return nil, nil, fmt.Errorf("tokenfile: %s missing token field", path)
	}

	if tf.Token.AccessToken == "" {
		return nil, nil, fmt.Errorf("tokenfile: %s has empty credentials", path)
	}

	return tf.Token, tf.Meta, nil
}

// Save writes the access token to disk atomically (write-to-temp + rename)
// with 0600 permissions. The refresh token is dropped. Never logs token
// values.
func Save(path string, tok *oauth2.Token, meta map[string]string) error {
	if tok == nil {
		return errors.New("tokenfile: refusing to save nil token")
	}

	stripped := &oauth2.Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Expiry:      tok.Expiry,
	}

	data, err := json.MarshalIndent(File{Token: stripped, Meta: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Cache is an oauth2.TokenSource backed by a token file. It serves the
// cached token while it is valid and its metadata matches, and otherwise
// asks the underlying source and rewrites the file.
type Cache struct {
	path   string
	src    oauth2.TokenSource
	meta   map[string]string
	logger *slog.Logger

	mu      sync.Mutex
	current *oauth2.Token
}

// NewCache wraps src with the token file at path.
func NewCache(path string, src oauth2.TokenSource, meta map[string]string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{path: path, src: src, meta: maps.Clone(meta), logger: logger}
}

// Token implements oauth2.TokenSource.
func (c *Cache) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Valid() {
		return c.current, nil
	}

	if tok := c.loadMatching(); tok != nil {
		c.current = tok
		return tok, nil
	}

	tok, err := c.src.Token()
	if err != nil {
		return nil, err
	}

	c.current = tok

	// A cache that cannot be written only costs a token mint next time.
	if err := Save(c.path, tok, c.meta); err != nil {
		c.logger.Warn("token cache not written", slog.String("error", err.Error()))
	}

	return tok, nil
}

func (c *Cache) loadMatching() *oauth2.Token {
	tok, meta, err := Load(c.path)
	if err != nil {
		c.logger.Debug("ignoring unreadable token cache", slog.String("error", err.Error()))
		return nil
	}

	if tok == nil || !tok.Valid() || !maps.Equal(meta, c.meta) {
		return nil
	}

	c.logger.Debug("using cached access token", slog.Time("expiry", tok.Expiry))

	return tok
}
