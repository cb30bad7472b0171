// Mints an Admin API access token from application default credentials
// and caches it for the live E2E tests.
//
// Usage: go run ./cmd/integration-bootstrap [--out .testdata/token.json]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/optimics/ga4-manager/internal/admin"
)

func main() {
	out := flag.String("out", ".testdata/token.json", "token cache file the E2E suite reads")
	flag.Parse()

	ctx := context.Background()
	logger := slog.Default()

	ts, err := admin.DefaultCredentials(ctx, *out, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}

	if _, err := ts.Token(); err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Access token cached in %s.\n", *out)
}
