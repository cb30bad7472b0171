package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimics/ga4-manager/internal/config"
	"github.com/optimics/ga4-manager/internal/reconcile"
	"github.com/optimics/ga4-manager/internal/store"
)

const blogDocument = `
properties:
  - id: "1"
    displayName: Blog
    customDimensions:
      - author
      - parameterName: category
        scope: EVENT
    conversionEvents:
      - purchase
`

// sandboxArgs returns the persistent flags pointing a command at a fresh
// sandbox and desired-state document, with no config file.
func sandboxArgs(t *testing.T) []string {
	t.Helper()
	clearEnv(t)

	dir := t.TempDir()
	doc := filepath.Join(dir, "ga4.yaml")
	require.NoError(t, os.WriteFile(doc, []byte(blogDocument), 0o600))

	return []string{
		"--config", filepath.Join(dir, "missing.toml"),
		"--store", filepath.Join(dir, "sandbox", "ga4.db"),
		"--desired", doc,
		"--quiet",
	}
}

func execute(t *testing.T, base []string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(append([]string{}, base...), args...))

	err := cmd.ExecuteContext(t.Context())

	return out.String(), err
}

func TestCLI_PlanApplyConverges(t *testing.T) {
	base := sandboxArgs(t)

	_, err := execute(t, base, "store", "seed", "--properties-only")
	require.NoError(t, err)

	out, err := execute(t, base, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "* create properties/1/customDimensions/author\n")
	assert.Contains(t, out, "* create properties/1/customDimensions/category\n")
	assert.Contains(t, out, "* create properties/1/conversionEvents/purchase\n")
	assert.Contains(t, out, "3 to create, 0 to modify, 0 to dispose")

	out, err = execute(t, base, "apply")
	require.NoError(t, err)
	assert.Contains(t, out, "Plan finished successfully")
	assert.Contains(t, out, "* Success: 3")

	out, err = execute(t, base, "plan")
	require.NoError(t, err)
	assert.Equal(t, " Nothing to do\n", out)

	out, err = execute(t, base, "store", "show", "--journal")
	require.NoError(t, err)
	assert.Contains(t, out, "create")
	assert.Contains(t, out, "properties/1/customDimensions/")
}

func TestCLI_PlanJSON(t *testing.T) {
	base := sandboxArgs(t)

	_, err := execute(t, base, "store", "seed", "--properties-only")
	require.NoError(t, err)

	out, err := execute(t, base, "--json", "plan")
	require.NoError(t, err)

	var got planOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.NotEmpty(t, got.RunID)
	assert.Equal(t, []string{"properties/1/conversionEvents", "properties/1/customDimensions"}, got.Scopes)
	require.Len(t, got.Operations, 3)
	assert.Equal(t, "properties/1/conversionEvents/purchase", got.Operations[0].ID)
	assert.Equal(t, "create", got.Operations[0].Mode)
	assert.Equal(t, "conversionEvent", got.Operations[0].Kind)
}

func TestCLI_ApplyJSONReportsCounts(t *testing.T) {
	base := sandboxArgs(t)

	_, err := execute(t, base, "store", "seed")
	require.NoError(t, err)

	out, err := execute(t, base, "--json", "apply")
	require.NoError(t, err)

	var got resultOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Empty(t, got.Operations)
	assert.Equal(t, 0, got.Failure)
	assert.Equal(t, 3, got.NoOps)
}

func TestCLI_PlanWithoutDesiredDocument(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	_, err := execute(t, []string{
		"--config", filepath.Join(dir, "missing.toml"),
		"--store", filepath.Join(dir, "ga4.db"),
	}, "plan")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no desired-state document")
}

// failingTables rejects every create with a permanent error.
func failingTables() reconcile.TableResolver {
	fail := func(context.Context, *reconcile.Entity) (*reconcile.Entity, error) {
		return nil, errors.New("permission denied")
	}

	tables := reconcile.TableResolver{}
	for _, k := range []reconcile.Kind{
		reconcile.KindCustomDimension, reconcile.KindCustomMetric, reconcile.KindConversionEvent,
	} {
		tables[k] = reconcile.OperationTable{Create: fail}
	}

	return tables
}

func TestRunner_FailedOperationsReturnErrRunFailed(t *testing.T) {
	clearEnv(t)

	ctx := t.Context()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	s, err := store.Open(ctx, filepath.Join(dir, "ga4.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.PutProperty(ctx, "properties/1", "Blog"))

	doc := filepath.Join(dir, "ga4.yaml")
	require.NoError(t, os.WriteFile(doc, []byte(blogDocument), 0o600))

	cfg := &config.Resolved{Config: config.DefaultConfig()}
	cfg.Source.DesiredFile = doc
	cfg.Metrics.Textfile = filepath.Join(dir, "ga4.prom")

	var out bytes.Buffer

	r := &runner{
		flags:  CLIFlags{Quiet: true},
		logger: logger,
		out:    &out,
		newTarget: func(context.Context, *config.Resolved, *slog.Logger) (*Target, error) {
			return &Target{Observed: s, Resolver: failingTables(), Name: "fake"}, nil
		},
	}

	res, err := r.run(ctx, cfg, true)
	require.ErrorIs(t, err, errRunFailed)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.Failure)
	assert.Equal(t, 0, res.Success)
	assert.Contains(t, out.String(), "Plan finished failed after")

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `ga4_manager_runs_total{result="failure"} 1`)
}

func TestRunner_PlanOnlyDoesNotMutate(t *testing.T) {
	clearEnv(t)

	ctx := t.Context()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	s, err := store.Open(ctx, filepath.Join(dir, "ga4.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.PutProperty(ctx, "properties/1", "Blog"))

	doc := filepath.Join(dir, "ga4.yaml")
	require.NoError(t, os.WriteFile(doc, []byte(blogDocument), 0o600))

	cfg := &config.Resolved{Config: config.DefaultConfig()}
	cfg.Source.DesiredFile = doc

	r := &runner{
		flags:  CLIFlags{Quiet: true},
		logger: logger,
		out:    io.Discard,
		newTarget: func(context.Context, *config.Resolved, *slog.Logger) (*Target, error) {
			return &Target{Observed: s, Resolver: s, Name: "sandbox"}, nil
		},
	}

	res, err := r.run(ctx, cfg, false)
	require.NoError(t, err)
	assert.Nil(t, res)

	muts, err := s.Mutations(ctx)
	require.NoError(t, err)
	assert.Empty(t, muts)
}
