package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimics/ga4-manager/internal/config"
)

// clearEnv keeps the developer's environment out of config resolution.
func clearEnv(t *testing.T) {
	t.Helper()

	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvDesired, "")
	t.Setenv(config.EnvStore, "")
	t.Setenv(config.EnvToken, "")
}

func resolvedWithLogging(level, format string) *config.Resolved {
	cfg := config.DefaultConfig()
	cfg.Logging.LogLevel = level
	cfg.Logging.LogFormat = format

	return &config.Resolved{Config: cfg}
}

// --- buildLogger tests ---

func TestBuildLogger_DefaultsToInfo(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{})

	ctx := context.Background()
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
}

func TestBuildLogger_ConfigLevel(t *testing.T) {
	tests := []struct {
		level   string
		enabled slog.Level
		blocked slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := buildLogger(resolvedWithLogging(tt.level, "text"), CLIFlags{})

			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tt.enabled))
			assert.False(t, logger.Enabled(ctx, tt.blocked))
		})
	}
}

func TestBuildLogger_FlagsOverrideConfig(t *testing.T) {
	ctx := context.Background()

	verbose := buildLogger(resolvedWithLogging("error", "text"), CLIFlags{Verbose: true})
	assert.True(t, verbose.Enabled(ctx, slog.LevelDebug))

	quiet := buildLogger(resolvedWithLogging("debug", "text"), CLIFlags{Quiet: true})
	assert.False(t, quiet.Enabled(ctx, slog.LevelWarn))
	assert.True(t, quiet.Enabled(ctx, slog.LevelError))
}

func TestBuildLogger_JSONFormat(t *testing.T) {
	logger := buildLogger(resolvedWithLogging("info", "json"), CLIFlags{})

	_, ok := logger.Handler().(*slog.JSONHandler)
	assert.True(t, ok, "log_format json should select the JSON handler")

	logger = buildLogger(resolvedWithLogging("info", "text"), CLIFlags{})

	_, ok = logger.Handler().(*slog.TextHandler)
	assert.True(t, ok)
}

// --- newRootCmd tests ---

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"plan", "apply", "watch", "trigger", "store", "config"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "desired", "store", "concurrency", "json", "verbose", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "expected persistent flag %q not found", name)
	}
}

func TestNewRootCmd_VerboseQuietExclusive(t *testing.T) {
	cmd := newRootCmd()
	// trigger skips config loading, so only the flag check can fail here.
	cmd.SetArgs([]string{"--verbose", "--quiet", "trigger"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestNewRootCmd_TriggerSkipsConfig(t *testing.T) {
	clearEnv(t)

	// A config file that fails validation: commands that load config must
	// reject it, trigger must not even read it.
	bad := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[engine]\nconcurrency = -1\n"), 0o600))

	cmd := newRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("config", bad))

	trigger, _, err := cmd.Find([]string{"trigger"})
	require.NoError(t, err)
	trigger.SetContext(context.Background())
	require.NoError(t, cmd.PersistentPreRunE(trigger, nil))

	cc := mustCLIContext(trigger.Context())
	assert.Nil(t, cc.Cfg)
	assert.NotNil(t, cc.Logger)

	plan, _, err := cmd.Find([]string{"plan"})
	require.NoError(t, err)
	plan.SetContext(context.Background())
	assert.Error(t, cmd.PersistentPreRunE(plan, nil))
}

func TestMustCLIContext_PanicsWhenMissing(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

// --- loadConfig tests ---

func TestLoadConfig_FileAndOverrides(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
[engine]
concurrency = 4

[source]
desired_file = "from-file.yaml"
`), 0o600))

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgFile, "--desired", "from-flag.yaml"}))

	flags := CLIFlags{ConfigPath: cfgFile, DesiredFile: "from-flag.yaml"}

	resolved, err := loadConfig(cmd, flags)
	require.NoError(t, err)

	assert.Equal(t, cfgFile, resolved.Path)
	assert.Equal(t, "from-flag.yaml", resolved.Source.DesiredFile)
	// --concurrency was not given, so the file value stands.
	assert.Equal(t, 4, resolved.Engine.Concurrency)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	clearEnv(t)

	cfgFile := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("[source]\nstore_path = \"file.db\"\n"), 0o600))
	t.Setenv(config.EnvStore, "env.db")

	cmd := newRootCmd()

	resolved, err := loadConfig(cmd, CLIFlags{ConfigPath: cfgFile})
	require.NoError(t, err)
	assert.Equal(t, "env.db", resolved.Source.StorePath)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cmd := newRootCmd()

	resolved, err := loadConfig(cmd, CLIFlags{ConfigPath: filepath.Join(t.TempDir(), "none.toml")})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Engine, resolved.Engine)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	cfgFile := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("[engine\n"), 0o600))

	_, err := loadConfig(newRootCmd(), CLIFlags{ConfigPath: cfgFile})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}
