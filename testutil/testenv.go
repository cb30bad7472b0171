// Package testutil provides shared environment helpers for the E2E suite
// and the integration bootstrap.
package testutil

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AllowedPropertiesEnv lists the GA4 properties live tests may touch.
const AllowedPropertiesEnv = "GA4_MANAGER_ALLOWED_TEST_PROPERTIES"

// appEnvVars are the variables that could point a test run at production
// configuration or credentials.
var appEnvVars = []string{
	"GA4_MANAGER_CONFIG",
	"GA4_MANAGER_DESIRED",
	"GA4_MANAGER_STORE",
	"GA4_MANAGER_TOKEN",
}

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// ValidateAllowlist returns an error unless the property named by
// propertyEnvVar is listed in GA4_MANAGER_ALLOWED_TEST_PROPERTIES. Live
// tests mutate the property, so a typo must never reach a real one.
func ValidateAllowlist(propertyEnvVar string) (string, error) {
	allowlist := os.Getenv(AllowedPropertiesEnv)
	if allowlist == "" {
		return "", fmt.Errorf("%s not set (example: %s=123456789)", AllowedPropertiesEnv, AllowedPropertiesEnv)
	}

	property := os.Getenv(propertyEnvVar)
	if property == "" {
		return "", fmt.Errorf("%s not set", propertyEnvVar)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == property {
			return property, nil
		}
	}

	return "", fmt.Errorf("%s=%q is not in %s=%q", propertyEnvVar, property, AllowedPropertiesEnv, allowlist)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// Isolate points HOME and the XDG directories below tempRoot and clears
// the application's environment variables, then verifies nothing still
// resolves outside tempRoot.
func Isolate(tempRoot string) error {
	for _, v := range appEnvVars {
		os.Unsetenv(v)
	}

	dirs := map[string]string{
		"HOME":            filepath.Join(tempRoot, "home"),
		"XDG_CONFIG_HOME": filepath.Join(tempRoot, "config"),
		"XDG_DATA_HOME":   filepath.Join(tempRoot, "data"),
		"XDG_CACHE_HOME":  filepath.Join(tempRoot, "cache"),
	}

	for name, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}

		os.Setenv(name, dir)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home: %w", err)
	}

	if !strings.HasPrefix(home, tempRoot) {
		return errors.New("UserHomeDir() returns " + home + " (not under temp)")
	}

	return nil
}
