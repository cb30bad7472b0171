package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "GA4_MANAGER_CONFIG"
	EnvDesired = "GA4_MANAGER_DESIRED"
	EnvStore   = "GA4_MANAGER_STORE"
	// EnvToken holds a static OAuth2 access token. It is read by the CLI
	// when building credentials and never stored in Config.
	EnvToken = "GA4_MANAGER_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // GA4_MANAGER_CONFIG: override config file path
	DesiredFile string // GA4_MANAGER_DESIRED: desired-state document
	StorePath   string // GA4_MANAGER_STORE: sqlite sandbox path
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		DesiredFile: os.Getenv(EnvDesired),
		StorePath:   os.Getenv(EnvStore),
	}
}
