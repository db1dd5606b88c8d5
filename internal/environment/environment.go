// Package environment reads runtime environment configuration.
package environment

import (
	"os"
)

var (
	posthogAPIKeyDefault = "REPL_POSTHOG_API_KEY" // #nosec G101 -- build-time placeholder replaced in release builds.
	appVersionDefault    = "REPL_VERSION"
	helpURLDefault       = "REPL_HELP_URL"
)

func PosthogAPIKey() string {
	key, present := os.LookupEnv("POSTHOG_API_KEY")
	if present {
		return key
	}

	return posthogAPIKeyDefault
}

// TelemetryConfigured reports whether a real PostHog key is available.
func TelemetryConfigured() bool {
	key := PosthogAPIKey()
	return key != "" && key != "REPL_POSTHOG_API_KEY"
}

func AppVersion() string {
	return appVersionDefault
}

func HelpURL() string {
	return helpURLDefault
}

// MachineIDOverride returns the MACHINE_ID env value used to pin telemetry identity in CI.
func MachineIDOverride() (string, bool) {
	return os.LookupEnv("MACHINE_ID")
}
