package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosthogAPIKey(t *testing.T) {
	t.Run("environment variable set", func(t *testing.T) {
		t.Setenv("POSTHOG_API_KEY", "test_posthog_api_key")
		assert.Equal(t, "test_posthog_api_key", PosthogAPIKey())
		assert.True(t, TelemetryConfigured())
	})

	t.Run("placeholder is not a configured key", func(t *testing.T) {
		t.Setenv("POSTHOG_API_KEY", "REPL_POSTHOG_API_KEY")
		assert.False(t, TelemetryConfigured())
	})

	t.Run("empty key is not configured", func(t *testing.T) {
		t.Setenv("POSTHOG_API_KEY", "")
		assert.False(t, TelemetryConfigured())
	})
}

func TestAppVersion(t *testing.T) {
	assert.Equal(t, "REPL_VERSION", AppVersion())
}

func TestHelpURL(t *testing.T) {
	assert.Equal(t, "REPL_HELP_URL", HelpURL())
}

func TestMachineIDOverride(t *testing.T) {
	t.Setenv("MACHINE_ID", "abc")
	value, ok := MachineIDOverride()
	assert.True(t, ok)
	assert.Equal(t, "abc", value)
}
