package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/meza/minecraft-modpack-launcher/internal/environment"
	"github.com/posthog/posthog-go"
	"github.com/stretchr/testify/assert"
)

type stubClient struct {
	enqueued   []posthog.Message
	enqueueErr error
	closeErr   error
	closeDelay time.Duration
	closeCount int
}

func (client *stubClient) Enqueue(msg posthog.Message) error {
	client.enqueued = append(client.enqueued, msg)
	return client.enqueueErr
}

func (client *stubClient) Close() error {
	client.closeCount++
	if client.closeDelay > 0 {
		time.Sleep(client.closeDelay)
	}
	return client.closeErr
}

type recordingLogger struct {
	messages []string
}

func (logger *recordingLogger) Debugf(format string, args ...interface{}) {
	logger.messages = append(logger.messages, fmt.Sprintf(format, args...))
}

type stepFailure struct{}

func (stepFailure) Error() string    { return "runtime failed at /home/someone" }
func (stepFailure) Category() string { return "runtime" }

func resetTelemetryState(tb testing.TB) {
	tb.Helper()
	previousProvider := machineIDProvider
	previousBuilder := clientBuilder
	Reset()
	tb.Cleanup(func() {
		Reset()
		machineIDProvider = previousProvider
		clientBuilder = previousBuilder
	})
}

func initWithClient(t *testing.T, client Client, machineID string, logger debugLogger) {
	t.Helper()
	t.Setenv(disableEnvVar, "")
	t.Setenv("POSTHOG_API_KEY", "test-key")
	t.Setenv("MACHINE_ID", machineID)
	clientBuilder = func(apiKey, endpoint string) (Client, error) {
		return client, nil
	}
	Init(Options{Enabled: true, Logger: logger})
}

func TestCaptureWithoutInitIsNoop(t *testing.T) {
	resetTelemetryState(t)
	assert.NotPanics(t, func() {
		Capture("noop", nil)
		RecordLaunch(LaunchTelemetry{Command: "launch"})
		Shutdown(context.Background())
	})
	assert.False(t, Enabled())
}

func TestCaptureSkipsEmptyEvent(t *testing.T) {
	resetTelemetryState(t)
	client := &stubClient{}
	initWithClient(t, client, "machine", nil)

	Capture("", map[string]interface{}{"foo": "bar"})

	assert.Empty(t, client.enqueued)
}

func TestCaptureSendsEventWithVersion(t *testing.T) {
	resetTelemetryState(t)
	client := &stubClient{}
	initWithClient(t, client, "machine-test", nil)

	Capture("test-event", map[string]interface{}{"foo": "bar"})

	if assert.Len(t, client.enqueued, 1) {
		capture, ok := client.enqueued[0].(posthog.Capture)
		assert.True(t, ok)
		assert.Equal(t, "machine-test", capture.DistinctId)
		assert.Equal(t, "bar", capture.Properties["foo"])
		assert.Equal(t, environment.AppVersion(), capture.Properties["version"])
	}
}

func TestRecordLaunchIsSentOnceOnShutdown(t *testing.T) {
	resetTelemetryState(t)
	client := &stubClient{}
	initWithClient(t, client, "machine", nil)

	RecordLaunch(LaunchTelemetry{Command: "launch", RunID: "first"})
	RecordLaunch(LaunchTelemetry{
		Command:          "launch",
		RunID:            "run-1",
		Success:          false,
		Loader:           "neoforge",
		VersionID:        "neoforge-21.1.1",
		LibrariesFetched: 3,
		LibrariesFailed:  1,
		Error:            fmt.Errorf("wrapped: %w", stepFailure{}),
		Duration:         1500 * time.Millisecond,
	})
	assert.Empty(t, client.enqueued)

	Shutdown(context.Background())
	Shutdown(context.Background())

	if assert.Len(t, client.enqueued, 1) {
		capture := client.enqueued[0].(posthog.Capture)
		assert.Equal(t, "launch", capture.Event)
		assert.Equal(t, "run-1", capture.Properties["runId"])
		assert.Equal(t, false, capture.Properties["success"])
		assert.Equal(t, "runtime", capture.Properties["errorCategory"])
		assert.Equal(t, int64(1500), capture.Properties["durationMs"])
		assert.Equal(t, 3, capture.Properties["librariesFetched"])
		assert.NotContains(t, fmt.Sprint(capture.Properties), "/home/someone")
	}
	assert.Equal(t, 1, client.closeCount)
	assert.False(t, Enabled())
}

func TestRecordLaunchWithEmptyCommandDoesNothing(t *testing.T) {
	resetTelemetryState(t)
	client := &stubClient{}
	initWithClient(t, client, "machine", nil)

	RecordLaunch(LaunchTelemetry{})
	Shutdown(context.Background())

	assert.Empty(t, client.enqueued)
	assert.Equal(t, 1, client.closeCount)
}

func TestEnqueueErrorIsLogged(t *testing.T) {
	resetTelemetryState(t)
	logger := &recordingLogger{}
	client := &stubClient{enqueueErr: errors.New("boom")}
	initWithClient(t, client, "machine", logger)

	Capture("event", nil)

	assert.Contains(t, strings.Join(logger.messages, "\n"), "enqueue failed")
}

func TestShutdownDoesNotWaitForeverOnClose(t *testing.T) {
	resetTelemetryState(t)
	logger := &recordingLogger{}
	client := &stubClient{closeDelay: 200 * time.Millisecond}
	initWithClient(t, client, "machine", logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	started := time.Now()
	Shutdown(ctx)

	assert.Less(t, time.Since(started), 150*time.Millisecond)
	assert.Contains(t, strings.Join(logger.messages, "\n"), "close timed out")
}

func TestInitHonoursSettings(t *testing.T) {
	resetTelemetryState(t)
	t.Setenv("POSTHOG_API_KEY", "test-key")
	built := false
	clientBuilder = func(string, string) (Client, error) {
		built = true
		return &stubClient{}, nil
	}

	Init(Options{Enabled: false})

	assert.False(t, built)
	assert.False(t, Enabled())
}

func TestInitHonoursDisableEnv(t *testing.T) {
	resetTelemetryState(t)
	t.Setenv(disableEnvVar, "true")
	t.Setenv("POSTHOG_API_KEY", "test-key")
	clientBuilder = func(string, string) (Client, error) {
		return &stubClient{}, nil
	}

	Init(Options{Enabled: true})

	assert.False(t, Enabled())
}

func TestInitDisablesWhenAPIKeyMissing(t *testing.T) {
	resetTelemetryState(t)
	t.Setenv(disableEnvVar, "")
	t.Setenv("POSTHOG_API_KEY", "")
	clientBuilder = func(string, string) (Client, error) {
		return &stubClient{}, nil
	}

	Init(Options{Enabled: true})

	assert.False(t, Enabled())
}

func TestInitWithoutMachineID(t *testing.T) {
	resetTelemetryState(t)
	t.Setenv(disableEnvVar, "")
	t.Setenv("POSTHOG_API_KEY", "test-key")
	t.Setenv("MACHINE_ID", "")
	assert.NoError(t, os.Unsetenv("MACHINE_ID"))
	logger := &recordingLogger{}
	machineIDProvider = func() (string, error) { return "", errors.New("no id") }
	clientBuilder = func(string, string) (Client, error) {
		return &stubClient{}, nil
	}

	Init(Options{Enabled: true, Logger: logger})

	assert.False(t, Enabled())
	assert.Contains(t, strings.Join(logger.messages, "\n"), "machine id unavailable")
}

func TestInitClientBuilderFailure(t *testing.T) {
	resetTelemetryState(t)
	t.Setenv(disableEnvVar, "")
	t.Setenv("POSTHOG_API_KEY", "test-key")
	t.Setenv("MACHINE_ID", "machine")
	clientBuilder = func(string, string) (Client, error) {
		return nil, errors.New("bad key")
	}

	Init(Options{Enabled: true})

	assert.False(t, Enabled())
}

func TestErrorCategory(t *testing.T) {
	assert.Equal(t, "runtime", errorCategory(stepFailure{}))
	assert.Equal(t, "cancelled", errorCategory(fmt.Errorf("x: %w", context.Canceled)))
	assert.Equal(t, "timeout", errorCategory(context.DeadlineExceeded))
	assert.Equal(t, "unknown", errorCategory(errors.New("other")))
}

func TestDisabledByEnv(t *testing.T) {
	for value, expected := range map[string]bool{"": false, "0": false, "false": false, "No": false, "1": true, "true": true} {
		t.Setenv(disableEnvVar, value)
		assert.Equal(t, expected, disabledByEnv(), value)
	}
}
