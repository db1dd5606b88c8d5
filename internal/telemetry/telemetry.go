// Package telemetry sends one anonymous event per launcher run.
package telemetry

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/meza/minecraft-modpack-launcher/internal/environment"
	"github.com/posthog/posthog-go"
)

const (
	disableEnvVar   = "MPL_DISABLE_TELEMETRY"
	defaultEndpoint = "https://eu.i.posthog.com"
	launchEvent     = "launch"
	closeTimeout    = 2 * time.Second
)

type Client interface {
	io.Closer
	Enqueue(posthog.Message) error
}

type debugLogger interface {
	Debugf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}

// LaunchTelemetry describes the outcome of one pipeline run.
type LaunchTelemetry struct {
	Command          string
	RunID            string
	Success          bool
	Loader           string
	VersionID        string
	ModpackSkipped   bool
	LibrariesPresent int
	LibrariesFetched int
	LibrariesFailed  int
	ExitCode         int
	Error            error
	Duration         time.Duration
}

type state struct {
	client    Client
	machineID string
	logger    debugLogger
	pending   *LaunchTelemetry
}

var (
	mu      sync.Mutex
	current *state

	machineIDProvider = machineid.ID
	clientBuilder     = func(apiKey, endpoint string) (Client, error) {
		return posthog.NewWithConfig(apiKey, posthog.Config{Endpoint: endpoint})
	}
)

type Options struct {
	Enabled bool
	Logger  debugLogger
}

// Init prepares the client. Telemetry stays off when disabled by settings,
// by MPL_DISABLE_TELEMETRY or when no API key was built in.
func Init(opts Options) {
	mu.Lock()
	defer mu.Unlock()
	if current != nil || !opts.Enabled || disabledByEnv() || !environment.TelemetryConfigured() {
		return
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	id, ok := environment.MachineIDOverride()
	if !ok {
		var err error
		if id, err = machineIDProvider(); err != nil {
			logger.Debugf("telemetry: machine id unavailable: %v", err)
			return
		}
	}

	client, err := clientBuilder(environment.PosthogAPIKey(), defaultEndpoint)
	if err != nil || client == nil {
		logger.Debugf("telemetry: client unavailable: %v", err)
		return
	}
	current = &state{client: client, machineID: id, logger: logger}
}

func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return current != nil
}

// RecordLaunch stores the outcome; it is sent by Shutdown.
func RecordLaunch(launch LaunchTelemetry) {
	if strings.TrimSpace(launch.Command) == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return
	}
	recorded := launch
	current.pending = &recorded
}

// Capture sends an arbitrary event immediately.
func Capture(event string, properties map[string]interface{}) {
	if strings.TrimSpace(event) == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return
	}
	current.enqueue(event, properties)
}

// Shutdown sends the recorded launch, if any, and closes the client within ctx.
func Shutdown(ctx context.Context) {
	mu.Lock()
	active := current
	current = nil
	mu.Unlock()
	if active == nil {
		return
	}

	if active.pending != nil {
		active.enqueue(launchEvent, launchProperties(*active.pending))
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- active.client.Close()
	}()
	select {
	case err := <-done:
		if err != nil {
			active.logger.Debugf("telemetry: close failed: %v", err)
		}
	case <-ctx.Done():
		active.logger.Debugf("telemetry: close timed out")
	}
}

// Reset forgets the client without sending anything.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = nil
}

func (s *state) enqueue(event string, properties map[string]interface{}) {
	props := posthog.NewProperties()
	for key, value := range properties {
		props.Set(key, value)
	}
	props.Set("version", environment.AppVersion())

	err := s.client.Enqueue(posthog.Capture{
		Event:      event,
		DistinctId: s.machineID,
		Properties: props,
	})
	if err != nil {
		s.logger.Debugf("telemetry: enqueue failed: %v", err)
	}
}

func launchProperties(launch LaunchTelemetry) map[string]interface{} {
	properties := map[string]interface{}{
		"command":          launch.Command,
		"runId":            launch.RunID,
		"success":          launch.Success,
		"loader":           launch.Loader,
		"versionId":        launch.VersionID,
		"modpackSkipped":   launch.ModpackSkipped,
		"librariesPresent": launch.LibrariesPresent,
		"librariesFetched": launch.LibrariesFetched,
		"librariesFailed":  launch.LibrariesFailed,
		"exitCode":         launch.ExitCode,
	}
	if launch.Duration > 0 {
		properties["durationMs"] = launch.Duration.Milliseconds()
	}
	if launch.Error != nil {
		properties["errorCategory"] = errorCategory(launch.Error)
	}
	return properties
}

type categorized interface {
	Category() string
}

// errorCategory avoids sending error text, which can contain local paths.
func errorCategory(err error) string {
	var withCategory categorized
	if errors.As(err, &withCategory) {
		return withCategory.Category()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "unknown"
}

func disabledByEnv() bool {
	value, ok := os.LookupEnv(disableEnvVar)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "false", "no":
		return false
	}
	return true
}
