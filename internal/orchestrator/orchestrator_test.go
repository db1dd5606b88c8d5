package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meza/minecraft-modpack-launcher/internal/archive"
	"github.com/meza/minecraft-modpack-launcher/internal/auth"
	"github.com/meza/minecraft-modpack-launcher/internal/descriptor"
	"github.com/meza/minecraft-modpack-launcher/internal/discovery"
	"github.com/meza/minecraft-modpack-launcher/internal/httpclient"
	"github.com/meza/minecraft-modpack-launcher/internal/i18n"
	"github.com/meza/minecraft-modpack-launcher/internal/launch"
	"github.com/meza/minecraft-modpack-launcher/internal/libraries"
	"github.com/meza/minecraft-modpack-launcher/internal/loaderinstall"
	"github.com/meza/minecraft-modpack-launcher/internal/logger"
	"github.com/meza/minecraft-modpack-launcher/internal/modpack"
	"github.com/meza/minecraft-modpack-launcher/internal/perf"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var root = filepath.FromSlash("/games/pack")

const versionID = "neoforge-21.1.77"

type scriptedEngine struct {
	events   []launch.Event
	err      error
	launches int
	received launch.Configuration
}

func (engine *scriptedEngine) Launch(_ context.Context, cfg launch.Configuration) (<-chan launch.Event, error) {
	engine.launches++
	engine.received = cfg
	if engine.err != nil {
		return nil, engine.err
	}
	channel := make(chan launch.Event, len(engine.events))
	for _, event := range engine.events {
		channel <- event
	}
	close(channel)
	return channel, nil
}

func cleanExit() *scriptedEngine {
	return &scriptedEngine{events: []launch.Event{
		{Kind: launch.EventData, Text: "Loading NeoForge"},
		{Kind: launch.EventClose, Code: 0},
	}}
}

type fakeRunner struct {
	calls  int
	result loaderinstall.ProcessResult
	err    error
	effect func()
}

func (runner *fakeRunner) Run(context.Context, loaderinstall.Command) (loaderinstall.ProcessResult, error) {
	runner.calls++
	if runner.effect != nil {
		runner.effect()
	}
	return runner.result, runner.err
}

type stubRuntime struct {
	result loaderinstall.Result
	err    error
	panics bool
}

func (stub stubRuntime) EnsureRuntimeInstalled(context.Context, string) (loaderinstall.Result, error) {
	if stub.panics {
		panic("installer exploded")
	}
	return stub.result, stub.err
}

type stubLibraries struct {
	report libraries.Report
	calls  int
}

func (stub *stubLibraries) EnsureLibraries(context.Context, string, *descriptor.Descriptor) libraries.Report {
	stub.calls++
	return stub.report
}

type failingIdentity struct{}

func (failingIdentity) SignIn(context.Context) (auth.Profile, error) {
	return auth.Profile{}, errors.New("sign-in cancelled")
}

func (failingIdentity) Authorization(context.Context) (*launch.Authorization, error) {
	return nil, errors.New("sign-in cancelled")
}

func descriptorJSON(inheritsFrom string) []byte {
	return []byte(`{"id":"` + versionID + `","inheritsFrom":"` + inheritsFrom + `","mainClass":"cpw.mods.bootstraplauncher.BootstrapLauncher","libraries":[]}`)
}

func writeDescriptor(t *testing.T, fs afero.Fs) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, discovery.DescriptorPath(root, versionID), descriptorJSON("1.21.1"), 0644))
}

func modpackZip(t *testing.T) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for name, content := range map[string]string{
		"neoforge-21.1.77-installer.jar": "jar",
		"mods/sodium.jar":                "mod",
		"config/options.txt":             "fov:90",
	} {
		entry, err := writer.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buffer.Bytes()
}

type pipeline struct {
	fs       afero.Fs
	runner   *fakeRunner
	engine   *scriptedEngine
	requests *atomic.Int32
	server   *httptest.Server
	ops      *strings.Builder
	deps     Deps
}

// newPipeline wires the real modpack, loader and library components against an in-memory
// filesystem, a test HTTP server and a fake installer process.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	t.Setenv(i18n.TestModeEnv, "1")

	p := &pipeline{
		fs:       afero.NewMemMapFs(),
		runner:   &fakeRunner{},
		engine:   cleanExit(),
		requests: &atomic.Int32{},
		ops:      &strings.Builder{},
	}
	archiveBytes := modpackZip(t)
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.requests.Add(1)
		if r.URL.Path != "/pack.zip" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archiveBytes)
	}))
	t.Cleanup(p.server.Close)

	p.runner.effect = func() {
		_ = afero.WriteFile(p.fs, discovery.DescriptorPath(root, versionID), descriptorJSON("1.21.1"), 0644)
	}

	log := logger.New(io.Discard, io.Discard, true, false).WithOperationalLog(p.ops)
	fetcher := httpclient.NewFetcher(httpclient.NewRLClient(rate.NewLimiter(rate.Inf, 0)))
	finder := discovery.New(p.fs, []string{"neoforge", "forge"}, []string{".jar"})

	p.deps = Deps{
		Fs:      p.fs,
		Modpack: modpack.NewInstaller(p.fs, fetcher, archive.NewExtractor(p.fs), log),
		Runtime: loaderinstall.NewInstaller(p.fs, finder, p.runner, log, loaderinstall.Options{
			SettleTimeout: 50 * time.Millisecond,
			PollInterval:  time.Millisecond,
		}),
		Libraries: libraries.NewResolver(p.fs, fetcher, 2, log),
		Engine:    p.engine,
		Logger:    log,
		NewRunID:  func() string { return "run-1" },
	}
	return p
}

func (p *pipeline) options() Options {
	return Options{
		Root:            root,
		ModpackURL:      p.server.URL + "/pack.zip",
		Username:        "Steve",
		FallbackVersion: "1.20.1",
	}
}

func TestRunEndToEndLaunchesOnce(t *testing.T) {
	p := newPipeline(t)

	result := New(p.deps).Run(context.Background(), p.options())

	require.NoError(t, result.Err)
	assert.True(t, result.OK())
	assert.Equal(t, "run-1", result.RunID)
	assert.True(t, strings.HasPrefix(result.Status, "status.game_closed"), result.Status)
	assert.Equal(t, int32(1), p.requests.Load())
	assert.Equal(t, 1, p.runner.calls)
	assert.Equal(t, 1, p.engine.launches)

	require.NotNil(t, result.Config)
	assert.Equal(t, versionID, result.Config.Version.Custom)
	assert.Equal(t, "1.21.1", result.Config.Version.Number)
	assert.Equal(t, root, result.Config.Root)
	assert.Equal(t, "Steve", result.Config.Authorization.Name)
	assert.True(t, result.Config.Authorization.Offline())
	assert.Equal(t, launch.ModuleOpens, result.Config.JVMArgs)
	assert.Equal(t, p.engine.received, *result.Config)

	require.NotNil(t, result.Modpack)
	assert.False(t, result.Modpack.Skipped)
	assert.Equal(t, loaderinstall.StateInstalled, result.Runtime.State)
	assert.True(t, result.Libraries.OK())
	require.NotNil(t, result.Outcome)
	assert.Equal(t, 0, result.Outcome.ExitCode)

	exists, err := afero.Exists(p.fs, modpack.MarkerPath(root))
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = afero.Exists(p.fs, filepath.Join(root, "mods", "sodium.jar"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunSecondTimeSkipsDownloadAndInstaller(t *testing.T) {
	p := newPipeline(t)
	orchestrator := New(p.deps)

	first := orchestrator.Run(context.Background(), p.options())
	second := orchestrator.Run(context.Background(), p.options())

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, int32(1), p.requests.Load())
	assert.Equal(t, 1, p.runner.calls)
	assert.Equal(t, 2, p.engine.launches)
	assert.True(t, second.Modpack.Skipped)
	assert.Equal(t, loaderinstall.StateAlreadyInstalled, second.Runtime.State)
}

func TestRunInstallerFailureNeverLaunches(t *testing.T) {
	p := newPipeline(t)
	p.runner.effect = nil
	p.runner.result = loaderinstall.ProcessResult{ExitCode: 1, Output: "Exception in thread main"}

	result := New(p.deps).Run(context.Background(), p.options())

	var stepErr *StepError
	require.ErrorAs(t, result.Err, &stepErr)
	assert.Equal(t, StepRuntime, stepErr.Step)
	var installErr *loaderinstall.RuntimeInstallError
	require.ErrorAs(t, result.Err, &installErr)
	assert.Equal(t, 1, installErr.ExitCode)
	assert.True(t, strings.HasPrefix(result.Status, "status.runtime_failed"), result.Status)
	assert.Empty(t, result.Remediation)
	assert.Equal(t, 0, p.engine.launches)
	assert.Nil(t, result.Config)
	assert.Contains(t, p.ops.String(), "launch step failed")
}

func TestRunMissingInstallerHasRemediation(t *testing.T) {
	p := newPipeline(t)
	opts := p.options()
	opts.ModpackURL = ""

	result := New(p.deps).Run(context.Background(), opts)

	var missing *loaderinstall.MissingInstallerError
	require.ErrorAs(t, result.Err, &missing)
	assert.True(t, strings.HasPrefix(result.Status, "status.missing_installer"), result.Status)
	assert.True(t, strings.HasPrefix(result.Remediation, "remediation.missing_installer"), result.Remediation)
	assert.Equal(t, 0, p.runner.calls)
	assert.Equal(t, 0, p.engine.launches)
	assert.Nil(t, result.Modpack)
	assert.Equal(t, int32(0), p.requests.Load())
}

func TestRunMissingJavaHasRemediation(t *testing.T) {
	p := newPipeline(t)
	p.runner.effect = nil
	p.runner.err = exec.ErrNotFound

	result := New(p.deps).Run(context.Background(), p.options())

	var toolchain *loaderinstall.ToolchainMissingError
	require.ErrorAs(t, result.Err, &toolchain)
	assert.True(t, strings.HasPrefix(result.Status, "status.toolchain_missing"), result.Status)
	assert.True(t, strings.HasPrefix(result.Remediation, "remediation.toolchain_missing"), result.Remediation)
	assert.Equal(t, 0, p.engine.launches)
}

func TestRunRuntimeNotFoundAfterInstall(t *testing.T) {
	p := newPipeline(t)
	p.runner.effect = nil

	result := New(p.deps).Run(context.Background(), p.options())

	assert.True(t, strings.HasPrefix(result.Status, "status.runtime_not_found"), result.Status)
	assert.Equal(t, "remediation.runtime_not_found", result.Remediation)
}

func TestRunModpackDownloadFailure(t *testing.T) {
	p := newPipeline(t)
	opts := p.options()
	opts.ModpackURL = p.server.URL + "/missing.zip"

	result := New(p.deps).Run(context.Background(), opts)

	var stepErr *StepError
	require.ErrorAs(t, result.Err, &stepErr)
	assert.Equal(t, StepModpack, stepErr.Step)
	assert.Equal(t, "modpack", stepErr.Category())
	var installErr *modpack.InstallError
	require.ErrorAs(t, result.Err, &installErr)
	assert.True(t, strings.HasPrefix(result.Status, "status.network_status"), result.Status)
	assert.Contains(t, result.Status, "404")
	assert.Equal(t, 0, p.runner.calls)
	assert.Equal(t, 0, p.engine.launches)
}

func TestRunSkipLaunchPreparesOnly(t *testing.T) {
	p := newPipeline(t)
	opts := p.options()
	opts.SkipLaunch = true

	result := New(p.deps).Run(context.Background(), opts)

	require.NoError(t, result.Err)
	assert.True(t, strings.HasPrefix(result.Status, "status.prepared"), result.Status)
	assert.NotNil(t, result.Config)
	assert.Nil(t, result.Outcome)
	assert.Equal(t, 0, p.engine.launches)
}

func TestRunWithoutModpackUsesInstalledRuntime(t *testing.T) {
	p := newPipeline(t)
	writeDescriptor(t, p.fs)
	opts := p.options()
	opts.ModpackURL = ""

	result := New(p.deps).Run(context.Background(), opts)

	require.NoError(t, result.Err)
	assert.Nil(t, result.Modpack)
	assert.Equal(t, loaderinstall.StateAlreadyInstalled, result.Runtime.State)
	assert.Equal(t, int32(0), p.requests.Load())
	assert.Equal(t, 1, p.engine.launches)
}

func TestRunEngineNonZeroExit(t *testing.T) {
	p := newPipeline(t)
	writeDescriptor(t, p.fs)
	p.engine.events = []launch.Event{
		{Kind: launch.EventData, Text: "Crash report saved"},
		{Kind: launch.EventClose, Code: 255},
	}
	p.deps.Engine = p.engine

	result := New(p.deps).Run(context.Background(), p.options())

	var exitErr *EngineExitError
	require.ErrorAs(t, result.Err, &exitErr)
	assert.Equal(t, 255, exitErr.ExitCode)
	assert.True(t, strings.HasPrefix(result.Status, "status.engine_failed"), result.Status)
	require.NotNil(t, result.Outcome)
	assert.Equal(t, 255, result.Outcome.ExitCode)
	assert.NotNil(t, result.Config)
}

func TestRunEngineErrorEventWithCleanCloseSucceeds(t *testing.T) {
	p := newPipeline(t)
	writeDescriptor(t, p.fs)
	p.engine.events = []launch.Event{
		{Kind: launch.EventError, Text: "Couldn't download optional asset"},
		{Kind: launch.EventClose, Code: 0},
	}
	p.deps.Engine = p.engine

	result := New(p.deps).Run(context.Background(), p.options())

	require.NoError(t, result.Err)
	assert.True(t, result.OK())
	assert.True(t, strings.HasPrefix(result.Status, "status.game_closed"), result.Status)
	require.NotNil(t, result.Outcome)
	assert.Equal(t, []string{"Couldn't download optional asset"}, result.Outcome.Errors)
}

func TestRunWithoutEngine(t *testing.T) {
	p := newPipeline(t)
	p.deps.Engine = nil

	result := New(p.deps).Run(context.Background(), p.options())

	var stepErr *StepError
	require.ErrorAs(t, result.Err, &stepErr)
	assert.Equal(t, StepEngine, stepErr.Step)
	assert.Equal(t, "status.engine_not_configured", result.Status)
	assert.Equal(t, "remediation.engine_not_configured", result.Remediation)
}

func TestRunDescriptorMissing(t *testing.T) {
	p := newPipeline(t)
	p.deps.Runtime = stubRuntime{result: loaderinstall.Result{VersionID: versionID, State: loaderinstall.StateAlreadyInstalled}}

	result := New(p.deps).Run(context.Background(), p.options())

	var missing *descriptor.DescriptorMissingError
	require.ErrorAs(t, result.Err, &missing)
	assert.True(t, strings.HasPrefix(result.Status, "status.descriptor_missing"), result.Status)
	assert.Equal(t, 0, p.engine.launches)
}

func TestRunLibraryFailuresDoNotAbort(t *testing.T) {
	p := newPipeline(t)
	writeDescriptor(t, p.fs)
	resolver := &stubLibraries{report: libraries.Report{
		Downloaded: []string{"com.mojang:brigadier:1.3.10", "org.ow2.asm:asm-tree:9.7"},
		Failed:     []libraries.Failure{{Name: "org.ow2.asm:asm:9.7", Err: errors.New("404")}},
	}}
	p.deps.Libraries = resolver

	result := New(p.deps).Run(context.Background(), p.options())

	require.NoError(t, result.Err)
	assert.Equal(t, 1, resolver.calls)
	assert.Len(t, result.Libraries.Failed, 1)
	assert.Equal(t, 1, p.engine.launches)
	assert.Contains(t, p.ops.String(), "library unavailable")
}

func TestRunFailedSignInFallsBackToOffline(t *testing.T) {
	p := newPipeline(t)
	writeDescriptor(t, p.fs)
	p.deps.Identity = failingIdentity{}

	result := New(p.deps).Run(context.Background(), p.options())

	require.NoError(t, result.Err)
	assert.True(t, result.Config.Authorization.Offline())
	assert.Equal(t, "Steve", result.Config.Authorization.Name)
}

func TestRunRecoversFromPanics(t *testing.T) {
	p := newPipeline(t)
	p.deps.Runtime = stubRuntime{panics: true}

	var result Result
	assert.NotPanics(t, func() {
		result = New(p.deps).Run(context.Background(), p.options())
	})

	var stepErr *StepError
	require.ErrorAs(t, result.Err, &stepErr)
	assert.Equal(t, StepInternal, stepErr.Step)
	assert.True(t, strings.HasPrefix(result.Status, "status.step_failed"), result.Status)
}

func TestRunRequiresRoot(t *testing.T) {
	p := newPipeline(t)
	opts := p.options()
	opts.Root = " "

	result := New(p.deps).Run(context.Background(), opts)

	var stepErr *StepError
	require.ErrorAs(t, result.Err, &stepErr)
	assert.Equal(t, StepRoot, stepErr.Step)
	assert.Equal(t, int32(0), p.requests.Load())
}

func TestRunCancelled(t *testing.T) {
	p := newPipeline(t)
	p.deps.Runtime = stubRuntime{err: context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := New(p.deps).Run(ctx, Options{Root: root})

	assert.Equal(t, "status.cancelled", result.Status)
}

func TestRunRecordsPipelineSpans(t *testing.T) {
	perf.Reset()
	t.Cleanup(perf.Reset)
	require.NoError(t, perf.Init(perf.Config{Enabled: true}))
	p := newPipeline(t)

	result := New(p.deps).Run(context.Background(), p.options())
	require.NoError(t, result.Err)

	spans, err := perf.GetSpans()
	require.NoError(t, err)
	for _, name := range []string{"app.launch", "app.launch.modpack", "app.launch.runtime", "app.launch.libraries", "app.launch.engine"} {
		_, found := perf.FindSpanByName(spans, name)
		assert.True(t, found, name)
	}
	runtimeSpan, _ := perf.FindSpanByName(spans, "app.launch.runtime")
	assert.Equal(t, versionID, runtimeSpan.Attributes["version_id"])
}

func TestDescribeFallsBackToStep(t *testing.T) {
	t.Setenv(i18n.TestModeEnv, "1")

	status, remediation := describe(&StepError{Step: StepDescriptor, Err: errors.New("disk on fire")})

	assert.True(t, strings.HasPrefix(status, "status.step_failed"), status)
	assert.Empty(t, remediation)
}

func TestDescribeNetworkTimeout(t *testing.T) {
	t.Setenv(i18n.TestModeEnv, "1")

	status, _ := describe(&StepError{Step: StepModpack, Err: httpclient.WrapTimeoutError(context.DeadlineExceeded)})

	assert.Equal(t, "status.network_timeout", status)
}
