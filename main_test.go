package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/meza/minecraft-modpack-launcher/internal/lifecycle"
	"github.com/meza/minecraft-modpack-launcher/internal/perf"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithDeps_RecordsLifecycleRegions(t *testing.T) {
	perf.Reset()
	t.Cleanup(perf.Reset)

	fs := afero.NewMemMapFs()
	var calls []string
	deps := runDeps{
		execute: func(context.Context) error {
			calls = append(calls, "execute")
			return nil
		},
		telemetryShutdown: func(context.Context) {
			calls = append(calls, "telemetryShutdown")
		},
		register: func(handler lifecycle.Handler) lifecycle.HandlerID {
			assert.NotNil(t, handler)
			calls = append(calls, "register")
			return 42
		},
		unregister: func(id lifecycle.HandlerID) {
			calls = append(calls, "unregister")
			assert.Equal(t, lifecycle.HandlerID(42), id)
		},
		args: []string{"launch", "--perf", "--root", "/games/pack"},
		cwd:  "/workdir",
		fs:   fs,
	}

	exitCode := runWithDeps(deps)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, []string{"register", "execute", "telemetryShutdown", "unregister"}, calls)

	spans, err := perf.GetSpans()
	require.NoError(t, err)
	assertSpanExists(t, spans, perfLifecycleStartup)
	assertSpanExists(t, spans, perfLifecycleExecute)
	assertSpanExists(t, spans, perfLifecycleShutdown)

	exported, err := afero.Exists(fs, filepath.Join(filepath.Clean("/games/pack"), "logs", "mpl-perf.json"))
	require.NoError(t, err)
	assert.True(t, exported)
}

func TestRunWithDeps_SignalShutdownIsRecordedOnce(t *testing.T) {
	perf.Reset()
	t.Cleanup(perf.Reset)

	var calls []string
	var registeredHandler lifecycle.Handler

	deps := runDeps{
		execute: func(context.Context) error {
			calls = append(calls, "execute-start")
			assert.NotNil(t, registeredHandler)
			registeredHandler(os.Interrupt)
			calls = append(calls, "execute-end")
			return nil
		},
		telemetryShutdown: func(context.Context) {
			calls = append(calls, "telemetryShutdown")
		},
		register: func(handler lifecycle.Handler) lifecycle.HandlerID {
			calls = append(calls, "register")
			registeredHandler = handler
			return 7
		},
		unregister: func(id lifecycle.HandlerID) {
			calls = append(calls, "unregister")
			assert.Equal(t, lifecycle.HandlerID(7), id)
		},
		args: []string{"--perf"},
		cwd:  "/workdir",
		fs:   afero.NewMemMapFs(),
	}

	exitCode := runWithDeps(deps)
	assert.Equal(t, 0, exitCode)

	var shutdownCalls int
	for _, call := range calls {
		if call == "telemetryShutdown" {
			shutdownCalls++
		}
	}
	assert.Equal(t, 1, shutdownCalls)

	spans, err := perf.GetSpans()
	require.NoError(t, err)
	shutdownSpan, ok := perf.FindSpanByName(spans, perfLifecycleShutdown)
	assert.True(t, ok)
	assert.Equal(t, string(shutdownTriggerSignal), shutdownSpan.Attributes["trigger"])
	assert.Equal(t, os.Interrupt.String(), shutdownSpan.Attributes["signal"])
}

func TestRunWithDeps_FailureExitsNonZero(t *testing.T) {
	perf.Reset()
	t.Cleanup(perf.Reset)

	deps := runDeps{
		execute:           func(context.Context) error { return errors.New("boom") },
		telemetryShutdown: func(context.Context) {},
		register:          func(lifecycle.Handler) lifecycle.HandlerID { return 1 },
		unregister:        func(lifecycle.HandlerID) {},
		fs:                afero.NewMemMapFs(),
	}

	assert.Equal(t, 1, runWithDeps(deps))
	assert.False(t, perf.Enabled())
}

func TestPerfExportConfigFromArgs_DefaultsToRootLogs(t *testing.T) {
	cwd := filepath.FromSlash("/workdir")
	cfg := perfExportConfigFromArgs([]string{"launch", "--perf", "--root", "games/pack"}, cwd)
	assert.True(t, cfg.enabled)

	expectedRoot, err := filepath.Abs(filepath.Join(cwd, filepath.FromSlash("games/pack")))
	require.NoError(t, err)
	assert.Equal(t, expectedRoot, cfg.baseDir)
	assert.Equal(t, filepath.Join(expectedRoot, "logs"), cfg.outDir)
}

func TestPerfExportConfigFromArgs_FallsBackToConfigDir(t *testing.T) {
	cwd := filepath.FromSlash("/workdir")
	cfg := perfExportConfigFromArgs([]string{"--perf", "--config=cfg/mpl.json", "--perf-out-dir", "perf"}, cwd)

	expectedConfig, err := filepath.Abs(filepath.Join(cwd, filepath.FromSlash("cfg/mpl.json")))
	require.NoError(t, err)
	expectedDir := filepath.Dir(expectedConfig)
	assert.Equal(t, expectedDir, cfg.baseDir)
	assert.Equal(t, filepath.Join(expectedDir, "perf"), cfg.outDir)
}

func TestPerfExportConfigFromArgs_DefaultsToCwd(t *testing.T) {
	cwd := filepath.FromSlash("/workdir")
	cfg := perfExportConfigFromArgs([]string{"prepare"}, cwd)

	assert.False(t, cfg.enabled)
	assert.Equal(t, cwd, cfg.baseDir)
	assert.Equal(t, filepath.Join(cwd, "logs"), cfg.outDir)
}

func TestPerfExportConfigFromArgs_CapturesDebugFlag(t *testing.T) {
	cfg := perfExportConfigFromArgs([]string{"--perf", "--debug"}, "/workdir")
	assert.True(t, cfg.debug)

	cfg = perfExportConfigFromArgs([]string{"--perf=false", "-d"}, "/workdir")
	assert.False(t, cfg.enabled)
	assert.True(t, cfg.debug)
}

func assertSpanExists(t *testing.T, spans []perf.SpanSnapshot, name string) {
	t.Helper()
	_, ok := perf.FindSpanByName(spans, name)
	assert.True(t, ok, "expected span %q to exist", name)
}
