package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/meza/minecraft-modpack-launcher/cmd/mpl"
	"github.com/meza/minecraft-modpack-launcher/internal/fileutils"
	"github.com/meza/minecraft-modpack-launcher/internal/lifecycle"
	"github.com/meza/minecraft-modpack-launcher/internal/perf"
	"github.com/meza/minecraft-modpack-launcher/internal/telemetry"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

const (
	perfLifecycleStartup  = "app.lifecycle.startup"
	perfLifecycleExecute  = "app.lifecycle.execute"
	perfLifecycleShutdown = "app.lifecycle.shutdown"

	shutdownTimeout = 3 * time.Second
)

type shutdownTrigger string

const (
	shutdownTriggerExit   shutdownTrigger = "exit"
	shutdownTriggerSignal shutdownTrigger = "signal"
)

type runDeps struct {
	execute           func(context.Context) error
	telemetryShutdown func(context.Context)
	register          func(lifecycle.Handler) lifecycle.HandlerID
	unregister        func(lifecycle.HandlerID)
	args              []string
	cwd               string
	fs                afero.Fs
}

type perfExportConfig struct {
	enabled bool
	debug   bool
	baseDir string
	outDir  string
}

func main() {
	cwd, _ := os.Getwd()
	os.Exit(runWithDeps(runDeps{
		execute:           mpl.ExecuteContext,
		telemetryShutdown: telemetry.Shutdown,
		register:          lifecycle.Register,
		unregister:        lifecycle.Unregister,
		args:              os.Args[1:],
		cwd:               cwd,
		fs:                afero.NewOsFs(),
	}))
}

func runWithDeps(deps runDeps) int {
	if deps.fs == nil {
		deps.fs = fileutils.InitFilesystem()
	}
	perfConfig := perfExportConfigFromArgs(deps.args, deps.cwd)
	if perfConfig.enabled {
		if err := perf.Init(perf.Config{Enabled: true}); err != nil && perfConfig.debug {
			fmt.Fprintf(os.Stderr, "perf: %v\n", err)
		}
	}

	ctx, rootSpan := perf.StartSpan(context.Background(), "app.lifecycle")
	_, startup := perf.StartSpan(ctx, perfLifecycleStartup)

	var once sync.Once
	shutdown := func(trigger shutdownTrigger, sig os.Signal) {
		once.Do(func() {
			attributes := []attribute.KeyValue{attribute.String("trigger", string(trigger))}
			if sig != nil {
				attributes = append(attributes, attribute.String("signal", sig.String()))
			}
			shutdownCtx, span := perf.StartSpan(ctx, perfLifecycleShutdown, perf.WithAttributes(attributes...))
			flushCtx, cancel := context.WithTimeout(shutdownCtx, shutdownTimeout)
			defer cancel()

			deps.telemetryShutdown(flushCtx)
			span.End()
			rootSpan.End()
			exportPerf(deps.fs, perfConfig)
		})
	}

	handlerID := deps.register(func(sig os.Signal) {
		shutdown(shutdownTriggerSignal, sig)
	})
	startup.End()

	executeCtx, executeSpan := perf.StartSpan(ctx, perfLifecycleExecute)
	err := deps.execute(executeCtx)
	executeSpan.RecordError(err)
	executeSpan.End()

	shutdown(shutdownTriggerExit, nil)
	deps.unregister(handlerID)

	if err != nil {
		return 1
	}
	return 0
}

func exportPerf(fs afero.Fs, cfg perfExportConfig) {
	if !cfg.enabled || !perf.Enabled() {
		return
	}
	path, err := perf.ExportToFile(fs, cfg.outDir, cfg.baseDir)
	if !cfg.debug {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "perf export failed: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "perf written to %s\n", path)
}

// perfExportConfigFromArgs reads the flags main needs before cobra has parsed anything.
// The export lands in <root>/logs, falling back to the config file's directory, then cwd.
func perfExportConfigFromArgs(args []string, cwd string) perfExportConfig {
	cfg := perfExportConfig{}
	var root, configPath, outDir string

	for index := 0; index < len(args); index++ {
		name, value, hasValue := strings.Cut(args[index], "=")
		takeValue := func() string {
			if hasValue {
				return value
			}
			if index+1 < len(args) {
				index++
				return args[index]
			}
			return ""
		}
		switch name {
		case "--perf":
			cfg.enabled = !hasValue || value == "true"
		case "--debug", "-d":
			cfg.debug = !hasValue || value == "true"
		case "--root":
			root = takeValue()
		case "--config":
			configPath = takeValue()
		case "--perf-out-dir":
			outDir = takeValue()
		}
	}

	resolve := func(path string, base string) string {
		if filepath.IsAbs(path) {
			return filepath.Clean(path)
		}
		abs, err := filepath.Abs(filepath.Join(base, path))
		if err != nil {
			return filepath.Join(base, path)
		}
		return abs
	}

	switch {
	case root != "":
		cfg.baseDir = resolve(root, cwd)
	case configPath != "":
		cfg.baseDir = filepath.Dir(resolve(configPath, cwd))
	default:
		cfg.baseDir = cwd
	}

	if outDir != "" {
		cfg.outDir = resolve(outDir, cfg.baseDir)
	} else {
		cfg.outDir = filepath.Join(cfg.baseDir, "logs")
	}
	return cfg
}
