// Package orchestrator runs the launch pipeline for one install root: modpack, loader runtime,
// descriptor, libraries, launch configuration and finally the engine.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meza/minecraft-modpack-launcher/internal/auth"
	"github.com/meza/minecraft-modpack-launcher/internal/descriptor"
	"github.com/meza/minecraft-modpack-launcher/internal/i18n"
	"github.com/meza/minecraft-modpack-launcher/internal/launch"
	"github.com/meza/minecraft-modpack-launcher/internal/libraries"
	"github.com/meza/minecraft-modpack-launcher/internal/loaderinstall"
	"github.com/meza/minecraft-modpack-launcher/internal/logger"
	"github.com/meza/minecraft-modpack-launcher/internal/modpack"
	"github.com/meza/minecraft-modpack-launcher/internal/perf"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

type Step string

const (
	StepRoot       Step = "root"
	StepModpack    Step = "modpack"
	StepRuntime    Step = "runtime"
	StepDescriptor Step = "descriptor"
	StepEngine     Step = "engine"
	StepInternal   Step = "internal"
)

type ModpackInstaller interface {
	EnsureInstalled(ctx context.Context, url string, root string) (modpack.Result, error)
}

type RuntimeInstaller interface {
	EnsureRuntimeInstalled(ctx context.Context, root string) (loaderinstall.Result, error)
}

type LibraryResolver interface {
	EnsureLibraries(ctx context.Context, root string, runtime *descriptor.Descriptor) libraries.Report
}

type Deps struct {
	Fs             afero.Fs
	Modpack        ModpackInstaller
	Runtime        RuntimeInstaller
	Libraries      LibraryResolver
	Engine         launch.Engine
	Identity       auth.IdentityProvider
	Logger         *logger.Logger
	LoadDescriptor func(fs afero.Fs, root string, versionID string) (*descriptor.Descriptor, error)
	NewRunID       func() string
	Now            func() time.Time
}

type Options struct {
	Root            string
	ModpackURL      string
	Username        string
	FallbackVersion string
	MinMemory       string
	MaxMemory       string
	SkipLaunch      bool
	Session         launch.SessionOptions
}

// Result is what a run produced. Err is set exactly when the run failed and is always a *StepError.
type Result struct {
	RunID       string
	Status      string
	Remediation string
	Err         error
	Modpack     *modpack.Result
	Runtime     loaderinstall.Result
	Descriptor  *descriptor.Descriptor
	Libraries   libraries.Report
	Config      *launch.Configuration
	Outcome     *launch.Outcome
	Duration    time.Duration
}

func (result Result) OK() bool {
	return result.Err == nil
}

type Orchestrator struct {
	deps Deps
}

func New(deps Deps) *Orchestrator {
	if deps.LoadDescriptor == nil {
		deps.LoadDescriptor = descriptor.Load
	}
	if deps.NewRunID == nil {
		deps.NewRunID = func() string { return uuid.NewString() }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logger.New(io.Discard, io.Discard, true, false)
	}
	return &Orchestrator{deps: deps}
}

// Run never panics and never returns a failure other than through Result.
func (orchestrator *Orchestrator) Run(ctx context.Context, opts Options) (result Result) {
	started := orchestrator.deps.Now()
	result.RunID = orchestrator.deps.NewRunID()

	ctx, span := perf.StartSpan(ctx, "app.launch",
		perf.WithAttributes(
			attribute.String("run_id", result.RunID),
			attribute.String("root", opts.Root),
			attribute.Bool("skip_launch", opts.SkipLaunch),
		),
	)
	defer func() {
		if recovered := recover(); recovered != nil {
			result = orchestrator.fail(result, StepInternal, fmt.Errorf("unexpected failure: %v", recovered))
		}
		result.Duration = orchestrator.deps.Now().Sub(started)
		if result.Err != nil {
			span.RecordError(result.Err)
		} else {
			span.SetAttributes(attribute.Bool("success", true))
		}
		span.End()
	}()

	if strings.TrimSpace(opts.Root) == "" {
		return orchestrator.fail(result, StepRoot, fmt.Errorf("install root is not set"))
	}
	if err := orchestrator.deps.Fs.MkdirAll(opts.Root, 0755); err != nil {
		return orchestrator.fail(result, StepRoot, err)
	}

	if strings.TrimSpace(opts.ModpackURL) == "" {
		orchestrator.progress(i18n.T("progress.modpack_not_configured"))
	} else {
		installed, err := orchestrator.ensureModpack(ctx, opts)
		if err != nil {
			return orchestrator.fail(result, StepModpack, err)
		}
		result.Modpack = &installed
	}

	runtime, err := orchestrator.ensureRuntime(ctx, opts.Root)
	if err != nil {
		return orchestrator.fail(result, StepRuntime, err)
	}
	result.Runtime = runtime

	loaded, err := orchestrator.deps.LoadDescriptor(orchestrator.deps.Fs, opts.Root, runtime.VersionID)
	if err != nil {
		return orchestrator.fail(result, StepDescriptor, err)
	}
	result.Descriptor = loaded

	result.Libraries = orchestrator.ensureLibraries(ctx, opts.Root, loaded)

	authorization := auth.Resolve(ctx, orchestrator.deps.Identity, opts.Username, orchestrator.deps.Logger)
	cfg := launch.BuildConfiguration(launch.Params{
		Authorization:   authorization,
		Username:        opts.Username,
		Root:            opts.Root,
		VersionID:       runtime.VersionID,
		BaseVersion:     loaded.InheritsFrom,
		FallbackVersion: opts.FallbackVersion,
		MinMemory:       opts.MinMemory,
		MaxMemory:       opts.MaxMemory,
	})
	result.Config = &cfg

	if opts.SkipLaunch {
		result.Status = i18n.T("status.prepared", i18n.Tvars{Data: &i18n.TData{"version": runtime.VersionID}})
		return result
	}

	outcome, err := orchestrator.runEngine(ctx, cfg, opts.Session)
	if outcome != nil {
		result.Outcome = outcome
	}
	if err != nil {
		return orchestrator.fail(result, StepEngine, err)
	}
	result.Status = i18n.T("status.game_closed", i18n.Tvars{Data: &i18n.TData{"version": runtime.VersionID}})
	return result
}

func (orchestrator *Orchestrator) ensureModpack(ctx context.Context, opts Options) (modpack.Result, error) {
	ctx, span := perf.StartSpan(ctx, "app.launch.modpack", perf.WithAttributes(attribute.String("url", opts.ModpackURL)))
	defer span.End()

	orchestrator.progress(i18n.T("progress.modpack"))
	installed, err := orchestrator.deps.Modpack.EnsureInstalled(ctx, opts.ModpackURL, opts.Root)
	if err != nil {
		span.RecordError(err)
		return modpack.Result{}, err
	}
	span.SetAttributes(attribute.Bool("skipped", installed.Skipped))
	if installed.Skipped {
		orchestrator.progress(i18n.T("progress.modpack_present"))
	}
	return installed, nil
}

func (orchestrator *Orchestrator) ensureRuntime(ctx context.Context, root string) (loaderinstall.Result, error) {
	ctx, span := perf.StartSpan(ctx, "app.launch.runtime")
	defer span.End()

	orchestrator.progress(i18n.T("progress.runtime"))
	runtime, err := orchestrator.deps.Runtime.EnsureRuntimeInstalled(ctx, root)
	if err != nil {
		span.RecordError(err)
		return loaderinstall.Result{}, err
	}
	span.SetAttributes(
		attribute.String("version_id", runtime.VersionID),
		attribute.String("state", string(runtime.State)),
	)
	if runtime.State == loaderinstall.StateCopiedFromSecondary {
		orchestrator.deps.Logger.Operational().Warn("runtime copied from secondary location", "source", runtime.Source)
	}
	return runtime, nil
}

func (orchestrator *Orchestrator) ensureLibraries(ctx context.Context, root string, runtime *descriptor.Descriptor) libraries.Report {
	ctx, span := perf.StartSpan(ctx, "app.launch.libraries",
		perf.WithAttributes(attribute.Int("declared", len(runtime.Libraries))),
	)
	defer span.End()

	orchestrator.progress(i18n.T("progress.libraries", i18n.Tvars{Count: len(runtime.Libraries)}))
	report := orchestrator.deps.Libraries.EnsureLibraries(ctx, root, runtime)
	span.SetAttributes(
		attribute.Int("present", len(report.Present)),
		attribute.Int("downloaded", len(report.Downloaded)),
		attribute.Int("failed", len(report.Failed)),
	)

	if !report.OK() {
		ops := orchestrator.deps.Logger.Operational()
		for _, failure := range report.Failed {
			ops.Warn("library unavailable", "library", failure.Name, "err", failure.Err)
		}
		orchestrator.deps.Logger.Log(i18n.T("progress.libraries_failed", i18n.Tvars{Count: len(report.Failed)}), true)
	}
	return report
}

func (orchestrator *Orchestrator) runEngine(ctx context.Context, cfg launch.Configuration, options launch.SessionOptions) (*launch.Outcome, error) {
	ctx, span := perf.StartSpan(ctx, "app.launch.engine", perf.WithAttributes(attribute.String("version_id", cfg.Version.Custom)))
	defer span.End()

	if orchestrator.deps.Engine == nil {
		err := launch.EngineNotConfiguredError{}
		span.RecordError(err)
		return nil, err
	}

	orchestrator.progress(i18n.T("progress.engine"))
	session := launch.NewSession(orchestrator.deps.Engine, orchestrator.deps.Fs, orchestrator.deps.Logger, options)
	outcome, err := session.Run(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("exit_code", outcome.ExitCode))
	if outcome.Failed() {
		failure := &EngineExitError{ExitCode: outcome.ExitCode, Errors: outcome.Errors}
		span.RecordError(failure)
		return &outcome, failure
	}
	return &outcome, nil
}

func (orchestrator *Orchestrator) fail(result Result, step Step, err error) Result {
	failure := &StepError{Step: step, Err: err}
	result.Err = failure
	result.Status, result.Remediation = describe(failure)

	ops := orchestrator.deps.Logger.Operational()
	ops.Error("launch step failed", "run", result.RunID, "step", string(step), "err", err)
	for cause := err; cause != nil; cause = unwrapOnce(cause) {
		ops.Debug("cause", "type", fmt.Sprintf("%T", cause), "message", cause.Error())
	}
	return result
}

func (orchestrator *Orchestrator) progress(message string) {
	orchestrator.deps.Logger.Log(message, false)
}

func unwrapOnce(err error) error {
	unwrapper, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return unwrapper.Unwrap()
}
