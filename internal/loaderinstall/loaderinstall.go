// Package loaderinstall makes sure a mod loader runtime is installed into the install root,
// running the bundled installer when needed.
package loaderinstall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/meza/minecraft-modpack-launcher/internal/discovery"
	"github.com/meza/minecraft-modpack-launcher/internal/fileutils"
	"github.com/meza/minecraft-modpack-launcher/internal/logger"
	"github.com/meza/minecraft-modpack-launcher/internal/perf"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

type State string

const (
	StateAlreadyInstalled    State = "already_installed"
	StateInstalled           State = "installed"
	StateCopiedFromSecondary State = "copied_from_secondary"
)

const (
	DefaultSettleTimeout = 10 * time.Second
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultJava          = "java"
)

var successMarkers = []string{"successfully", "complete"}

type Result struct {
	VersionID string
	State     State
	// Source is the directory the runtime was copied from for StateCopiedFromSecondary.
	Source string
}

type Options struct {
	Java               string
	SecondaryLocations []string
	SettleTimeout      time.Duration
	PollInterval       time.Duration
	InstallTimeout     time.Duration
}

type Installer struct {
	fs        afero.Fs
	discovery *discovery.Discovery
	runner    ProcessRunner
	log       *logger.Logger
	options   Options
	sleep     func(context.Context, time.Duration) error
}

func NewInstaller(fs afero.Fs, finder *discovery.Discovery, runner ProcessRunner, log *logger.Logger, options Options) *Installer {
	if options.Java == "" {
		options.Java = DefaultJava
	}
	if options.SettleTimeout <= 0 {
		options.SettleTimeout = DefaultSettleTimeout
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = logger.New(io.Discard, io.Discard, true, false)
	}
	return &Installer{
		fs:        fs,
		discovery: finder,
		runner:    runner,
		log:       log,
		options:   options,
		sleep:     sleepContext,
	}
}

func (installer *Installer) EnsureRuntimeInstalled(ctx context.Context, root string) (Result, error) {
	ctx, span := perf.StartSpan(ctx, "loader.ensure", perf.WithAttributes(attribute.String("root", root)))
	defer span.End()

	result, err := installer.ensure(ctx, root)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("version_id", result.VersionID),
		attribute.String("state", string(result.State)),
	)
	return result, nil
}

func (installer *Installer) ensure(ctx context.Context, root string) (Result, error) {
	versionID, found, err := installer.discovery.FindInstalledVersion(root)
	if err != nil {
		return Result{}, err
	}
	if found {
		installer.log.Debug(fmt.Sprintf("loader %s already installed", versionID))
		return Result{VersionID: versionID, State: StateAlreadyInstalled}, nil
	}

	installerPath, found, err := installer.discovery.FindInstallerArtifact(root)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, &MissingInstallerError{Root: root}
	}

	if err := EnsureLauncherProfiles(installer.fs, root); err != nil {
		return Result{}, fmt.Errorf("failed to prepare %s: %w", ProfilesFileName, err)
	}

	if err := installer.runInstaller(ctx, root, installerPath); err != nil {
		return Result{}, err
	}

	return installer.verify(ctx, root)
}

func (installer *Installer) runInstaller(ctx context.Context, root string, installerPath string) error {
	ctx, span := perf.StartSpan(ctx, "loader.installer.run",
		perf.WithAttributes(attribute.String("path", installerPath)),
	)
	defer span.End()

	if installer.options.InstallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, installer.options.InstallTimeout)
		defer cancel()
	}

	installer.log.Log(fmt.Sprintf("Running loader installer %s", filepath.Base(installerPath)), false)
	result, err := installer.runner.Run(ctx, Command{
		Name: installer.options.Java,
		Args: []string{"-jar", installerPath, "--installClient", root},
		Dir:  root,
	})
	ops := installer.log.Operational()
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return &ToolchainMissingError{Executable: installer.options.Java, Err: err}
		}
		return &RuntimeInstallError{ExitCode: result.ExitCode, Output: result.Output, Reason: err.Error(), Err: err}
	}

	ops.Info("loader installer finished", "exit_code", result.ExitCode, "installer", installerPath)
	span.SetAttributes(attribute.Int("exit_code", result.ExitCode))
	if result.ExitCode == 0 {
		return nil
	}
	if hasSuccessMarker(result.Output) {
		ops.Warn("installer exited non-zero but reported success", "exit_code", result.ExitCode)
		return nil
	}
	return &RuntimeInstallError{ExitCode: result.ExitCode, Output: result.Output}
}

func (installer *Installer) verify(ctx context.Context, root string) (Result, error) {
	ctx, span := perf.StartSpan(ctx, "loader.verify")
	defer span.End()

	deadline := time.Now().Add(installer.options.SettleTimeout)
	for {
		versionID, found, err := installer.discovery.FindInstalledVersion(root)
		if err != nil {
			return Result{}, err
		}
		if found {
			return Result{VersionID: versionID, State: StateInstalled}, nil
		}
		if !time.Now().Before(deadline) {
			break
		}
		if err := installer.sleep(ctx, installer.options.PollInterval); err != nil {
			return Result{}, err
		}
	}

	for _, location := range installer.options.SecondaryLocations {
		result, ok, err := installer.copyFromSecondary(location, root)
		if err != nil {
			installer.log.Operational().Warn("secondary location probe failed", "location", location, "err", err)
			continue
		}
		if ok {
			span.SetAttributes(attribute.String("source", location))
			return result, nil
		}
	}

	return Result{}, &RuntimeInstallError{Reason: ReasonNotFoundAfterInstall}
}

func (installer *Installer) copyFromSecondary(location string, root string) (Result, bool, error) {
	if location == "" || filepath.Clean(location) == filepath.Clean(root) {
		return Result{}, false, nil
	}
	versionID, found, err := installer.discovery.FindInstalledVersion(location)
	if err != nil || !found {
		return Result{}, false, err
	}

	installer.log.Log(fmt.Sprintf("Loader was installed into %s, copying it into %s", location, root), false)
	installer.log.Operational().Warn("copying loader from secondary location", "version", versionID, "from", location, "to", root)

	versionSource := filepath.Join(location, discovery.VersionsDir, versionID)
	versionTarget := filepath.Join(root, discovery.VersionsDir, versionID)
	if err := fileutils.CopyTree(installer.fs, versionSource, versionTarget); err != nil {
		return Result{}, false, err
	}

	librariesSource := filepath.Join(location, "libraries")
	if exists, _ := afero.DirExists(installer.fs, librariesSource); exists {
		if err := fileutils.CopyTree(installer.fs, librariesSource, filepath.Join(root, "libraries")); err != nil {
			return Result{}, false, err
		}
	}

	return Result{VersionID: versionID, State: StateCopiedFromSecondary, Source: location}, true, nil
}

func hasSuccessMarker(output string) bool {
	lowered := strings.ToLower(output)
	for _, marker := range successMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// DefaultSecondaryLocations lists where installers put the loader when they ignore the target
// directory: the official launcher's game directory for the current platform.
func DefaultSecondaryLocations() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return []string{filepath.Join(appData, ".minecraft")}
		}
		return []string{filepath.Join(home, "AppData", "Roaming", ".minecraft")}
	case "darwin":
		return []string{filepath.Join(home, "Library", "Application Support", "minecraft")}
	default:
		return []string{filepath.Join(home, ".minecraft")}
	}
}

func sleepContext(ctx context.Context, interval time.Duration) error {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
