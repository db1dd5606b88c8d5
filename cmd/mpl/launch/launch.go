package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/meza/minecraft-modpack-launcher/internal/auth"
	"github.com/meza/minecraft-modpack-launcher/internal/config"
	"github.com/meza/minecraft-modpack-launcher/internal/constants"
	"github.com/meza/minecraft-modpack-launcher/internal/environment"
	"github.com/meza/minecraft-modpack-launcher/internal/fileutils"
	"github.com/meza/minecraft-modpack-launcher/internal/i18n"
	"github.com/meza/minecraft-modpack-launcher/internal/loaderinstall"
	"github.com/meza/minecraft-modpack-launcher/internal/logger"
	"github.com/meza/minecraft-modpack-launcher/internal/orchestrator"
	"github.com/meza/minecraft-modpack-launcher/internal/perf"
	"github.com/meza/minecraft-modpack-launcher/internal/telemetry"
	"github.com/meza/minecraft-modpack-launcher/internal/tui"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

// OperationalLogPath is where the diagnostic log lives, relative to the install root.
const OperationalLogPath = "logs/mpl.log"

// ErrPipelineFailed is returned after the failure has already been reported to the user.
var ErrPipelineFailed = errors.New("launch pipeline failed")

type Runner interface {
	Run(ctx context.Context, opts orchestrator.Options) orchestrator.Result
}

type Deps struct {
	Fs              afero.Fs
	LoadSettings    func(cmd *cobra.Command, fs afero.Fs) (config.Settings, string, error)
	NewOrchestrator func(fs afero.Fs, settings config.Settings, log *logger.Logger, wiring orchestrator.Wiring) (Runner, orchestrator.Options)
	Identity        auth.IdentityProvider
	RecordLaunch    func(telemetry.LaunchTelemetry)
	InitTelemetry   func(telemetry.Options)
	Colorize        func(io.Writer) bool
}

func DefaultDeps() Deps {
	return Deps{
		Fs:           fileutils.InitFilesystem(),
		LoadSettings: LoadSettings,
		NewOrchestrator: func(fs afero.Fs, settings config.Settings, log *logger.Logger, wiring orchestrator.Wiring) (Runner, orchestrator.Options) {
			return orchestrator.FromSettings(fs, settings, log, wiring)
		},
		Identity:      auth.NewCachedProvider(nil, auth.NewKeyringCache()),
		RecordLaunch:  telemetry.RecordLaunch,
		InitTelemetry: telemetry.Init,
		Colorize:      tui.ShouldColorize,
	}
}

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "launch",
		Short: i18n.T("cmd.launch.short"),
		Long:  i18n.T("cmd.launch.long"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return RunPipeline(cmd, DefaultDeps(), false)
		},
	}
}

// LoadSettings reads the settings using the command's flags.
func LoadSettings(cmd *cobra.Command, fs afero.Fs) (config.Settings, string, error) {
	configFile, _ := cmd.Flags().GetString("config")
	return config.Load(config.LoadOptions{
		ConfigFile:         configFile,
		SearchPaths:        config.DefaultSearchPaths(),
		Flags:              cmd.Flags(),
		Fs:                 fs,
		SecondaryLocations: loaderinstall.DefaultSecondaryLocations(),
	})
}

// RunPipeline drives one orchestrator run and reports it. skipLaunch stops after the launch
// configuration has been built.
func RunPipeline(cmd *cobra.Command, deps Deps, skipLaunch bool) error {
	commandName := cmd.Name()
	ctx, span := perf.StartSpan(cmd.Context(), "app.command."+commandName)
	defer span.End()

	quiet, _ := cmd.Flags().GetBool("quiet")
	debug, _ := cmd.Flags().GetBool("debug")
	out := cmd.OutOrStdout()
	colorize := deps.Colorize(out)
	log := logger.New(out, cmd.ErrOrStderr(), quiet, debug)

	settings, configFile, err := deps.LoadSettings(cmd, deps.Fs)
	if err != nil {
		span.RecordError(err)
		log.Error(fmt.Sprintf("%s %s", tui.ErrorIcon(colorize), i18n.T("cmd.launch.error.settings", i18n.Tvars{
			Data: &i18n.TData{"error": err.Error()},
		})))
		return ErrPipelineFailed
	}
	if deps.InitTelemetry != nil {
		deps.InitTelemetry(telemetry.Options{Enabled: settings.Telemetry})
	}

	opsPath := filepath.Join(settings.Root, filepath.FromSlash(OperationalLogPath))
	if opsFile, openErr := logger.OpenOperationalLog(deps.Fs, opsPath); openErr == nil {
		defer func() { _ = opsFile.Close() }()
		log = log.WithOperationalLog(opsFile)
	} else {
		log.Debug(fmt.Sprintf("operational log unavailable: %v", openErr))
	}
	log.Operational().Info("starting", "command", commandName, "version", environment.AppVersion(), "config", configFile, "root", settings.Root)

	log.Log(tui.Header(tui.HeaderConfig{
		App:     constants.CommandName,
		Version: environment.AppVersion(),
		Extras:  []string{settings.Loader, settings.Root},
	}, tui.Width(out), colorize), false)

	var installerOutput io.Writer
	if debug {
		installerOutput = out
	}
	runner, opts := deps.NewOrchestrator(deps.Fs, settings, log, orchestrator.Wiring{
		Identity:        deps.Identity,
		InstallerOutput: installerOutput,
	})
	opts.SkipLaunch = skipLaunch

	result := runner.Run(ctx, opts)
	span.SetAttributes(attribute.String("run_id", result.RunID), attribute.Bool("success", result.OK()))
	record(deps, commandName, settings, result)

	if !result.OK() {
		span.RecordError(result.Err)
		log.Error(fmt.Sprintf("%s %s", tui.ErrorIcon(colorize), result.Status))
		if result.Remediation != "" {
			log.Error(tui.Render(tui.RemediationStyle, result.Remediation, colorize))
		}
		log.Error(tui.Render(tui.MutedStyle, i18n.T("cmd.launch.see_log", i18n.Tvars{
			Data: &i18n.TData{"path": opsPath},
		}), colorize))
		return ErrPipelineFailed
	}

	if len(result.Libraries.Failed) > 0 {
		log.Log(fmt.Sprintf("%s %s", tui.WarningIcon(colorize), i18n.T("cmd.launch.libraries_missing", i18n.Tvars{
			Count: len(result.Libraries.Failed),
		})), true)
	}
	if skipLaunch {
		log.Log(i18n.T("cmd.prepare.summary", i18n.Tvars{Data: &i18n.TData{
			"version":    result.Runtime.VersionID,
			"present":    len(result.Libraries.Present),
			"downloaded": len(result.Libraries.Downloaded),
			"failed":     len(result.Libraries.Failed),
		}}), true)
	}
	log.Log(fmt.Sprintf("%s %s", tui.SuccessIcon(colorize), result.Status), true)
	return nil
}

func record(deps Deps, command string, settings config.Settings, result orchestrator.Result) {
	if deps.RecordLaunch == nil {
		return
	}
	launch := telemetry.LaunchTelemetry{
		Command:          command,
		RunID:            result.RunID,
		Success:          result.OK(),
		Loader:           settings.Loader,
		VersionID:        result.Runtime.VersionID,
		ModpackSkipped:   result.Modpack == nil || result.Modpack.Skipped,
		LibrariesPresent: len(result.Libraries.Present),
		LibrariesFetched: len(result.Libraries.Downloaded),
		LibrariesFailed:  len(result.Libraries.Failed),
		Error:            result.Err,
		Duration:         result.Duration,
	}
	if result.Outcome != nil {
		launch.ExitCode = result.Outcome.ExitCode
	}
	deps.RecordLaunch(launch)
}
