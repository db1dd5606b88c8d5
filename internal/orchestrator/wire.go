package orchestrator

import (
	"fmt"
	"io"
	"time"

	"github.com/meza/minecraft-modpack-launcher/internal/archive"
	"github.com/meza/minecraft-modpack-launcher/internal/auth"
	"github.com/meza/minecraft-modpack-launcher/internal/config"
	"github.com/meza/minecraft-modpack-launcher/internal/constants"
	"github.com/meza/minecraft-modpack-launcher/internal/discovery"
	"github.com/meza/minecraft-modpack-launcher/internal/environment"
	"github.com/meza/minecraft-modpack-launcher/internal/httpclient"
	"github.com/meza/minecraft-modpack-launcher/internal/launch"
	"github.com/meza/minecraft-modpack-launcher/internal/libraries"
	"github.com/meza/minecraft-modpack-launcher/internal/loaderinstall"
	"github.com/meza/minecraft-modpack-launcher/internal/logger"
	"github.com/meza/minecraft-modpack-launcher/internal/modpack"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
)

const retryInterval = time.Second

type Wiring struct {
	Identity auth.IdentityProvider
	// InstallerOutput receives the loader installer's output as it runs.
	InstallerOutput io.Writer
	Doer            httpclient.Doer
}

// FromSettings builds an orchestrator backed by the real network, filesystem and processes.
func FromSettings(fs afero.Fs, settings config.Settings, log *logger.Logger, wiring Wiring) (*Orchestrator, Options) {
	doer := wiring.Doer
	if doer == nil {
		doer = httpclient.NewRLClient(rate.NewLimiter(rate.Inf, 0), httpclient.WithRetries(settings.HTTP.Retries, retryInterval))
	}
	fetcher := httpclient.NewFetcher(doer,
		httpclient.WithMaxRedirects(settings.HTTP.MaxRedirects),
		httpclient.WithTimeout(settings.HTTP.Timeout),
		httpclient.WithUserAgent(fmt.Sprintf("%s/%s", constants.AppName, environment.AppVersion())),
	)

	finder := discovery.New(fs, settings.LoaderIdentifiers, settings.InstallerExtensions)
	runtimeInstaller := loaderinstall.NewInstaller(fs, finder, loaderinstall.ExecRunner{Mirror: wiring.InstallerOutput}, log, loaderinstall.Options{
		Java:               settings.Java,
		SecondaryLocations: settings.Install.SecondaryLocations,
		SettleTimeout:      settings.Install.SettleTimeout,
		PollInterval:       settings.Install.PollInterval,
		InstallTimeout:     settings.Install.Timeout,
	})

	var engine launch.Engine
	if len(settings.Engine.Command) > 0 {
		engine = launch.NewCommandEngine(fs, settings.Engine.Command)
	}

	orchestrator := New(Deps{
		Fs:        fs,
		Modpack:   modpack.NewInstaller(fs, fetcher, archive.NewExtractor(fs), log),
		Runtime:   runtimeInstaller,
		Libraries: libraries.NewResolver(fs, fetcher, settings.Libraries.Concurrency, log),
		Engine:    engine,
		Identity:  wiring.Identity,
		Logger:    log,
	})

	return orchestrator, Options{
		Root:            settings.Root,
		ModpackURL:      settings.ModpackURL,
		Username:        settings.Username,
		FallbackVersion: settings.GameVersion,
		MinMemory:       settings.Memory.Min,
		MaxMemory:       settings.Memory.Max,
		Session: launch.SessionOptions{
			RecentLines: settings.Engine.TailLines,
			EngineLog:   settings.Engine.LogFile,
		},
	}
}
