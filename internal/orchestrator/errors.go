package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/meza/minecraft-modpack-launcher/internal/archive"
	"github.com/meza/minecraft-modpack-launcher/internal/descriptor"
	"github.com/meza/minecraft-modpack-launcher/internal/httpclient"
	"github.com/meza/minecraft-modpack-launcher/internal/i18n"
	"github.com/meza/minecraft-modpack-launcher/internal/launch"
	"github.com/meza/minecraft-modpack-launcher/internal/loaderinstall"
)

// StepError records which pipeline step failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Category is the step name; it is what telemetry reports instead of the message.
func (e *StepError) Category() string {
	return string(e.Step)
}

type EngineExitError struct {
	ExitCode int
	Errors   []string
}

func (e *EngineExitError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("launch engine failed with code %d: %s", e.ExitCode, e.Errors[len(e.Errors)-1])
	}
	return fmt.Sprintf("launch engine failed with code %d", e.ExitCode)
}

// describe maps a failure to its user-facing status and, where the user has to act, remediation text.
func describe(failure *StepError) (string, string) {
	err := failure.Err
	data := func(values i18n.TData) i18n.Tvars {
		return i18n.Tvars{Data: &values}
	}

	var (
		missingInstaller *loaderinstall.MissingInstallerError
		toolchain        *loaderinstall.ToolchainMissingError
		runtimeFailure   *loaderinstall.RuntimeInstallError
		descriptorErr    *descriptor.DescriptorMissingError
		invalidPayload   *httpclient.InvalidPayloadError
		redirects        *httpclient.TooManyRedirectsError
		network          *httpclient.NetworkError
		archiveErr       *archive.ArchiveError
		engineExit       *EngineExitError
		notConfigured    launch.EngineNotConfiguredError
	)

	switch {
	case errors.Is(err, context.Canceled):
		return i18n.T("status.cancelled"), ""
	case errors.As(err, &missingInstaller):
		return i18n.T("status.missing_installer"),
			i18n.T("remediation.missing_installer", data(i18n.TData{"root": missingInstaller.Root}))
	case errors.As(err, &toolchain):
		return i18n.T("status.toolchain_missing", data(i18n.TData{"executable": toolchain.Executable})),
			i18n.T("remediation.toolchain_missing", data(i18n.TData{"executable": toolchain.Executable}))
	case errors.As(err, &runtimeFailure):
		if runtimeFailure.Reason == loaderinstall.ReasonNotFoundAfterInstall {
			return i18n.T("status.runtime_not_found"), i18n.T("remediation.runtime_not_found")
		}
		return i18n.T("status.runtime_failed", data(i18n.TData{"code": runtimeFailure.ExitCode})), ""
	case errors.As(err, &descriptorErr):
		return i18n.T("status.descriptor_missing", data(i18n.TData{"version": descriptorErr.VersionID})), ""
	case httpclient.IsTimeoutError(err):
		return i18n.T("status.network_timeout"), ""
	case errors.As(err, &invalidPayload):
		return i18n.T("status.invalid_payload", data(i18n.TData{"url": invalidPayload.URL})), ""
	case errors.As(err, &redirects):
		return i18n.T("status.too_many_redirects", data(i18n.TData{"url": redirects.URL})), ""
	case errors.As(err, &network):
		if network.Status > 0 {
			return i18n.T("status.network_status", data(i18n.TData{"status": network.Status, "url": network.URL})), ""
		}
		return i18n.T("status.network_failed", data(i18n.TData{"url": network.URL})), ""
	case errors.As(err, &archiveErr):
		return i18n.T("status.archive_failed"), ""
	case errors.As(err, &notConfigured):
		return i18n.T("status.engine_not_configured"), i18n.T("remediation.engine_not_configured")
	case errors.As(err, &engineExit):
		return i18n.T("status.engine_failed", data(i18n.TData{"code": engineExit.ExitCode})), ""
	}

	return i18n.T("status.step_failed", data(i18n.TData{"step": string(failure.Step)})), ""
}
