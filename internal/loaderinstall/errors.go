package loaderinstall

import (
	"fmt"
)

type MissingInstallerError struct {
	Root string
}

func (e *MissingInstallerError) Error() string {
	return fmt.Sprintf("no loader installed and no installer found in %s", e.Root)
}

// ToolchainMissingError means the interpreter needed to run the installer could not be started.
type ToolchainMissingError struct {
	Executable string
	Err        error
}

func (e *ToolchainMissingError) Error() string {
	return fmt.Sprintf("could not start %s: %v", e.Executable, e.Err)
}

func (e *ToolchainMissingError) Unwrap() error {
	return e.Err
}

const ReasonNotFoundAfterInstall = "not found after install"

type RuntimeInstallError struct {
	ExitCode int
	Output   string
	Reason   string
	Err      error
}

func (e *RuntimeInstallError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("loader installation failed: %s", e.Reason)
	}
	return fmt.Sprintf("loader installer exited with code %d", e.ExitCode)
}

func (e *RuntimeInstallError) Unwrap() error {
	return e.Err
}
