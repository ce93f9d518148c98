package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sandboxctl/internal/config"
	"sandboxctl/internal/logging"
	"sandboxctl/internal/sandboxlife"
	"sandboxctl/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sandboxctl",
		Short: "Ephemeral, containerized development sandboxes for untrusted agent processes",
		Long: `sandboxctl provisions per-task Docker sandboxes that keep an untrusted
agent process off your host and your main working tree, while still
letting it operate on a real clone of the current repository:

  - A shallow clone of the current repo, paired with the container so the
    clone occupies the exact same absolute path inside the container that
    the repo occupies on the host.
  - Bidirectional git remotes between host and clone, kept converged by a
    background ref-sync watcher (working trees are never touched).
  - Credential and toolchain-cache directories overlay-mounted
    copy-on-write: the sandbox can read them, but nothing it writes ever
    reaches the host copy.
  - Default-deny network egress through a compiled-in allowlist.`,
		Version:               version.Version,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		SilenceErrors:         true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("sandboxctl %s\n", version.FullVersion()))

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newGCCmd())
	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newInternalWatchCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command error to the CLI's exit status: a non-zero
// exit of the container command is forwarded verbatim, an unknown sandbox name is
// reported as 2, and everything else prints one diagnostic line and
// exits 1.
func exitCodeFor(err error) int {
	var exitErr *sandboxlife.ContainerExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	if errors.Is(err, sandboxlife.ErrUnknownSandbox) {
		fmt.Fprintf(os.Stderr, "sandboxctl: %v\n", err)
		return 2
	}

	fmt.Fprintf(os.Stderr, "sandboxctl: %v\n", err)
	return 1
}

// setupLogging builds the ComponentLogger every subcommand logs through,
// wiring the dispatcher from the merged config's receivers. Failure to
// set up remote logging is never fatal to the command itself.
func setupLogging(cfg *config.Config, component, errorLogDir string) *logging.ComponentLogger {
	dispatcher, err := logging.NewDispatcherFromConfig(cfg.Logging.Receivers, cfg.Logging.Attributes, errorLogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sandboxctl: warning: logging setup failed: %v\n", err)
		return logging.NewComponentLogger(component, nil, nil)
	}
	return dispatcher.ComponentLogger(component, nil)
}
