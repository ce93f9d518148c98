package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sandboxctl/internal/config"
	"sandboxctl/internal/syncwatch"
)

// newInternalWatchCmd implements the hidden subcommand the Lifecycle
// Controller spawns as a detached child to run the ref-sync watcher for
// the lifetime of a sandbox's container. Not meant to be invoked by
// hand — sandboxlife.Controller.spawnWatcher is the only caller.
func newInternalWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "internal-watch <repoRoot> <cloneDir> <sandboxName>",
		Hidden: true,
		Args:   cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot, cloneDir, sandboxName := args[0], args[1], args[2]

			cfg, err := config.Load(repoRoot)
			if err != nil {
				return err
			}
			logger := setupLogging(cfg, "syncwatch", sandboxCacheRoot())

			w, err := syncwatch.New(repoRoot, cloneDir, sandboxName, logger)
			if err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)

			go w.Start()
			<-sig
			w.Stop()
			return nil
		},
	}
	return cmd
}
