package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sandboxctl/internal/config"
	"sandboxctl/internal/repoident"
	"sandboxctl/internal/sandboxlife"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Stop and remove a sandbox: its container, watcher, git remote, and on-disk state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ri, err := repoident.Resolve(cmd.Context())
			if err != nil {
				return err
			}
			cfg, err := config.Load(ri.RepoRoot)
			if err != nil {
				return err
			}
			logger := setupLogging(cfg, "delete", ri.SandboxRoot)

			controller := &sandboxlife.Controller{}
			if err := controller.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			logger.Infof("deleted sandbox %s", args[0])
			fmt.Printf("Deleted sandbox %q.\n", args[0])
			return nil
		},
	}
}
