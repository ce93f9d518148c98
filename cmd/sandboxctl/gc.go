package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"sandboxctl/internal/config"
	"sandboxctl/internal/repoident"
	"sandboxctl/internal/volumegc"
)

func newGCCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove orphaned overlay volumes left behind by deleted sandboxes, across every repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			cacheRoot := sandboxCacheRoot()

			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			logger := setupLogging(cfg, "gc", cacheRoot)

			if dryRun {
				report, err := volumegc.Scan(cmd.Context(), cacheRoot, logger)
				if err != nil {
					return err
				}
				printGCReport(report)
				return nil
			}

			removed, err := volumegc.Sweep(cmd.Context(), cacheRoot, logger)
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				fmt.Println("No orphaned volumes found.")
				return nil
			}
			fmt.Printf("Removed %d orphaned volume(s):\n", len(removed))
			for _, name := range removed {
				fmt.Printf("  %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report orphaned volumes without removing them")
	return cmd
}

func printGCReport(report *volumegc.Report) {
	if len(report.Orphans) == 0 {
		fmt.Println("No orphaned volumes found.")
		return
	}
	fmt.Printf("%d orphaned volume(s), %s reclaimable:\n", len(report.Orphans), formatSize(report.ReclaimableBytes))
	for _, o := range report.Orphans {
		fmt.Printf("  %s  %s\n", o.VolumeName, formatSize(o.SizeBytes))
	}
}

// sandboxCacheRoot returns $XDG_CACHE_HOME/sandbox, the directory housing
// every repository's sandbox root, matching repoident's own layout.
func sandboxCacheRoot() string {
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cacheHome = filepath.Join(home, ".cache")
		}
	}
	return filepath.Join(cacheHome, repoident.SandboxDirName)
}
