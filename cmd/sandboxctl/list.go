package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"sandboxctl/internal/sandboxlife"
)

func newListCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sandboxes for the current repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			sandboxes, err := sandboxlife.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return printSandboxesJSON(sandboxes)
			}
			printSandboxesTable(sandboxes)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func printSandboxesJSON(sandboxes []*sandboxlife.Sandbox) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sandboxes)
}

func printSandboxesTable(sandboxes []*sandboxlife.Sandbox) {
	if len(sandboxes) == 0 {
		fmt.Println("No sandboxes found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("NAME", "STATUS", "SIZE", "CREATED", "LAST USED", "ORPHANED")
	for _, s := range sandboxes {
		status := "stopped"
		if s.Running {
			status = "running"
		}
		orphaned := ""
		if s.Orphaned {
			orphaned = "yes"
		}
		_ = table.Append(
			s.Name,
			status,
			formatSize(s.SizeBytes),
			s.CreatedAt.Format("2006-01-02 15:04"),
			s.LastUsed.Format("2006-01-02 15:04"),
			orphaned,
		)
	}
	_ = table.Render()
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
