package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"sandboxctl/internal/config"
	"sandboxctl/internal/shellpick"
)

type checkResult struct {
	name    string
	status  string // "ok", "warn", "error"
	message string
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that docker, git, and the local environment are ready for sandboxes",
		Long: `Verify the host is set up to run sandboxes:
  - docker and git on PATH, docker daemon reachable
  - overlayfs support (for copy-on-write credential/cache mounts)
  - login shell detection
  - sandbox cache directory writable
  - global config file loads and validates`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd)
		},
	}
}

func runDoctor(cmd *cobra.Command) error {
	var results []checkResult

	results = append(results, checkBinary("docker", true, "container runtime sandboxes run on"))
	results = append(results, checkDockerDaemon(cmd))
	results = append(results, checkBinary("git", true, "required for shallow clone and remote sync"))
	results = append(results, checkShell())
	results = append(results, checkOverlayfs())
	results = append(results, checkCacheDir())
	results = append(results, checkConfigFile())

	printDoctorResults(results)

	for _, r := range results {
		if r.status == "error" {
			fmt.Println("\nSome checks failed. Please address the issues above.")
			return fmt.Errorf("doctor found issues")
		}
	}

	fmt.Println("\nAll checks passed!")
	return nil
}

func checkBinary(name string, required bool, description string) checkResult {
	path, err := exec.LookPath(name)
	if err != nil {
		status := "warn"
		if required {
			status = "error"
		}
		return checkResult{name: name, status: status, message: fmt.Sprintf("not found - %s", description)}
	}
	return checkResult{name: name, status: "ok", message: fmt.Sprintf("found at %s", path)}
}

func checkDockerDaemon(cmd *cobra.Command) checkResult {
	if _, err := exec.LookPath("docker"); err != nil {
		return checkResult{name: "docker daemon", status: "warn", message: "skipped - docker not on PATH"}
	}
	if err := exec.CommandContext(cmd.Context(), "docker", "info").Run(); err != nil {
		return checkResult{name: "docker daemon", status: "error", message: "cannot reach docker daemon"}
	}
	return checkResult{name: "docker daemon", status: "ok", message: "reachable"}
}

func checkShell() checkResult {
	shell, shellPath := shellpick.Detect()
	if _, err := os.Stat(shellPath); os.IsNotExist(err) {
		return checkResult{name: "shell", status: "warn", message: fmt.Sprintf("%s not found at %s", shell, shellPath)}
	}
	return checkResult{name: "shell", status: "ok", message: fmt.Sprintf("%s at %s", shell, shellPath)}
}

func checkOverlayfs() checkResult {
	data, err := os.ReadFile("/proc/filesystems")
	if err != nil {
		return checkResult{name: "overlayfs", status: "warn", message: "cannot read /proc/filesystems"}
	}
	if strings.Contains(string(data), "overlay") {
		return checkResult{name: "overlayfs", status: "ok", message: "supported"}
	}
	return checkResult{name: "overlayfs", status: "warn", message: "not found - credential/cache overlay mounts depend on it"}
}

func checkCacheDir() checkResult {
	dir := sandboxCacheRoot()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return checkResult{name: "cache dir", status: "error", message: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}
	testFile := filepath.Join(dir, ".doctor-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return checkResult{name: "cache dir", status: "error", message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	_ = os.Remove(testFile)
	return checkResult{name: "cache dir", status: "ok", message: dir}
}

func checkConfigFile() checkResult {
	if _, err := config.LoadFrom(config.ConfigPath()); err != nil {
		return checkResult{name: "config", status: "error", message: err.Error()}
	}
	if _, err := os.Stat(config.ConfigPath()); os.IsNotExist(err) {
		return checkResult{name: "config", status: "warn", message: fmt.Sprintf("no config at %s, using defaults", config.ConfigPath())}
	}
	return checkResult{name: "config", status: "ok", message: config.ConfigPath()}
}

func printDoctorResults(results []checkResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("CHECK", "STATUS", "DETAILS")
	for _, r := range results {
		status := r.status
		switch r.status {
		case "ok":
			status = "✓ ok"
		case "warn":
			status = "⚠ warn"
		case "error":
			status = "✗ error"
		}
		_ = table.Append(r.name, status, r.message)
	}
	_ = table.Render()
}
