// Package volumegc scans the host Docker daemon for sandboxctl overlay
// volumes that have outlived the sandbox that created them and removes
// them, reclaiming the disk space their upper/work directories and the
// volume itself hold.
package volumegc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"sandboxctl/internal/logging"
	"sandboxctl/internal/mountplan"
	"sandboxctl/internal/sandboxlife"
)

// globalOverlayPrefix is the prefix shared by every overlay volume this
// tool creates, regardless of sandbox name, so a sweep across all repos
// can recognize them without knowing every sandbox name in advance.
const globalOverlayPrefix = "sandboxctl-ovl-"

// Orphan describes one overlay volume with no corresponding live sandbox.
type Orphan struct {
	VolumeName string
	SizeBytes  int64
}

// Report is the result of a GC scan: every sandboxctl overlay volume
// found, split into those still backing a known sandbox and those that
// are not.
type Report struct {
	Orphans          []Orphan
	Live             []string
	ReclaimableBytes int64
}

// Scan lists every sandboxctl overlay volume on the daemon, correlates
// each against the sandbox names found under cacheRoot (the directory
// housing every repo's sandbox root, e.g. $XDG_CACHE_HOME/sandbox),
// and reports which volumes are orphaned.
func Scan(ctx context.Context, cacheRoot string, logger *logging.ComponentLogger) (*Report, error) {
	volumes, err := listOverlayVolumes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrScanFailed, err)
	}
	if len(volumes) == 0 {
		return &Report{}, nil
	}

	live, err := liveSandboxNames(cacheRoot)
	if err != nil {
		if logger != nil {
			logger.Warnf("volumegc: could not enumerate live sandboxes under %s: %v", cacheRoot, err)
		}
	}

	sizes := volumeSizes(ctx)

	report := &Report{}
	for _, vol := range volumes {
		if belongsToAny(vol, live) {
			report.Live = append(report.Live, vol)
			continue
		}
		size := sizes[vol]
		report.Orphans = append(report.Orphans, Orphan{VolumeName: vol, SizeBytes: size})
		report.ReclaimableBytes += size
	}

	return report, nil
}

// Sweep runs Scan and removes every orphaned volume it finds, returning
// the names successfully removed.
func Sweep(ctx context.Context, cacheRoot string, logger *logging.ComponentLogger) ([]string, error) {
	report, err := Scan(ctx, cacheRoot, logger)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, orphan := range report.Orphans {
		if err := RemoveVolume(ctx, orphan.VolumeName); err != nil {
			if logger != nil {
				logger.Warnf("volumegc: failed to remove volume %s: %v", orphan.VolumeName, err)
			}
			continue
		}
		if logger != nil {
			logger.Infof("volumegc: removed orphaned volume %s (%d bytes)", orphan.VolumeName, orphan.SizeBytes)
		}
		removed = append(removed, orphan.VolumeName)
	}
	return removed, nil
}

// RemoveVolume removes a single Docker volume by name.
func RemoveVolume(ctx context.Context, volumeName string) error {
	cmd := exec.CommandContext(ctx, "docker", "volume", "rm", volumeName)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker volume rm %s: %s", volumeName, string(output))
	}
	return nil
}

// listOverlayVolumes returns every Docker volume whose name starts with
// the sandboxctl overlay prefix.
func listOverlayVolumes(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "docker", "volume", "ls",
		"--filter", "name="+globalOverlayPrefix,
		"--format", "{{.Name}}")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("docker volume ls: %w", err)
	}

	var volumes []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.HasPrefix(line, globalOverlayPrefix) {
			volumes = append(volumes, line)
		}
	}
	return volumes, nil
}

// liveSandboxNames walks every repo's sandbox root under cacheRoot and
// returns the set of sandbox names with metadata still on disk (a
// sandbox directory removed by Delete no longer counts as live, even if
// its Docker volumes somehow survived).
func liveSandboxNames(cacheRoot string) (map[string]bool, error) {
	repoDirs, err := listDirs(cacheRoot)
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool)
	for _, repoDir := range repoDirs {
		sandboxes, err := sandboxlife.ListSandboxes(repoDir)
		if err != nil {
			continue
		}
		for _, s := range sandboxes {
			names[s.Name] = true
		}
	}
	return names, nil
}

// listDirs returns the absolute paths of every subdirectory of dir,
// treating a missing dir as an empty result rather than an error.
func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("volumegc: read %s: %w", dir, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(dir, entry.Name()))
		}
	}
	return dirs, nil
}

// belongsToAny reports whether volumeName was produced by
// mountplan.OverlayVolumePrefix for any of the given live sandbox names.
func belongsToAny(volumeName string, live map[string]bool) bool {
	for name := range live {
		if strings.HasPrefix(volumeName, mountplan.OverlayVolumePrefix(name)) {
			return true
		}
	}
	return false
}

// volumeSizes parses `docker system df -v` for the size of every
// sandboxctl overlay volume. Returns an empty map on any failure.
func volumeSizes(ctx context.Context) map[string]int64 {
	sizes := make(map[string]int64)

	cmd := exec.CommandContext(ctx, "docker", "system", "df", "-v")
	output, err := cmd.Output()
	if err != nil {
		return sizes
	}

	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	inVolumes := false
	headerSkipped := false

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "Local Volumes space usage:") {
			inVolumes = true
			headerSkipped = false
			continue
		}
		if inVolumes && (strings.HasPrefix(line, "Build cache") || strings.HasPrefix(line, "Images space") || strings.HasPrefix(line, "Containers space")) {
			break
		}
		if !inVolumes {
			continue
		}
		if !headerSkipped {
			if strings.Contains(line, "VOLUME NAME") || strings.Contains(line, "LINKS") {
				headerSkipped = true
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) < 3 {
			continue
		}
		volName := fields[0]
		if !strings.HasPrefix(volName, globalOverlayPrefix) {
			continue
		}
		sizes[volName] = parseDockerSize(fields[len(fields)-1])
	}

	return sizes
}

// parseDockerSize converts a Docker size string (e.g. "1.5GB", "250MB",
// "45.2kB", "0B") to bytes. Returns 0 for invalid or empty input.
func parseDockerSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	unitIdx := -1
	for i, c := range s {
		if c != '.' && (c < '0' || c > '9') {
			unitIdx = i
			break
		}
	}
	if unitIdx <= 0 {
		return 0
	}

	numStr := s[:unitIdx]
	unit := s[unitIdx:]

	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0
	}

	var multiplier float64
	switch strings.ToUpper(unit) {
	case "B":
		multiplier = 1
	case "KB":
		multiplier = 1000
	case "MB":
		multiplier = 1000 * 1000
	case "GB":
		multiplier = 1000 * 1000 * 1000
	case "TB":
		multiplier = 1000 * 1000 * 1000 * 1000
	default:
		return 0
	}

	return int64(math.Round(num * multiplier))
}
