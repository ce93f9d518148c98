package sandboxlife

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// MetadataFile is the name of the JSON sidecar persisted in a sandbox's
// directory.
const MetadataFile = "metadata.json"

// Sandbox describes one sandbox's on-disk and runtime identity, the
// central record the Lifecycle Controller, list, delete, and gc all
// operate on.
type Sandbox struct {
	Name           string    `json:"name"`
	RepoRoot       string    `json:"repo_root"`
	CloneDir       string    `json:"clone_dir"`
	ShimPath       string    `json:"shim_path"`
	ContainerName  string    `json:"container_name"`
	OverlayVolumes []string  `json:"overlay_volumes"`
	CreatedAt      time.Time `json:"created_at"`
	LastUsed       time.Time `json:"last_used"`

	// Computed, not persisted.
	SandboxHome string `json:"-"`
	SizeBytes   int64  `json:"-"`
	Orphaned    bool   `json:"-"`
	Running     bool   `json:"-"`
}

// Save writes the sandbox's metadata sidecar to its directory.
func (s *Sandbox) Save() error {
	path := filepath.Join(s.SandboxHome, MetadataFile)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("sandboxlife: marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("sandboxlife: write metadata: %w", err)
	}
	return nil
}

// Touch updates LastUsed and persists it.
func (s *Sandbox) Touch() error {
	s.LastUsed = time.Now()
	return s.Save()
}

// LoadSandbox reads the metadata sidecar from sandboxHome.
func LoadSandbox(sandboxHome string) (*Sandbox, error) {
	path := filepath.Join(sandboxHome, MetadataFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrUnknownSandbox
		}
		return nil, fmt.Errorf("sandboxlife: read metadata: %w", err)
	}

	var s Sandbox
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("sandboxlife: parse metadata: %w", err)
	}
	s.SandboxHome = sandboxHome

	if _, err := os.Stat(s.RepoRoot); errors.Is(err, fs.ErrNotExist) {
		s.Orphaned = true
	}

	return &s, nil
}

// ListSandboxes returns the metadata of every sandbox found directly under
// baseDir, which is one repository's sandbox root; entries without a
// readable metadata.json are skipped.
func ListSandboxes(baseDir string) ([]*Sandbox, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("sandboxlife: read %s: %w", baseDir, err)
	}

	var sandboxes []*Sandbox
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sandboxHome := filepath.Join(baseDir, entry.Name())
		s, err := LoadSandbox(sandboxHome)
		if err != nil {
			continue
		}
		sandboxes = append(sandboxes, s)
	}

	sort.Slice(sandboxes, func(i, j int) bool { return sandboxes[i].Name < sandboxes[j].Name })
	return sandboxes, nil
}

// DirSize totals the bytes under dir, skipping anything it cannot stat.
func DirSize(dir string) int64 {
	var size int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
