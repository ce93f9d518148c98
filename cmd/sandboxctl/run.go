package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sandboxctl/internal/config"
	"sandboxctl/internal/dockerimage"
	"sandboxctl/internal/mountplan"
	"sandboxctl/internal/netpolicy"
	"sandboxctl/internal/repoident"
	"sandboxctl/internal/sandboxlife"
	"sandboxctl/internal/shellpick"
)

// defaultCredentialDirs are the copy-on-write credential overlays planned
// for every sandbox, generalized from the teacher's Claude-specific
// binding list into a fixed set of optional paths.
var defaultCredentialDirs = []string{
	".claude",
	".claude.json",
	".config/Claude",
	".cache/claude-cli-nodejs",
	".local/share/claude",
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <name> [-- command...]",
		Short: "Attach to (or create) a named sandbox and run a command in it",
		Long: `run attaches to the sandbox <name> if a container for it is already
running, or creates one: builds the sandbox image if needed, shallow-clones
the current repository, reconciles bidirectional git remotes, assembles the
credential and cache overlay mounts, starts the container with a
default-deny network, and spawns the ref-sync watcher. If command is
omitted, an interactive shell is attached instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	name := args[0]
	command := args[1:]

	ri, err := repoident.Resolve(cmd.Context())
	if err != nil {
		return err
	}

	cfg, err := config.Load(ri.RepoRoot)
	if err != nil {
		return err
	}

	logger := setupLogging(cfg, "run", ri.SandboxRoot).WithField("run_id", uuid.New().String())

	identity, err := hostIdentity()
	if err != nil {
		return err
	}

	_, shellPath := shellpick.Detect()

	dockerfilePath := cfg.Sandbox.DockerfilePath
	if dockerfilePath == "" {
		dockerfilePath = config.DefaultDockerfilePath()
	}

	networkName := netpolicy.NetworkName(name)
	gatewayIP, err := netpolicy.EnsureNetwork(cmd.Context(), networkName)
	if err != nil {
		return err
	}

	egressProxy := netpolicy.NewEgressProxy(netpolicy.Default, logger)
	proxyAddr := fmt.Sprintf("%s:3128", gatewayIP)
	proxyErrCh := make(chan error, 1)
	go func() {
		proxyErrCh <- egressProxy.ListenAndServe(proxyAddr)
	}()
	defer egressProxy.Close()

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("sandboxctl: resolve home directory: %w", err)
	}

	controller := &sandboxlife.Controller{}
	runErr := controller.Run(cmd.Context(), sandboxlife.RunParams{
		Name:           name,
		DockerfilePath: dockerfilePath,
		Identity:       identity,
		ShellPath:      shellPath,
		Command:        command,
		Interactive:    term.IsTerminal(int(os.Stdin.Fd())),
		Network:        networkName,
		ProxyAddr:      proxyAddr,
		CredentialDirs: credentialDirPlan(home, cfg),
		CacheDirs:      cacheDirPlan(home, cfg),
		Logger:         logger,
	})

	select {
	case proxyErr := <-proxyErrCh:
		if proxyErr != nil && runErr == nil {
			logger.Warnf("egress proxy exited: %v", proxyErr)
		}
	default:
	}

	return runErr
}

// hostIdentity resolves the current host user's username, UID, and GID,
// baked into the sandbox image/container so in-container file ownership
// matches the host.
func hostIdentity() (dockerimage.Identity, error) {
	u, err := user.Current()
	if err != nil {
		return dockerimage.Identity{}, fmt.Errorf("sandboxctl: resolve current user: %w", err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return dockerimage.Identity{}, fmt.Errorf("sandboxctl: parse uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return dockerimage.Identity{}, fmt.Errorf("sandboxctl: parse gid %q: %w", u.Gid, err)
	}
	return dockerimage.Identity{UserName: u.Username, UID: uid, GID: gid}, nil
}

func credentialDirPlan(home string, cfg *config.Config) []mountplan.CredentialDir {
	dirs := make([]mountplan.CredentialDir, 0, len(defaultCredentialDirs)+len(cfg.Overlay.CredentialDirs))
	for _, rel := range defaultCredentialDirs {
		dirs = append(dirs, mountplan.CredentialDir{HostPath: filepath.Join(home, rel), Optional: true})
	}
	for _, path := range cfg.Overlay.CredentialDirs {
		dirs = append(dirs, mountplan.CredentialDir{HostPath: path, Optional: true})
	}
	return dirs
}

func cacheDirPlan(home string, cfg *config.Config) []mountplan.CredentialDir {
	dirs := make([]mountplan.CredentialDir, 0, len(cfg.Overlay.CacheDirs))
	for _, path := range cfg.Overlay.CacheDirs {
		dirs = append(dirs, mountplan.CredentialDir{HostPath: path, Optional: true})
	}
	return dirs
}
