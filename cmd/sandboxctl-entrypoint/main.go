// Package main implements the sandboxctl container entrypoint.
// It runs as PID 1 (root), and:
// 1. Creates a user matching the host UID/GID/username passed via
//    USER_NAME/USER_ID/GROUP_ID.
// 2. Lays out XDG and SSH directories under that user's home.
// 3. Fixes ownership of the overlay/cache mounts laid down by the host.
// 4. Writes the readiness sentinel the Lifecycle Controller polls for.
// 5. Drops privileges to that user and execs the given command.
//
// Standalone binary — no internal/ imports, pure stdlib + syscall, so it
// can be baked into the sandbox image without carrying the rest of the
// module's dependency graph.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
)

const readySentinel = "/tmp/.sandboxctl-ready"

func main() {
	userName, uid, gid := getIdentity()
	home := "/home/" + userName

	ensureUser(userName, home, uid, gid)
	setupDirectories(home, uid, gid)
	fixMountOwnership(uid, gid)
	writeReadySentinel()

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"/bin/sh"}
	}

	dropPrivsAndExec(userName, home, uid, gid, args)
}

// getIdentity reads USER_NAME/USER_ID/GROUP_ID from the environment, the
// build-arg/run-env contract the Lifecycle Controller populates from the
// host user's identity. Falls back to a fixed sandbox identity if unset,
// so the image can still be run standalone for debugging.
func getIdentity() (userName string, uid, gid int) {
	userName = os.Getenv("USER_NAME")
	if userName == "" {
		userName = "sandboxuser"
	}
	uid = envInt("USER_ID", 1000)
	gid = envInt("GROUP_ID", 1000)
	if uid < 1 {
		uid = 1000
	}
	if gid < 1 {
		gid = 1000
	}
	return userName, uid, gid
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// ensureUser creates the group and user matching the host identity.
// Errors are logged but not fatal — the user/group may already exist if
// the image was built with USER_NAME baked in.
func ensureUser(userName, home string, uid, gid int) {
	_ = run("groupadd", "-g", strconv.Itoa(gid), userName)
	_ = run("useradd",
		"-u", strconv.Itoa(uid),
		"-g", strconv.Itoa(gid),
		"-m",
		"-d", home,
		"-s", "/bin/bash",
		userName,
	)

	if err := chownRecursive(home, uid, gid); err != nil {
		warn("chown home: %v", err)
	}
}

// setupDirectories creates XDG and SSH directories needed by the shell
// and git tooling inside the sandbox.
func setupDirectories(home string, uid, gid int) {
	dirs := []string{
		envOr("XDG_CONFIG_HOME", home+"/.config"),
		envOr("XDG_DATA_HOME", home+"/.local/share"),
		envOr("XDG_CACHE_HOME", home+"/.cache"),
		envOr("XDG_STATE_HOME", home+"/.local/state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			warn("create dir %s: %v", dir, err)
		}
	}

	// .ssh must be 0700 — OpenSSH refuses keys under laxer permissions.
	if err := os.MkdirAll(home+"/.ssh", 0o700); err != nil {
		warn("create dir %s/.ssh: %v", home, err)
	}

	for _, dir := range []string{home + "/.local", home + "/.cache", home + "/.config", home + "/.ssh"} {
		if err := chownRecursive(dir, uid, gid); err != nil {
			warn("chown %s: %v", dir, err)
		}
	}
}

// fixMountOwnership chowns the credential and cache overlay mounts the
// Lifecycle Controller lays down before container create, so the sandbox
// user (rather than root, the mount's apparent owner inside a fresh
// overlay) can read and write through them.
func fixMountOwnership(uid, gid int) {
	for _, dir := range []string{"/home", "/cache"} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := chownRecursive(dir, uid, gid); err != nil {
			warn("chown %s: %v", dir, err)
		}
	}
}

// writeReadySentinel signals the Lifecycle Controller, polling from the
// host, that setup is complete and it's safe to exec a command in.
func writeReadySentinel() {
	if err := os.WriteFile(readySentinel, nil, 0o644); err != nil {
		warn("write ready sentinel: %v", err)
	}
}

// dropPrivsAndExec drops to uid/gid and execs args, replacing this
// process as PID 1.
func dropPrivsAndExec(userName, home string, uid, gid int, args []string) {
	binary, err := exec.LookPath(args[0])
	if err != nil {
		fatal("command not found: %s", args[0])
	}

	if err := syscall.Setgroups([]int{gid}); err != nil {
		fatal("setgroups: %v", err)
	}
	if err := syscall.Setgid(gid); err != nil {
		fatal("setgid(%d): %v", gid, err)
	}
	if err := syscall.Setuid(uid); err != nil {
		fatal("setuid(%d): %v", uid, err)
	}

	_ = os.Setenv("HOME", home)
	_ = os.Setenv("USER", userName)

	env := os.Environ()
	if err := syscall.Exec(binary, args, env); err != nil {
		fatal("exec %s: %v", binary, err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func chownRecursive(path string, uid, gid int) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() && p != path {
			info, err := os.Lstat(p)
			if err != nil {
				return nil
			}
			if info.Mode()&fs.ModeSymlink != 0 {
				return fs.SkipDir
			}
		}
		_ = os.Lchown(p, uid, gid)
		return nil
	})
}

func warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "sandboxctl-entrypoint: warning: "+format+"\n", args...)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "sandboxctl-entrypoint: fatal: "+format+"\n", args...)
	os.Exit(1)
}
