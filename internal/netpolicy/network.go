package netpolicy

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// NetworkName derives the per-sandbox Docker network name, so each
// sandbox gets its own gateway (and therefore its own place for the
// egress proxy to bind) rather than sharing one.
func NetworkName(sandboxName string) string {
	return "sandboxctl-net-" + sandboxName
}

// EnsureNetwork creates the sandbox's `--internal` Docker network (no
// default route to the outside) if it does not already exist, and
// returns its gateway IP — the address the egress proxy binds so
// `host.docker.internal`-style routing from inside the container reaches
// it.
func EnsureNetwork(ctx context.Context, name string) (gatewayIP string, err error) {
	if gatewayIP, err := inspectGateway(ctx, name); err == nil {
		return gatewayIP, nil
	}

	cmd := exec.CommandContext(ctx, "docker", "network", "create", "--internal", name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%w: docker network create %s: %s", ErrNetworkSetupFailed, name, strings.TrimSpace(string(out)))
	}

	return inspectGateway(ctx, name)
}

// RemoveNetwork removes the sandbox's network, tolerating its absence.
func RemoveNetwork(ctx context.Context, name string) error {
	out, err := exec.CommandContext(ctx, "docker", "network", "rm", name).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "not found") {
			return nil
		}
		return fmt.Errorf("%w: docker network rm %s: %s", ErrNetworkSetupFailed, name, msg)
	}
	return nil
}

// dockerNetworkInspect is the slice of the `docker network inspect`
// output this package needs.
type dockerNetworkInspect struct {
	IPAM struct {
		Config []struct {
			Gateway string `json:"Gateway"`
		} `json:"Config"`
	} `json:"IPAM"`
}

func inspectGateway(ctx context.Context, name string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", "network", "inspect", name).Output()
	if err != nil {
		return "", fmt.Errorf("%w: docker network inspect %s", ErrNetworkSetupFailed, name)
	}

	var parsed []dockerNetworkInspect
	if err := json.Unmarshal(out, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse docker network inspect %s: %v", ErrNetworkSetupFailed, name, err)
	}
	if len(parsed) == 0 || len(parsed[0].IPAM.Config) == 0 || parsed[0].IPAM.Config[0].Gateway == "" {
		return "", fmt.Errorf("%w: network %s has no gateway", ErrNetworkSetupFailed, name)
	}

	return parsed[0].IPAM.Config[0].Gateway, nil
}
