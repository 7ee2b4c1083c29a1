package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/docker/docker/client"
)

// cli returns the command-line binary that drives this backend. Podman's
// CLI is Docker-compatible; Apple Container uses its own "container" tool.
func (b Backend) cli() string {
	switch b {
	case BackendPodman:
		return "podman"
	case BackendAppleContainer:
		return "container"
	default:
		return "docker"
	}
}

func isCLIAvailable(name string) bool {
	cmd := exec.Command(name, "--version")
	return cmd.Run() == nil
}

// isDockerDaemonReachable pings the Docker daemon through the official SDK
// client rather than shelling out, so a stale/unreachable daemon is
// distinguished from a merely-missing CLI.
func isDockerDaemonReachable(ctx context.Context) bool {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false
	}
	defer cli.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = cli.Ping(pingCtx)
	return err == nil
}

// DetectBackend picks the best available container backend: Apple
// Container on macOS when functional (VM-isolated), then Podman
// (daemonless), then Docker.
func DetectBackend() (Backend, error) {
	ctx := context.Background()

	if runtime.GOOS == "darwin" && isAppleContainerFunctional() {
		return BackendAppleContainer, nil
	}
	if isCLIAvailable("podman") {
		return BackendPodman, nil
	}
	if isCLIAvailable("docker") && isDockerDaemonReachable(ctx) {
		return BackendDocker, nil
	}

	return "", fmt.Errorf("sandbox: no container runtime available (tried apple-container, podman, docker)")
}

func isAppleContainerFunctional() bool {
	if !isCLIAvailable("container") {
		return false
	}
	cmd := exec.Command("container", "image", "pull", "--help")
	return cmd.Run() == nil
}
