package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const browserContainerPort = 3000

// BrowserConfig configures the sandboxed headless-Chrome container used by
// the browser automation tools.
type BrowserConfig struct {
	Image                string
	ContainerPrefix      string
	ViewportWidth        int
	ViewportHeight       int
	LowMemoryThresholdMB uint64
	ProfileDir           string // host dir to mount for profile persistence, "" disables
}

func (c BrowserConfig) withDefaults() BrowserConfig {
	if c.Image == "" {
		c.Image = "browserless/chrome:latest"
	}
	if c.ContainerPrefix == "" {
		c.ContainerPrefix = "moltis-browser"
	}
	if c.ViewportWidth == 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight == 0 {
		c.ViewportHeight = 800
	}
	return c
}

// BrowserContainer is a running sandboxed headless-Chrome instance,
// reachable over CDP at WebSocketURL.
type BrowserContainer struct {
	containerID string
	hostPort    int
	image       string
	backend     Backend
}

// StartBrowserContainer auto-detects a backend and launches a browser
// container, blocking until Chrome answers readiness checks or the 60s
// deadline elapses.
func StartBrowserContainer(ctx context.Context, cfg BrowserConfig) (*BrowserContainer, error) {
	backend, err := DetectBackend()
	if err != nil {
		return nil, err
	}
	return StartBrowserContainerWithBackend(ctx, backend, cfg)
}

// StartBrowserContainerWithBackend launches a browser container using an
// explicitly chosen backend.
func StartBrowserContainerWithBackend(ctx context.Context, backend Backend, cfg BrowserConfig) (*BrowserContainer, error) {
	cfg = cfg.withDefaults()

	if !isCLIAvailable(backend.cli()) {
		return nil, fmt.Errorf("sandbox: %s is not available, install it to use the sandboxed browser", backend.cli())
	}

	hostPort, err := findAvailablePort()
	if err != nil {
		return nil, fmt.Errorf("sandbox: allocate browser port: %w", err)
	}

	slog.Info("starting browser container", "image", cfg.Image, "host_port", hostPort, "backend", backend.cli())

	containerName := newBrowserContainerName(cfg.ContainerPrefix)
	if err := runBrowserContainer(ctx, backend, containerName, hostPort, cfg); err != nil {
		return nil, err
	}

	bc := &BrowserContainer{containerID: containerName, hostPort: hostPort, image: cfg.Image, backend: backend}

	if err := waitForChromeReady(ctx, hostPort); err != nil {
		slog.Warn("browser container failed readiness check, cleaning up", "container", containerName, "error", err)
		bc.Stop(ctx)
		return nil, err
	}

	slog.Info("browser container ready", "container", containerName, "host_port", hostPort)
	return bc, nil
}

// WebSocketURL is the CDP endpoint browserless exposes for automation
// clients (e.g. go-rod) to connect to.
func (b *BrowserContainer) WebSocketURL() string { return fmt.Sprintf("ws://127.0.0.1:%d", b.hostPort) }

// HTTPURL is the readiness/health endpoint base.
func (b *BrowserContainer) HTTPURL() string { return fmt.Sprintf("http://127.0.0.1:%d", b.hostPort) }

// ID returns the container name.
func (b *BrowserContainer) ID() string { return b.containerID }

// Stop stops (and, for Apple Container, removes) the container.
func (b *BrowserContainer) Stop(ctx context.Context) {
	slog.Info("stopping browser container", "container", b.containerID, "backend", b.backend.cli())
	if err := exec.CommandContext(ctx, b.backend.cli(), "stop", b.containerID).Run(); err != nil {
		slog.Warn("failed to stop browser container", "container", b.containerID, "error", err)
	}
	if b.backend == BackendAppleContainer {
		if err := exec.CommandContext(ctx, "container", "rm", b.containerID).Run(); err != nil {
			slog.Warn("failed to remove apple browser container", "container", b.containerID, "error", err)
		}
	}
}

func newBrowserContainerName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func buildLaunchArgsEnv(cfg BrowserConfig, backend Backend) string {
	args := []string{fmt.Sprintf("--window-size=%d,%d", cfg.ViewportWidth, cfg.ViewportHeight)}
	if cfg.ProfileDir != "" {
		args = append(args, "--user-data-dir=/data/browser-profile")
	}
	if backend == BackendAppleContainer {
		// Apple Container VMs don't reliably expose /dev/shm; tell Chrome to
		// avoid it entirely rather than rely on the tmpfs mount below.
		args = append(args, "--disable-dev-shm-usage")
	}
	if cfg.LowMemoryThresholdMB > 0 && isLowMemoryHost(cfg.LowMemoryThresholdMB) {
		args = append(args, "--disable-gpu", "--single-process", "--memory-pressure-off")
	}

	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	return "DEFAULT_LAUNCH_ARGS=[" + strings.Join(quoted, ",") + "]"
}

// isLowMemoryHost is best-effort: without a portable sysinfo dependency in
// the pack, only Linux's /proc/meminfo is consulted; other platforms are
// treated as not low-memory.
func isLowMemoryHost(thresholdMB uint64) bool {
	if runtime.GOOS != "linux" {
		return false
	}
	total, err := linuxTotalMemoryMB()
	if err != nil {
		return false
	}
	return total < thresholdMB
}

func runBrowserContainer(ctx context.Context, backend Backend, name string, hostPort int, cfg BrowserConfig) error {
	launchArgs := buildLaunchArgsEnv(cfg, backend)

	args := []string{
		"run", "-d", "--name", name,
		"-p", fmt.Sprintf("%d:%d", hostPort, browserContainerPort),
		"-e", launchArgs,
		"-e", "MAX_CONCURRENT_SESSIONS=1",
		"-e", "PREBOOT_CHROME=true",
	}

	switch backend {
	case BackendAppleContainer:
		args = append(args, "--tmpfs", "/dev/shm")
	default:
		args = append(args, "--rm", "--shm-size=2gb")
	}

	if cfg.ProfileDir != "" {
		mount := fmt.Sprintf("%s:/data/browser-profile", cfg.ProfileDir)
		if backend != BackendAppleContainer {
			mount += ":rw"
		}
		args = append(args, "-v", mount)
	}

	args = append(args, cfg.Image)

	out, err := exec.CommandContext(ctx, backend.cli(), args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("sandbox: start %s browser container: %w: %s", backend.cli(), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// waitForChromeReady probes /json/version, which browserless only answers
// with 200 once Chrome has finished booting — plain TCP connect-success is
// not sufficient.
func waitForChromeReady(ctx context.Context, port int) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	deadline := time.Now().Add(60 * time.Second)
	client := &http.Client{Timeout: 2 * time.Second}

	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("sandbox: timed out waiting for browser container readiness at %s", url)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := client.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func findAvailablePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// CleanupStaleBrowserContainers removes containers left behind by a
// previous, uncleanly-terminated run, identified purely by name prefix.
func CleanupStaleBrowserContainers(ctx context.Context, backend Backend, prefix string) {
	out, err := exec.CommandContext(ctx, backend.cli(), "ps", "-a", "--format", "{{.Names}}").Output()
	if err != nil {
		return
	}
	for _, name := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if name == "" || !strings.HasPrefix(name, prefix+"-") {
			continue
		}
		if err := exec.CommandContext(ctx, backend.cli(), "rm", "-f", name).Run(); err != nil {
			slog.Warn("failed to remove stale browser container", "container", name, "error", err)
			continue
		}
		slog.Info("removed stale browser container from previous run", "container", name)
	}
}
