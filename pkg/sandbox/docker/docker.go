// Package docker implements sandbox.Manager over a simple HTTP sidecar
// container per session, adapted from the simpler, non-gRPC sandbox manager
// variant bundled alongside the teacher (manager.go's ensureRunning/
// createAndStart/waitForHealth lazy-launch flow), rather than the teacher's
// own gRPC-based docker.go — the HTTP variant is a closer match for the
// spec's modest "delegated execution" boundary than standing up a gRPC
// service definition the core never calls directly.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/meridian-ai/agentcore/pkg/sandbox"
)

const (
	// ImageName is the sandbox sidecar image each session container runs.
	ImageName = "agentcore-sandbox:latest"
	// ServerPort is the HTTP port the sidecar exposes inside the container.
	ServerPort = "8000"
	// ReconcileInterval is how often Run checks for orphaned containers.
	ReconcileInterval = 10 * time.Second
)

// Manager implements sandbox.Manager using one Docker container per
// session, proxying RunCell calls to the sidecar's HTTP API.
type Manager struct {
	cli *client.Client
}

var _ sandbox.Manager = (*Manager)(nil)

// New creates a Manager using the local Docker daemon configured by the
// environment (DOCKER_HOST and friends).
func New() (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Manager{cli: cli}, nil
}

func (m *Manager) Close() error {
	return m.cli.Close()
}

func (m *Manager) containerName(sessionID string) string {
	return fmt.Sprintf("agentcore-sandbox-%s", sessionID)
}

// Run reconciles known sessions against running containers on a fixed
// interval, force-removing containers for sessions no longer listed. Blocks until
// ctx is cancelled.
func (m *Manager) Run(ctx context.Context, sessions sandbox.SessionLister) error {
	if err := m.reconcile(ctx, sessions); err != nil {
		return fmt.Errorf("initial sandbox reconciliation: %w", err)
	}

	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = m.reconcile(ctx, sessions)
		}
	}
}

func (m *Manager) reconcile(ctx context.Context, sessions sandbox.SessionLister) error {
	ids, err := sessions.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	containers, err := m.cli.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return fmt.Errorf("listing containers: %w", err)
	}

	for _, c := range containers {
		for _, name := range c.Names {
			sessionID, ok := parseSessionID(name)
			if ok && !known[sessionID] {
				_ = m.cli.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true})
			}
		}
	}
	return nil
}

func parseSessionID(containerName string) (string, bool) {
	const prefix = "/agentcore-sandbox-"
	if len(containerName) <= len(prefix) || containerName[:len(prefix)] != prefix {
		return "", false
	}
	return containerName[len(prefix):], true
}

// RunCell executes code in sessionID's sandbox, lazily launching the
// container on first use.
func (m *Manager) RunCell(ctx context.Context, sessionID, code string, delegate sandbox.Delegate) (*sandbox.Result, error) {
	hostPort, err := m.ensureRunning(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("http://127.0.0.1:%s/tools:run_cell", hostPort)
	body, _ := json.Marshal(map[string]any{"code": code})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sandbox error %d: %s", resp.StatusCode, string(payload))
	}

	var result sandbox.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status reports the container state for sessionID.
func (m *Manager) Status(ctx context.Context, sessionID string) (string, error) {
	c, err := m.cli.ContainerInspect(ctx, m.containerName(sessionID))
	if err != nil {
		if client.IsErrNotFound(err) {
			return "stopped", nil
		}
		return "unknown", err
	}
	if c.State.Running {
		return "running", nil
	}
	return "stopped", nil
}

func (m *Manager) ensureRunning(ctx context.Context, sessionID string) (string, error) {
	name := m.containerName(sessionID)

	c, err := m.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return m.createAndStart(ctx, sessionID)
		}
		return "", fmt.Errorf("inspecting sandbox container: %w", err)
	}

	if !c.State.Running {
		if err := m.cli.ContainerStart(ctx, name, types.ContainerStartOptions{}); err != nil {
			return "", fmt.Errorf("starting sandbox container: %w", err)
		}
		c, err = m.cli.ContainerInspect(ctx, name)
		if err != nil {
			return "", err
		}
	}

	port, err := m.hostPort(c)
	if err != nil {
		return "", err
	}
	if err := m.waitForHealth(ctx, port); err != nil {
		return "", err
	}
	return port, nil
}

func (m *Manager) createAndStart(ctx context.Context, sessionID string) (string, error) {
	if _, _, err := m.cli.ImageInspectWithRaw(ctx, ImageName); err != nil {
		return "", fmt.Errorf("sandbox image %q not found: %w", ImageName, err)
	}

	cfg := &container.Config{
		Image:        ImageName,
		ExposedPorts: nat.PortSet{nat.Port(ServerPort + "/tcp"): {}},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			nat.Port(ServerPort + "/tcp"): {{HostIP: "127.0.0.1", HostPort: "0"}},
		},
	}

	name := m.containerName(sessionID)
	resp, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("creating sandbox container: %w", err)
	}
	if err := m.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("starting sandbox container: %w", err)
	}

	c, err := m.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return "", err
	}
	port, err := m.hostPort(c)
	if err != nil {
		return "", err
	}
	if err := m.waitForHealth(ctx, port); err != nil {
		return "", err
	}
	return port, nil
}

func (m *Manager) hostPort(c types.ContainerJSON) (string, error) {
	ports := c.NetworkSettings.Ports[nat.Port(ServerPort+"/tcp")]
	if len(ports) == 0 {
		return "", fmt.Errorf("sandbox container running but port not mapped")
	}
	return ports[0].HostPort, nil
}

func (m *Manager) waitForHealth(ctx context.Context, port string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	url := fmt.Sprintf("http://127.0.0.1:%s/healthz", port)
	for {
		select {
		case <-timeoutCtx.Done():
			return fmt.Errorf("timeout waiting for sandbox health")
		case <-ticker.C:
			req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
			if err != nil {
				continue
			}
			resp, err := http.DefaultClient.Do(req)
			if err == nil && resp.StatusCode == http.StatusOK {
				resp.Body.Close()
				return nil
			}
		}
	}
}
