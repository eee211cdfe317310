// Package docker implements resourceclient.ResourceClient against a local
// Docker daemon. No complete example repo in the reference pack imports a
// Kubernetes client as a direct dependency, so a long-running container
// stands in for the spec's Kubernetes pod: one container per engine,
// deterministically named from the engine id, with configs rendered as
// environment variables the way a Spark driver would consume
// spark.*-prefixed configuration.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/HaoYang670/rucat/internal/apperrors"
	"github.com/HaoYang670/rucat/internal/observability"
	"github.com/HaoYang670/rucat/internal/resourceclient"
	"github.com/HaoYang670/rucat/pkg/backoff"
	"github.com/HaoYang670/rucat/pkg/circuitbreaker"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// Client is a Docker-backed resourceclient.ResourceClient.
type Client struct {
	docker   *client.Client
	cfg      Config
	breakers *circuitbreaker.Registry
	metrics  *observability.Metrics
}

// New connects to the Docker daemon named by the standard DOCKER_HOST
// environment (client.FromEnv), negotiating the API version.
func New(cfg Config, metrics *observability.Metrics) (*Client, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	return &Client{
		docker:   dockerClient,
		cfg:      cfg.withDefaults(),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()),
		metrics:  metrics,
	}, nil
}

// Close releases the underlying Docker client.
func (c *Client) Close() error {
	return c.docker.Close()
}

// Ready checks that the Docker daemon is reachable.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.docker.Ping(ctx)
	if err != nil {
		return apperrors.Unavailable("docker.ping", err)
	}
	return nil
}

// Create provisions the container backing engineID. Idempotent: a name
// conflict with an existing container for the same engine is treated as
// success, matching the spec's "already exists returns Ok" contract.
func (c *Client) Create(ctx context.Context, engineID string, engineType, version string, configs map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CreateTimeout)
	defer cancel()

	breaker := c.breakers.Get("create")
	if !breaker.Allow() {
		return apperrors.Unavailable("docker.create", fmt.Errorf("circuit open for docker create"))
	}

	name := containerName(engineID)

	containerConfig := &container.Config{
		Image: sparkImage(version),
		Env:   configsToEnv(configs),
		Labels: map[string]string{
			labelManagedBy: managedByValue,
			labelEngineID:  engineID,
		},
	}
	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
	}

	_, err := c.docker.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil && !errdefs.IsConflict(err) {
		breaker.RecordFailure()
		return apperrors.Internal("docker.create", err)
	}

	if err == nil {
		if startErr := c.docker.ContainerStart(ctx, name, container.StartOptions{}); startErr != nil {
			breaker.RecordFailure()
			return apperrors.Internal("docker.start", startErr)
		}
	}

	breaker.RecordSuccess()
	return nil
}

// Delete tears down the container backing engineID. Idempotent: a missing
// container is treated as success.
func (c *Client) Delete(ctx context.Context, engineID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DeleteTimeout)
	defer cancel()

	breaker := c.breakers.Get("delete")
	if !breaker.Allow() {
		return apperrors.Unavailable("docker.delete", fmt.Errorf("circuit open for docker delete"))
	}

	name := containerName(engineID)
	err := c.docker.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		breaker.RecordFailure()
		return apperrors.Internal("docker.delete", err)
	}

	breaker.RecordSuccess()
	return nil
}

// Status inspects the container backing engineID and maps Docker's
// container status onto the spec's NotFound/Pending/Running/Failed model,
// the way the original Kubernetes client mapped pod phase.
func (c *Client) Status(ctx context.Context, engineID string) (resourceclient.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StatusTimeout)
	defer cancel()

	breaker := c.breakers.Get("status")
	if !breaker.Allow() {
		return resourceclient.Status{}, apperrors.Unavailable("docker.status", fmt.Errorf("circuit open for docker status"))
	}

	inspect, err := c.docker.ContainerInspect(ctx, containerName(engineID))
	if err != nil {
		if errdefs.IsNotFound(err) {
			breaker.RecordSuccess()
			return resourceclient.Status{Phase: resourceclient.NotFound}, nil
		}
		breaker.RecordFailure()
		return resourceclient.Status{}, apperrors.Internal("docker.status", err)
	}
	breaker.RecordSuccess()

	switch {
	case inspect.State.Running:
		return resourceclient.Status{Phase: resourceclient.Running}, nil
	case inspect.State.Status == "created" || inspect.State.Status == "restarting":
		return resourceclient.Status{Phase: resourceclient.Pending}, nil
	default:
		reason := inspect.State.Error
		if reason == "" {
			reason = fmt.Sprintf("container exited with code %d", inspect.State.ExitCode)
		}
		return resourceclient.Status{Phase: resourceclient.Failed, Reason: reason}, nil
	}
}

// StatusWithRetry retries Status through pkg/backoff, for callers that need
// resilience against transient daemon hiccups without failing a whole
// monitor tick. attempts caps the number of tries (attempts=1 disables
// retry).
func (c *Client) StatusWithRetry(ctx context.Context, engineID string, attempts int) (resourceclient.Status, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, err := c.Status(ctx, engineID)
		if err == nil {
			return status, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		slog.WarnContext(ctx, "docker status attempt failed, retrying", "engine_id", engineID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return resourceclient.Status{}, ctx.Err()
		case <-time.After(backoff.Exponential(attempt, nil)):
		}
	}
	return resourceclient.Status{}, lastErr
}

// configsToEnv renders engine configs as sorted KEY=VALUE environment
// entries, sorted for deterministic container recreation across retries.
func configsToEnv(configs map[string]string) []string {
	keys := make([]string, 0, len(configs))
	for k := range configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, strings.ToUpper(strings.ReplaceAll(k, ".", "_"))+"="+configs[k])
	}
	return env
}
