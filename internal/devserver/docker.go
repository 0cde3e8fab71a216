package devserver

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// composeProjectLabel and composeServiceLabel are the labels docker compose
// stamps on the containers it manages.
const (
	composeProjectLabel = "com.docker.compose.project"
	composeServiceLabel = "com.docker.compose.service"
)

// DockerClient resolves compose services to container ids through the
// Docker SDK.
type DockerClient struct {
	api client.APIClient
}

// NewDockerClient connects to the local Docker daemon using environment
// defaults. Returns an error when the daemon is unreachable; callers treat
// that as "no container resolution", not a fatal condition.
func NewDockerClient() (*DockerClient, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}
	return &DockerClient{api: api}, nil
}

// ResolveContainer finds the container backing a compose service started
// from workingDir. Compose derives its project name from the directory
// basename, which is how the label filter is built.
func (d *DockerClient) ResolveContainer(ctx context.Context, workingDir, service string) (string, error) {
	project := filepath.Base(workingDir)
	f := filters.NewArgs(
		filters.Arg("label", composeProjectLabel+"="+project),
		filters.Arg("label", composeServiceLabel+"="+service),
	)
	containers, err := d.api.ContainerList(ctx, container.ListOptions{Filters: f})
	if err != nil {
		return "", fmt.Errorf("listing containers: %w", err)
	}
	if len(containers) == 0 {
		return "", fmt.Errorf("no container for service %s", service)
	}
	return containers[0].ID, nil
}

// Close releases the client.
func (d *DockerClient) Close() error {
	if closer, ok := d.api.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
