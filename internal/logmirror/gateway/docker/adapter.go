// Package docker provides the Docker Engine implementation of the container
// gateway.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"logmirror/internal/logmirror/gateway"
)

// Adapter implements gateway.Gateway using the Docker Engine API.
type Adapter struct {
	client *dockerclient.Client
}

// New creates a new Docker gateway adapter.
// Uses the DOCKER_HOST env var or the default socket path.
func New() (*Adapter, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Adapter{client: cli}, nil
}

// Ping verifies the Docker daemon is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.client.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker daemon: %w", err)
	}
	return nil
}

// Running returns all currently running containers with their generation
// tokens. Each listed container is inspected for its start time and TTY
// mode; a container that vanishes between listing and inspection is skipped
// rather than failing the whole listing.
func (a *Adapter) Running(ctx context.Context) ([]gateway.Container, error) {
	containers, err := a.client.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]gateway.Container, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		if name == "" {
			continue
		}

		inspect, err := a.client.ContainerInspect(ctx, c.ID)
		if err != nil {
			if dockerclient.IsErrNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("inspect container %s: %w", name, err)
		}

		startedAt, _ := time.Parse(time.RFC3339Nano, inspect.State.StartedAt)
		tty := inspect.Config != nil && inspect.Config.Tty

		out = append(out, gateway.Container{
			Name:       name,
			ID:         c.ID,
			Generation: generationToken(c.ID, startedAt),
			StartedAt:  startedAt,
			TTY:        tty,
		})
	}
	return out, nil
}

// OpenLogStream opens a follow-mode combined stdout/stderr stream starting
// at the container's current start time. Non-TTY containers use Docker's
// multiplexed framing, which is stripped before the bytes reach the caller.
func (a *Adapter) OpenLogStream(ctx context.Context, ctr gateway.Container) (io.ReadCloser, error) {
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	}
	if !ctr.StartedAt.IsZero() {
		opts.Since = ctr.StartedAt.Format(time.RFC3339Nano)
	}

	rc, err := a.client.ContainerLogs(ctx, ctr.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("container logs %s: %w", ctr.Name, err)
	}

	if ctr.TTY {
		return rc, nil
	}
	return demux(rc), nil
}

// Close releases the underlying Docker client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// generationToken builds the opaque restart-detection token. Docker resets
// State.StartedAt on every restart, so the token changes exactly then.
func generationToken(id string, startedAt time.Time) string {
	return id + "@" + startedAt.Format(time.RFC3339Nano)
}

// demux strips the 8-byte stdcopy framing from a multiplexed log stream,
// interleaving stdout and stderr in arrival order.
func demux(rc io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()
	return &demuxStream{pr: pr, raw: rc}
}

// demuxStream reads demultiplexed bytes and closes both the pipe and the
// underlying engine stream.
type demuxStream struct {
	pr  *io.PipeReader
	raw io.ReadCloser
}

func (d *demuxStream) Read(p []byte) (int, error) { return d.pr.Read(p) }

func (d *demuxStream) Close() error {
	err := d.raw.Close()
	d.pr.Close()
	return err
}
