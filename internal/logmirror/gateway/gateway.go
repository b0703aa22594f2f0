// Package gateway defines the container runtime abstraction the daemon
// observes. Implementations supply the set of running containers, a
// per-container generation token that changes exactly on restart, and live
// log streams.
package gateway

import (
	"context"
	"io"
	"time"
)

// Container describes one running container as seen by the engine.
type Container struct {
	// Name is the engine-assigned container name, unique on the host. It is
	// the identity the daemon keys all state on.
	Name string
	// ID is the engine container ID.
	ID string
	// Generation is an opaque token that changes if and only if the
	// container has been restarted. It is only ever compared for equality,
	// never parsed.
	Generation string
	// StartedAt is when the current incarnation of the container started.
	// Log streams are bounded below by this instant so a capture never
	// replays output from before the latest restart.
	StartedAt time.Time
	// TTY reports whether the container has a pseudo-TTY allocated, which
	// determines whether its output stream is multiplexed.
	TTY bool
}

// Gateway abstracts the container engine (Docker, podman, a test fake).
type Gateway interface {
	// Ping verifies the engine is reachable.
	Ping(ctx context.Context) error

	// Running returns all currently running containers, each with its
	// current generation token.
	Running(ctx context.Context) ([]Container, error)

	// OpenLogStream opens a live, continuously-appending read stream of the
	// container's combined stdout/stderr, starting at ctr.StartedAt. The
	// returned stream yields plain log bytes (any engine framing removed)
	// and is terminated by cancelling ctx or calling Close.
	OpenLogStream(ctx context.Context, ctr Container) (io.ReadCloser, error)
}
