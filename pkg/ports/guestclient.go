package ports

import (
	"context"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// GuestBootstrap is the port definition for the agent's bootstrap vsock
// port: the one operation it accepts is Create, carrying the
// newly-allocated per-container port as a sidecar option.
type GuestBootstrap interface {
	Create(ctx context.Context, containerID string, spec *specs.Spec, port uint32) error
}

// GuestStateInfo is what the guest agent reports back for State.
type GuestStateInfo struct {
	Status string
	Pid    *int
}

// GuestSession is the port definition for a per-container vsock
// connection: Start/Kill/Delete/State, issued after Create has
// succeeded over the bootstrap port.
type GuestSession interface {
	Start(ctx context.Context) error
	Kill(ctx context.Context, signal int) error
	Delete(ctx context.Context) error
	State(ctx context.Context) (GuestStateInfo, error)
	// Close releases the underlying transport connection.
	Close() error
}
