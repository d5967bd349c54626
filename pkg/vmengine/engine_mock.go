package vmengine

import (
	"context"
	"fmt"
	"net"
	"sync"

	"akari/pkg/models"
	"akari/pkg/vsockmux"
)

// MockEngine is the in-memory VM Engine substitute described in
// SPEC_FULL.md's design notes: a state machine plus, per connected
// port, a net.Pipe standing in for the guest-side virtio-socket
// connection. Used by every Control Server and Multiplexer test, and
// by non-darwin builds.
type MockEngine struct {
	core  *engineCore
	state *stateGuard
	mux   *vsockmux.Multiplexer

	mu        sync.Mutex
	guestEnds map[uint32]net.Conn
}

// NewMockEngine returns a MockEngine in the Configured state.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		core:      newEngineCore(),
		state:     newStateGuard(),
		mux:       vsockmux.New(),
		guestEnds: make(map[uint32]net.Conn),
	}
}

func (e *MockEngine) Start(ctx context.Context) error {
	if err := e.state.requireAndTransition(models.VmConfigured, models.VmStarting); err != nil {
		return err
	}
	return e.core.submit(ctx, func() {
		e.state.settle(models.VmRunning)
	})
}

func (e *MockEngine) Stop(ctx context.Context) error {
	if err := e.state.requireAndTransition(models.VmRunning, models.VmStopping); err != nil {
		return err
	}
	return e.core.submit(ctx, func() {
		e.state.settle(models.VmStopped)
		e.core.stop()
	})
}

func (e *MockEngine) Connect(ctx context.Context, port uint32, hostEndpointPath string) error {
	if err := e.state.requireState(models.VmRunning); err != nil {
		return err
	}

	var connectErr error
	err := e.core.submit(ctx, func() {
		e.mu.Lock()
		if _, exists := e.guestEnds[port]; exists {
			e.mu.Unlock()
			connectErr = fmt.Errorf("port %d already connected", port)
			return
		}
		// muxEnd stands in for the guest-side virtio-socket connection a
		// real VM Engine would surface; agentEnd is retained so a test
		// can drive a fake agent against it.
		muxEnd, agentEnd := net.Pipe()
		e.guestEnds[port] = agentEnd
		e.mu.Unlock()

		connectErr = e.mux.Connect(port, hostEndpointPath, muxEnd)
	})
	if err != nil {
		return err
	}
	return connectErr
}

func (e *MockEngine) Disconnect(ctx context.Context, port uint32) error {
	if err := e.state.requireState(models.VmRunning); err != nil {
		return err
	}

	var disconnectErr error
	err := e.core.submit(ctx, func() {
		e.mu.Lock()
		delete(e.guestEnds, port)
		e.mu.Unlock()

		disconnectErr = e.mux.Disconnect(port)
	})
	if err != nil {
		return err
	}
	return disconnectErr
}

// GuestConn returns the guest-side end of port's in-memory pipe, for
// tests that run a fake agent against it. Returns nil if port is not
// connected.
func (e *MockEngine) GuestConn(port uint32) net.Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guestEnds[port]
}
