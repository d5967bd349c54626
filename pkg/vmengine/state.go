package vmengine

import (
	"fmt"
	"sync"

	"akari/pkg/models"
)

// stateGuard enforces the VM Engine's Uninitialized -> Configured ->
// Starting -> Running -> Stopping -> Stopped state machine.
// Connect/Disconnect are legal only in Running; Start only in
// Configured; Stop only in Running.
type stateGuard struct {
	mu    sync.Mutex
	state models.VmState
}

func newStateGuard() *stateGuard {
	return &stateGuard{state: models.VmConfigured}
}

func (g *stateGuard) requireAndTransition(from, during models.VmState) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != from {
		return fmt.Errorf("vm engine: expected state %s, got %s", from, g.state)
	}
	g.state = during
	return nil
}

func (g *stateGuard) settle(final models.VmState) {
	g.mu.Lock()
	g.state = final
	g.mu.Unlock()
}

func (g *stateGuard) requireState(s models.VmState) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != s {
		return fmt.Errorf("vm engine: expected state %s, got %s", s, g.state)
	}
	return nil
}

func (g *stateGuard) current() models.VmState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
