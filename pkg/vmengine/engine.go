package vmengine

import (
	"context"
	"errors"
	"sync"
)

// errStopped is returned by submit once the dispatch loop has exited.
var errStopped = errors.New("vm engine: dispatch loop stopped")

// engineCore is the single serial dispatch queue shared by both
// backends: every hypervisor call is enqueued as a closure and runs on
// the one goroutine that owns the hypervisor handle, exactly the
// "one owning task plus message passing" shape called out for the
// VM Engine. Commands submitted by one caller complete in submission
// order because the channel preserves FIFO order and there is exactly
// one consumer.
type engineCore struct {
	cmdCh     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func newEngineCore() *engineCore {
	c := &engineCore{
		cmdCh: make(chan func(), 16),
		done:  make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *engineCore) run() {
	for fn := range c.cmdCh {
		fn()
	}
}

// stop closes the command channel, letting run() drain and exit. No
// further submissions are accepted afterward.
func (c *engineCore) stop() {
	c.closeOnce.Do(func() {
		close(c.cmdCh)
		close(c.done)
	})
}

// submit enqueues fn onto the serial queue and blocks until fn has run,
// ctx expires, or the engine has stopped. fn records its result in a
// variable it closes over, which the caller reads once submit returns
// nil.
func (c *engineCore) submit(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	wrapped := func() {
		fn()
		close(ran)
	}

	select {
	case c.cmdCh <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errStopped
	}

	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
