// Package guestagent implements the in-VM side of the host/guest
// control protocol: a bootstrap listener that accepts Create requests,
// and one listener per container thereafter for the rest of its
// lifecycle.
package guestagent

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"akari/pkg/akarierr"
	"akari/pkg/defaults"
	"akari/pkg/guestwire"
	"akari/pkg/log"
	"akari/pkg/models"
)

// ListenFunc binds a vsock listener on port. The real binary supplies
// one backed by github.com/mdlayher/vsock; tests supply one backed by
// in-memory or Unix listeners.
type ListenFunc func(port uint32) (net.Listener, error)

type container struct {
	mu     sync.Mutex
	status models.Status
	proc   *supervisedProcess
}

// Agent is the guest-side daemon.
type Agent struct {
	listen ListenFunc

	mu         sync.Mutex
	containers map[string]*container
}

// New returns an Agent that binds vsock listeners via listen.
func New(listen ListenFunc) *Agent {
	return &Agent{listen: listen, containers: make(map[string]*container)}
}

// Serve binds the bootstrap listener and accepts connections until ctx
// is cancelled or the listener fails.
func (a *Agent) Serve(ctx context.Context) error {
	listener, err := a.listen(defaults.BootstrapAgentPort)
	if err != nil {
		return fmt.Errorf("binding bootstrap listener on port %d: %w", defaults.BootstrapAgentPort, err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	logger := log.GetLogger(ctx).WithField("component", "guestagent")
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting bootstrap connection: %w", err)
		}
		go a.handleBootstrap(ctx, conn)
		logger.Debug("accepted bootstrap connection")
	}
}

func (a *Agent) handleBootstrap(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	dec := guestwire.NewDecoder(conn)
	enc := guestwire.NewEncoder(conn)

	for {
		var req guestwire.Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		if req.Kind != guestwire.RequestCreate {
			enc.Encode(guestwire.Response{Err: akarierr.New(akarierr.Serialization, "bootstrap port only accepts create")})
			continue
		}

		resp := a.handleCreate(ctx, req)
		enc.Encode(resp)
	}
}

func (a *Agent) handleCreate(ctx context.Context, req guestwire.Request) guestwire.Response {
	if req.Spec == nil || req.Spec.Process == nil {
		return guestwire.Response{Err: akarierr.New(akarierr.ConfigInvalid, "create request missing process spec")}
	}

	proc, err := newSupervisedProcess(req.Spec.Process)
	if err != nil {
		return guestwire.Response{Err: akarierr.Wrap(akarierr.ConfigInvalid, "configuring process", err)}
	}

	c := &container{status: models.StatusCreated, proc: proc}

	a.mu.Lock()
	a.containers[containerKeyForPort(req.VsockPort)] = c
	a.mu.Unlock()

	listener, err := a.listen(req.VsockPort)
	if err != nil {
		return guestwire.Response{Err: akarierr.Wrap(akarierr.Io, "binding per-container listener", err)}
	}
	go a.serveContainer(ctx, req.VsockPort, c, listener)

	return guestwire.Response{}
}

func containerKeyForPort(port uint32) string {
	return fmt.Sprintf("port-%d", port)
}

func (a *Agent) serveContainer(ctx context.Context, port uint32, c *container, listener net.Listener) {
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	logger := log.GetLogger(ctx).WithField("port", port)
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go a.handleContainerConn(logger, c, conn)
	}
}

// handleContainerConn serves every request on one connection
// sequentially, rejecting a call that overlaps one already in flight
// for this container (testable property 3: at most one in-flight
// agent call per container).
func (a *Agent) handleContainerConn(logger *logrus.Entry, c *container, conn net.Conn) {
	defer conn.Close()

	dec := guestwire.NewDecoder(conn)
	enc := guestwire.NewEncoder(conn)

	for {
		var req guestwire.Request
		if err := dec.Decode(&req); err != nil {
			return
		}

		if !c.mu.TryLock() {
			enc.Encode(guestwire.Response{Err: akarierr.New(akarierr.UnexpectedStatus, "call already in flight")})
			continue
		}
		resp := a.dispatch(c, req)
		c.mu.Unlock()

		if err := enc.Encode(resp); err != nil {
			logger.WithError(err).Debug("encoding response")
			return
		}
	}
}

// dispatch runs req against c. Caller must hold c.mu.
func (a *Agent) dispatch(c *container, req guestwire.Request) guestwire.Response {
	switch req.Kind {
	case guestwire.RequestStart:
		if c.status != models.StatusCreated {
			return guestwire.Response{Err: akarierr.New(akarierr.UnexpectedStatus, string(c.status))}
		}
		if err := c.proc.start(); err != nil {
			return guestwire.Response{Err: akarierr.Wrap(akarierr.VmCommandFailed, "starting process", err)}
		}
		c.status = models.StatusRunning
		go c.proc.wait()
		pid := c.proc.pid()
		return guestwire.Response{Status: string(c.status), Pid: &pid}

	case guestwire.RequestKill:
		if c.status != models.StatusCreated && c.status != models.StatusRunning {
			return guestwire.Response{Err: akarierr.New(akarierr.UnexpectedStatus, string(c.status))}
		}
		// A Created container has no process yet, so there is nothing
		// to signal.
		if c.status == models.StatusRunning {
			if err := c.proc.kill(req.Signal); err != nil {
				return guestwire.Response{Err: akarierr.Wrap(akarierr.VmCommandFailed, "signaling process", err)}
			}
		}
		c.status = models.StatusStopped
		return guestwire.Response{Status: string(c.status)}

	case guestwire.RequestDelete:
		if c.status != models.StatusCreated && c.status != models.StatusStopped {
			return guestwire.Response{Err: akarierr.New(akarierr.UnexpectedStatus, string(c.status))}
		}
		return guestwire.Response{Status: string(c.status)}

	case guestwire.RequestState:
		pid := c.proc.pid()
		return guestwire.Response{Status: string(c.status), Pid: &pid}

	default:
		return guestwire.Response{Err: akarierr.New(akarierr.Serialization, fmt.Sprintf("unknown request kind %q", req.Kind))}
	}
}
