// Package vsockmux implements the Vsock Multiplexer: per connected
// port, a bidirectional proxy between a host-side local-stream socket
// and a guest-side virtio-socket connection surfaced by the VM Engine.
package vsockmux

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"akari/pkg/log"
)

// proxy owns both halves of one connected port. Per the design note in
// SPEC_FULL.md, the Multiplexer holds only a handle to terminate the
// proxy, never a shared byte-queue map.
type proxy struct {
	listener net.Listener
	guest    net.Conn
	done     chan struct{}
}

// Multiplexer tracks the set of currently-connected ports.
type Multiplexer struct {
	mu     sync.Mutex
	active map[uint32]*proxy
}

// New returns an empty Multiplexer.
func New() *Multiplexer {
	return &Multiplexer{active: make(map[uint32]*proxy)}
}

// Connect creates a local-stream listener at hostEndpointPath (removing
// any stale file first), accepts exactly one client, and splices it
// with guestConn. It returns once the listener is bound; the splice
// itself runs in a background goroutine for the life of the
// connection.
func (m *Multiplexer) Connect(port uint32, hostEndpointPath string, guestConn net.Conn) error {
	m.mu.Lock()
	if _, exists := m.active[port]; exists {
		m.mu.Unlock()
		return fmt.Errorf("port %d already connected", port)
	}
	m.mu.Unlock()

	if err := os.Remove(hostEndpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale endpoint %s: %w", hostEndpointPath, err)
	}

	listener, err := net.Listen("unix", hostEndpointPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", hostEndpointPath, err)
	}

	p := &proxy{listener: listener, guest: guestConn, done: make(chan struct{})}

	m.mu.Lock()
	m.active[port] = p
	m.mu.Unlock()

	go m.serve(port, p)

	return nil
}

func (m *Multiplexer) serve(port uint32, p *proxy) {
	defer close(p.done)
	defer p.listener.Close()

	logger := log.GetLogger(context.Background()).WithFields(logrus.Fields{"component": "vsockmux", "port": port})

	client, err := p.listener.Accept()
	if err != nil {
		logger.WithError(err).Warn("accepting host-side client")
		p.guest.Close()
		return
	}
	defer client.Close()
	defer p.guest.Close()

	errc := make(chan error, 2)
	go func() {
		_, err := io.Copy(p.guest, client)
		errc <- err
	}()
	go func() {
		_, err := io.Copy(client, p.guest)
		errc <- err
	}()

	if err := <-errc; err != nil && err != io.EOF {
		logger.WithError(err).Warn("proxy copy loop ended")
	}
}

// Disconnect closes the proxy for port and removes its mapping. A
// subsequent Connect on the same port is legal once this returns.
func (m *Multiplexer) Disconnect(port uint32) error {
	m.mu.Lock()
	p, ok := m.active[port]
	if ok {
		delete(m.active, port)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("port %d not connected", port)
	}

	p.listener.Close()
	p.guest.Close()
	<-p.done
	return nil
}
