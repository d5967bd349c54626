package controlserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"akari/pkg/akarierr"
	"akari/pkg/guestwire"
	"akari/pkg/metrics"
	"akari/pkg/ports"
)

// guestConn is a single persistent NUL-delimited-JSON connection to the
// guest agent, shared machinery for both the bootstrap client and
// per-container sessions. A mutex serializes frames on the connection,
// which matters most for the bootstrap connection (one connection used
// across every container's Create call).
type guestConn struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *guestwire.Encoder
	dec  *guestwire.Decoder
}

func newGuestConn(conn net.Conn) *guestConn {
	return &guestConn{conn: conn, enc: guestwire.NewEncoder(conn), dec: guestwire.NewDecoder(conn)}
}

func (g *guestConn) roundTrip(req guestwire.Request) (guestwire.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.AgentRequestDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(start).Seconds())
	}()

	if err := g.enc.Encode(req); err != nil {
		return guestwire.Response{}, akarierr.Wrap(akarierr.Serialization, "encoding guest request", err)
	}

	var resp guestwire.Response
	if err := g.dec.Decode(&resp); err != nil {
		return guestwire.Response{}, akarierr.Wrap(akarierr.Io, "reading guest response", err)
	}
	return resp, nil
}

func (g *guestConn) Close() error {
	return g.conn.Close()
}

// bootstrapClient implements ports.GuestBootstrap over the agent's
// well-known bootstrap vsock port.
type bootstrapClient struct {
	*guestConn
}

func (b *bootstrapClient) Create(ctx context.Context, containerID string, spec *specs.Spec, port uint32) error {
	resp, err := b.roundTrip(guestwire.Request{Kind: guestwire.RequestCreate, Spec: spec, VsockPort: port})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return akarierr.Wrap(akarierr.AgentError, fmt.Sprintf("agent rejected create for %s", containerID), resp.Err)
	}
	return nil
}

// guestSession implements ports.GuestSession over a container's
// dedicated per-container vsock port.
type guestSession struct {
	*guestConn
}

var _ ports.GuestSession = (*guestSession)(nil)
var _ ports.GuestBootstrap = (*bootstrapClient)(nil)

func (s *guestSession) Start(ctx context.Context) error {
	resp, err := s.roundTrip(guestwire.Request{Kind: guestwire.RequestStart})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return akarierr.Wrap(akarierr.AgentError, "agent rejected start", resp.Err)
	}
	return nil
}

func (s *guestSession) Kill(ctx context.Context, signal int) error {
	resp, err := s.roundTrip(guestwire.Request{Kind: guestwire.RequestKill, Signal: signal})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return akarierr.Wrap(akarierr.AgentError, "agent rejected kill", resp.Err)
	}
	return nil
}

func (s *guestSession) Delete(ctx context.Context) error {
	resp, err := s.roundTrip(guestwire.Request{Kind: guestwire.RequestDelete})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return akarierr.Wrap(akarierr.AgentError, "agent rejected delete", resp.Err)
	}
	return nil
}

func (s *guestSession) State(ctx context.Context) (ports.GuestStateInfo, error) {
	resp, err := s.roundTrip(guestwire.Request{Kind: guestwire.RequestState})
	if err != nil {
		return ports.GuestStateInfo{}, err
	}
	if !resp.OK() {
		return ports.GuestStateInfo{}, akarierr.Wrap(akarierr.AgentError, "agent rejected state", resp.Err)
	}
	return ports.GuestStateInfo{Status: resp.Status, Pid: resp.Pid}, nil
}
