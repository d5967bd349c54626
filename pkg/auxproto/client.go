package auxproto

import (
	"fmt"
	"net"
	"sync"

	"akari/pkg/akarierr"
)

// Client is a single persistent aux.sock connection. Callers (the CLI
// and the shim adapter) hold one Client for the process lifetime and
// serialize calls through it, matching spec.md's one-connection-per-
// client model.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *Encoder
	dec  *Decoder
}

// Dial connects to the aux.sock Unix socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, akarierr.Wrap(akarierr.Io, "dialing aux.sock", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an already-established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, enc: NewEncoder(conn), dec: NewDecoder(conn)}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends req and returns the decoded response. Requests are
// serialized: aux.sock is a simple request/response protocol with no
// pipelining.
func (c *Client) Call(req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enc.Encode(req); err != nil {
		return Response{}, akarierr.Wrap(akarierr.Serialization, "encoding aux.sock request", err)
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return Response{}, akarierr.Wrap(akarierr.Io, "decoding aux.sock response", err)
	}
	return resp, nil
}

// CallExpectOK performs Call and collapses a non-nil Response.Err into
// a Go error.
func (c *Client) CallExpectOK(req Request) (Response, error) {
	resp, err := c.Call(req)
	if err != nil {
		return resp, err
	}
	if !resp.OK() {
		return resp, fmt.Errorf("%s: %w", req.Method, resp.Err)
	}
	return resp, nil
}
