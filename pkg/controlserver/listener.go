package controlserver

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"

	"github.com/containerd/containerd/oci"

	"akari/pkg/akarierr"
	"akari/pkg/auxproto"
	"akari/pkg/log"
)

// ListenAndServe binds the aux.sock Unix socket at path, removing a
// stale socket file left by a previous run (mirrors the original
// server's explicit check-and-remove on startup), and serves aux.sock
// RPCs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return akarierr.Wrap(akarierr.Io, "removing stale aux.sock", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return akarierr.Wrap(akarierr.Io, "creating aux.sock directory", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return akarierr.Wrap(akarierr.Io, "binding aux.sock", err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	logger := log.GetLogger(ctx).WithField("component", "controlserver")
	logger.WithField("path", path).Info("listening on aux.sock")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return akarierr.Wrap(akarierr.Io, "accepting aux.sock connection", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	dec := auxproto.NewDecoder(conn)
	enc := auxproto.NewEncoder(conn)
	logger := log.GetLogger(ctx).WithField("component", "controlserver")

	for {
		var req auxproto.Request
		if err := dec.Decode(&req); err != nil {
			return
		}

		resp := s.dispatch(ctx, req)
		if err := enc.Encode(resp); err != nil {
			logger.WithError(err).Debug("encoding aux.sock response")
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req auxproto.Request) auxproto.Response {
	switch req.Method {
	case auxproto.MethodCreate:
		spec, err := oci.ReadSpec(filepath.Join(req.Bundle, "config.json"))
		if err != nil {
			return auxproto.Response{Err: akarierr.Wrap(akarierr.ConfigInvalid, "reading bundle config.json", err)}
		}
		if err := s.Create(ctx, req, spec); err != nil {
			return auxproto.Response{Err: toAkariErr(err)}
		}
		return auxproto.Response{}

	case auxproto.MethodStart:
		if err := s.Start(ctx, req.ContainerID); err != nil {
			return auxproto.Response{Err: toAkariErr(err)}
		}
		return auxproto.Response{}

	case auxproto.MethodKill:
		if err := s.Kill(ctx, req.ContainerID, req.Signal); err != nil {
			return auxproto.Response{Err: toAkariErr(err)}
		}
		return auxproto.Response{}

	case auxproto.MethodDelete:
		if err := s.Delete(ctx, req.ContainerID); err != nil {
			return auxproto.Response{Err: toAkariErr(err)}
		}
		return auxproto.Response{}

	case auxproto.MethodState:
		state, err := s.State(ctx, req.ContainerID)
		if err != nil {
			return auxproto.Response{Err: toAkariErr(err)}
		}
		return auxproto.Response{State: &state}

	case auxproto.MethodConnect:
		if err := s.Connect(ctx, req.ContainerID, req.Port); err != nil {
			return auxproto.Response{Err: toAkariErr(err)}
		}
		return auxproto.Response{}

	default:
		return auxproto.Response{Err: akarierr.New(akarierr.Serialization, "unknown method")}
	}
}

func toAkariErr(err error) *akarierr.Error {
	var ak *akarierr.Error
	if errors.As(err, &ak) {
		// The wrapped cause does not cross the wire; keep the agent's
		// own error text as the AgentError payload.
		if ak.Kind == akarierr.AgentError && ak.Payload == "" {
			if cause := ak.Unwrap(); cause != nil {
				ak.Payload = cause.Error()
			}
		}
		return ak
	}
	return akarierr.Wrap(akarierr.Io, "unexpected error", err)
}
