// Package controlserver implements the Control Server: the host-side
// daemon that tracks the container-state map, allocates vsock ports,
// drives the container lifecycle state machine, and forwards
// per-container RPCs to the Guest Agent over the Multiplexer.
package controlserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/spf13/afero"

	"akari/pkg/akarierr"
	"akari/pkg/auxproto"
	"akari/pkg/defaults"
	"akari/pkg/log"
	"akari/pkg/metrics"
	"akari/pkg/models"
	"akari/pkg/ports"
)

// Server is the Control Server. It owns the VM Engine, the container
// state map, and the per-container guest sessions established over it.
type Server struct {
	fs     afero.Fs
	root   string
	engine ports.VMEngine

	states *models.StateMap

	sessionsMu sync.Mutex
	sessions   map[string]*guestSession

	bootstrap *bootstrapClient
}

// New constructs a Server around an already-configured, already-started
// VMEngine, and dials its bootstrap vsock connection. root is $ROOT,
// the directory holding aux.sock, vm.json.base, and the shared/
// per-container bind points.
func New(ctx context.Context, fs afero.Fs, root string, engine ports.VMEngine) (*Server, error) {
	s := &Server{
		fs:       fs,
		root:     root,
		engine:   engine,
		states:   models.NewStateMap(),
		sessions: make(map[string]*guestSession),
	}

	if err := fs.MkdirAll(filepath.Join(root, "shared"), defaults.DataDirPerm); err != nil {
		return nil, akarierr.Wrap(akarierr.Io, "creating shared bind-point directory", err)
	}

	bootstrapPath := defaults.HostEndpointPath(defaults.BootstrapAgentPort)
	if err := engine.Connect(ctx, defaults.BootstrapAgentPort, bootstrapPath); err != nil {
		return nil, akarierr.Wrap(akarierr.VmCommandFailed, "connecting bootstrap vsock port", err)
	}
	conn, err := dialWithRetry(ctx, bootstrapPath)
	if err != nil {
		return nil, akarierr.Wrap(akarierr.Io, "dialing bootstrap endpoint", err)
	}
	s.bootstrap = &bootstrapClient{guestConn: newGuestConn(conn)}

	return s, nil
}

// sharedBindPoint is the per-container bind point under $ROOT/shared/
// that exposes a container's rootfs to the guest via the VM Engine's
// shared-directory mechanism.
func (s *Server) sharedBindPoint(containerID string) string {
	return filepath.Join(s.root, "shared", containerID)
}

func dialWithRetry(ctx context.Context, path string) (net.Conn, error) {
	deadline := time.Now().Add(5 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("dialing %s: %w", path, lastErr)
}

// Create implements the `create` operation: allocate a port, hand the
// guest the OCI spec over the bootstrap port, and only then record the
// container as Created.
func (s *Server) Create(ctx context.Context, req auxproto.Request, spec *specs.Spec) error {
	logger := log.GetLogger(ctx).WithField("container", req.ContainerID)

	s.states.Lock()
	defer s.states.Unlock()

	if _, exists := s.states.GetLocked(req.ContainerID); exists {
		return akarierr.New(akarierr.ContainerAlreadyExists, req.ContainerID)
	}

	port := s.states.AllocatePort()

	if err := s.bootstrap.Create(ctx, req.ContainerID, spec, port); err != nil {
		logger.WithError(err).Warn("agent rejected create")
		return err
	}
	metrics.PortsAllocated.Inc()

	endpointPath := defaults.HostEndpointPath(port)
	if err := s.engine.Connect(ctx, port, endpointPath); err != nil {
		return akarierr.Wrap(akarierr.VmCommandFailed, "connecting container vsock port", err)
	}
	metrics.ActiveProxies.Inc()

	conn, err := dialWithRetry(ctx, endpointPath)
	if err != nil {
		_ = s.engine.Disconnect(ctx, port)
		metrics.ActiveProxies.Dec()
		return akarierr.Wrap(akarierr.Io, "dialing container endpoint", err)
	}

	container := &models.Container{
		ID:         req.ContainerID,
		BundlePath: req.Bundle,
		RootfsPath: req.Rootfs,
		Stdin:      req.Stdin,
		Stdout:     req.Stdout,
		Stderr:     req.Stderr,
		Status:     models.StatusCreated,
		VsockPort:  port,
	}
	if spec != nil && spec.Annotations != nil {
		container.Annotations = spec.Annotations
	}

	if linker, ok := s.fs.(afero.Linker); ok {
		linkPath := s.sharedBindPoint(req.ContainerID)
		if err := linker.SymlinkIfPossible(req.Rootfs, linkPath); err == nil {
			container.BundleSymlinkOwned = true
		} else {
			logger.WithError(err).Debug("shared bind-point symlink not created")
		}
	}

	s.states.InsertLocked(container)
	s.sessionsMu.Lock()
	s.sessions[req.ContainerID] = &guestSession{guestConn: newGuestConn(conn)}
	s.sessionsMu.Unlock()

	metrics.ContainersByStatus.WithLabelValues(string(models.StatusCreated)).Inc()

	return nil
}

func (s *Server) sessionFor(id string) (*guestSession, bool) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Start implements the `start` operation.
func (s *Server) Start(ctx context.Context, containerID string) error {
	s.states.Lock()
	defer s.states.Unlock()

	container, ok := s.states.GetLocked(containerID)
	if !ok {
		return akarierr.New(akarierr.ContainerNotFound, containerID)
	}
	if container.Status != models.StatusCreated {
		return akarierr.New(akarierr.UnexpectedStatus, containerID).WithPayload(string(container.Status))
	}

	sess, ok := s.sessionFor(containerID)
	if !ok {
		return akarierr.New(akarierr.ThreadNotFound, containerID)
	}
	if err := sess.Start(ctx); err != nil {
		return err
	}
	if info, err := sess.State(ctx); err == nil {
		container.Pid = info.Pid
	}

	metrics.ContainersByStatus.WithLabelValues(string(container.Status)).Dec()
	container.Status = models.StatusRunning
	metrics.ContainersByStatus.WithLabelValues(string(container.Status)).Inc()
	return nil
}

// Kill implements the `kill` operation, forwarding signal to the guest.
func (s *Server) Kill(ctx context.Context, containerID string, signal int) error {
	s.states.Lock()
	defer s.states.Unlock()

	container, ok := s.states.GetLocked(containerID)
	if !ok {
		return akarierr.New(akarierr.ContainerNotFound, containerID)
	}
	if container.Status != models.StatusCreated && container.Status != models.StatusRunning {
		return akarierr.New(akarierr.UnexpectedStatus, containerID).WithPayload(string(container.Status))
	}

	sess, ok := s.sessionFor(containerID)
	if !ok {
		return akarierr.New(akarierr.ThreadNotFound, containerID)
	}
	if err := sess.Kill(ctx, signal); err != nil {
		return err
	}

	metrics.ContainersByStatus.WithLabelValues(string(container.Status)).Dec()
	container.Status = models.StatusStopped
	metrics.ContainersByStatus.WithLabelValues(string(container.Status)).Inc()
	return nil
}

// Delete implements the `delete` operation.
func (s *Server) Delete(ctx context.Context, containerID string) error {
	s.states.Lock()
	defer s.states.Unlock()

	container, ok := s.states.GetLocked(containerID)
	if !ok {
		return akarierr.New(akarierr.ContainerNotFound, containerID)
	}
	if container.Status != models.StatusCreated && container.Status != models.StatusStopped {
		return akarierr.New(akarierr.UnexpectedStatus, containerID).WithPayload(string(container.Status))
	}

	sess, ok := s.sessionFor(containerID)
	if ok {
		if err := sess.Delete(ctx); err != nil {
			return err
		}
	}

	if err := s.engine.Disconnect(ctx, container.VsockPort); err != nil {
		log.GetLogger(ctx).WithError(err).Warn("disconnecting container vsock port")
	} else {
		metrics.ActiveProxies.Dec()
	}

	if container.BundleSymlinkOwned {
		linkPath := s.sharedBindPoint(containerID)
		if err := s.fs.Remove(linkPath); err != nil && !os.IsNotExist(err) {
			log.GetLogger(ctx).WithError(err).Warn("removing shared bind-point symlink")
		}
	}

	s.sessionsMu.Lock()
	if sess, ok := s.sessions[containerID]; ok {
		sess.Close()
		delete(s.sessions, containerID)
	}
	s.sessionsMu.Unlock()

	metrics.ContainersByStatus.WithLabelValues(string(container.Status)).Dec()
	s.states.RemoveLocked(containerID)
	return nil
}

// State implements the `state` operation.
func (s *Server) State(ctx context.Context, containerID string) (auxproto.StateResponse, error) {
	s.states.RLock()
	container, ok := s.states.GetLocked(containerID)
	s.states.RUnlock()
	if !ok {
		return auxproto.StateResponse{}, akarierr.New(akarierr.ContainerNotFound, containerID)
	}

	return auxproto.StateResponse{
		ContainerID: container.ID,
		Status:      string(container.Status),
		Pid:         container.Pid,
		Bundle:      container.BundlePath,
	}, nil
}

// Connect implements the `connect` operation: an additional guest vsock
// proxy on an arbitrary port, legal only while the container is
// Running (general-purpose access per SPEC_FULL.md's Open Question
// resolution, not limited to console streams).
func (s *Server) Connect(ctx context.Context, containerID string, port uint32) error {
	s.states.RLock()
	container, ok := s.states.GetLocked(containerID)
	s.states.RUnlock()
	if !ok {
		return akarierr.New(akarierr.ContainerNotFound, containerID)
	}
	if container.Status != models.StatusRunning {
		return akarierr.New(akarierr.UnexpectedStatus, containerID).WithPayload(string(container.Status))
	}

	endpointPath := defaults.HostEndpointPath(port)
	if err := s.engine.Connect(ctx, port, endpointPath); err != nil {
		return akarierr.Wrap(akarierr.VmCommandFailed, "connecting vsock port", err)
	}
	metrics.ActiveProxies.Inc()
	return nil
}
