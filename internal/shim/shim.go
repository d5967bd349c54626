// Package shim implements the containerd shim-v2 task service. The
// shim owns no VM state: every method is a thin translation to the
// aux.sock JSON RPC exposed by the Control Server, which is the sole VM
// owner. The shim process exists only to speak ttrpc to containerd on
// one side and aux.sock JSON on the other.
package shim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	taskAPI "github.com/containerd/containerd/api/runtime/task/v2"
	"github.com/containerd/containerd/api/types/task"
	"github.com/containerd/containerd/events/exchange"
	"github.com/containerd/containerd/protobuf"
	"github.com/containerd/containerd/runtime/v2/shim"
	"golang.org/x/sys/unix"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	emptypb "google.golang.org/protobuf/types/known/emptypb"

	"akari/pkg/akarierr"
	"akari/pkg/auxproto"
	"akari/pkg/defaults"
)

const ID = "akari"

// AkariShim is the containerd shim-v2 entrypoint. It holds one
// persistent aux.sock connection for its whole lifetime, dialed on
// the first task call; every subsequent call reuses it.
type AkariShim struct {
	id        string
	auxSock   string
	shimCtx   context.Context //nolint:containedctx
	exchange  *exchange.Exchange
	shimCancel func()

	client *auxproto.Client
}

func (s *AkariShim) ensureClient() (*auxproto.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	client, err := auxproto.Dial(s.auxSock)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

// statusFromAkariErr maps an akarierr.Kind to the nearest ttrpc/grpc
// status code so containerd's client can distinguish "not found" from
// "already exists" from everything else.
func statusFromAkariErr(err error) error {
	if err == nil {
		return nil
	}
	var kind akarierr.Kind
	var ae *akarierr.Error
	if errors.As(err, &ae) {
		kind = ae.Kind
	}
	switch kind {
	case akarierr.ContainerNotFound, akarierr.ThreadNotFound:
		return status.Error(codes.NotFound, err.Error())
	case akarierr.ContainerAlreadyExists:
		return status.Error(codes.AlreadyExists, err.Error())
	case akarierr.UnexpectedStatus, akarierr.ConfigInvalid:
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}

func (s *AkariShim) Create(ctx context.Context, req *taskAPI.CreateTaskRequest) (*taskAPI.CreateTaskResponse, error) {
	client, err := s.ensureClient()
	if err != nil {
		return nil, statusFromAkariErr(err)
	}

	rootfs := ""
	if len(req.GetRootfs()) == 1 {
		rootfs = req.GetRootfs()[0].GetSource()
	}

	_, err = client.CallExpectOK(auxproto.Request{
		Method:      auxproto.MethodCreate,
		ContainerID: req.GetID(),
		Bundle:      req.GetBundle(),
		Rootfs:      rootfs,
		Stdin:       req.GetStdin(),
		Stdout:      req.GetStdout(),
		Stderr:      req.GetStderr(),
	})
	if err != nil {
		return nil, statusFromAkariErr(err)
	}

	return &taskAPI.CreateTaskResponse{}, nil
}

func (s *AkariShim) Start(ctx context.Context, req *taskAPI.StartRequest) (*taskAPI.StartResponse, error) {
	client, err := s.ensureClient()
	if err != nil {
		return nil, statusFromAkariErr(err)
	}

	_, err = client.CallExpectOK(auxproto.Request{Method: auxproto.MethodStart, ContainerID: req.GetID()})
	if err != nil {
		return nil, statusFromAkariErr(err)
	}

	state, err := s.state(req.GetID())
	if err != nil {
		return nil, err
	}

	var pid uint32
	if state.Pid != nil {
		pid = uint32(*state.Pid)
	}
	return &taskAPI.StartResponse{Pid: pid}, nil
}

func (s *AkariShim) Delete(ctx context.Context, req *taskAPI.DeleteRequest) (*taskAPI.DeleteResponse, error) {
	client, err := s.ensureClient()
	if err != nil {
		return nil, statusFromAkariErr(err)
	}

	_, err = client.CallExpectOK(auxproto.Request{Method: auxproto.MethodDelete, ContainerID: req.GetID()})
	if err != nil {
		return nil, statusFromAkariErr(err)
	}

	return &taskAPI.DeleteResponse{
		ExitedAt:   protobuf.ToTimestamp(time.Now()),
		ExitStatus: 0,
	}, nil
}

func (s *AkariShim) Kill(ctx context.Context, req *taskAPI.KillRequest) (*emptypb.Empty, error) {
	client, err := s.ensureClient()
	if err != nil {
		return nil, statusFromAkariErr(err)
	}

	_, err = client.CallExpectOK(auxproto.Request{
		Method:      auxproto.MethodKill,
		ContainerID: req.GetID(),
		Signal:      int(req.GetSignal()),
	})
	if err != nil {
		return nil, statusFromAkariErr(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *AkariShim) state(containerID string) (*auxproto.StateResponse, error) {
	client, err := s.ensureClient()
	if err != nil {
		return nil, statusFromAkariErr(err)
	}

	resp, err := client.CallExpectOK(auxproto.Request{Method: auxproto.MethodState, ContainerID: containerID})
	if err != nil {
		return nil, statusFromAkariErr(err)
	}
	return resp.State, nil
}

func (s *AkariShim) State(ctx context.Context, req *taskAPI.StateRequest) (*taskAPI.StateResponse, error) {
	state, err := s.state(req.GetID())
	if err != nil {
		return nil, err
	}

	resp := &taskAPI.StateResponse{
		ID:     state.ContainerID,
		Bundle: state.Bundle,
		Status: shimStatus(state.Status),
	}
	if state.Pid != nil {
		resp.Pid = uint32(*state.Pid)
	}
	return resp, nil
}

func shimStatus(status string) task.Status {
	switch status {
	case "created":
		return task.Status_CREATED
	case "running":
		return task.Status_RUNNING
	case "stopped":
		return task.Status_STOPPED
	default:
		return task.Status_UNKNOWN
	}
}

func (s *AkariShim) Connect(ctx context.Context, req *taskAPI.ConnectRequest) (*taskAPI.ConnectResponse, error) {
	client, err := s.ensureClient()
	if err != nil {
		return nil, statusFromAkariErr(err)
	}

	state, err := s.state(req.GetID())
	if err != nil {
		return nil, err
	}
	var pid uint32
	if state.Pid != nil {
		pid = uint32(*state.Pid)
	}

	_, err = client.CallExpectOK(auxproto.Request{Method: auxproto.MethodConnect, ContainerID: req.GetID()})
	if err != nil {
		return nil, statusFromAkariErr(err)
	}

	return &taskAPI.ConnectResponse{ShimPid: uint32(os.Getpid()), TaskPid: pid}, nil
}

func (s *AkariShim) Shutdown(ctx context.Context, req *taskAPI.ShutdownRequest) (*emptypb.Empty, error) {
	s.shimCancel()
	return &emptypb.Empty{}, nil
}

func (s *AkariShim) Cleanup(_ context.Context) (*taskAPI.DeleteResponse, error) {
	return &taskAPI.DeleteResponse{
		ExitedAt:   protobuf.ToTimestamp(time.Now()),
		ExitStatus: 128 + uint32(unix.SIGKILL),
	}, nil
}

// The methods from Pids through Stats are RPC surface spec.md declares
// out of scope (exec processes, pause/resume, checkpoint/restore, pty
// resize, stats) and are unimplemented per the shim-adapter contract.

func (s *AkariShim) Pids(ctx context.Context, req *taskAPI.PidsRequest) (*taskAPI.PidsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "pids not supported")
}

func (s *AkariShim) Pause(ctx context.Context, req *taskAPI.PauseRequest) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "pause not supported")
}

func (s *AkariShim) Resume(ctx context.Context, req *taskAPI.ResumeRequest) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "resume not supported")
}

func (s *AkariShim) Checkpoint(ctx context.Context, req *taskAPI.CheckpointTaskRequest) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "checkpoint not supported")
}

func (s *AkariShim) Exec(ctx context.Context, req *taskAPI.ExecProcessRequest) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "exec not supported")
}

func (s *AkariShim) ResizePty(ctx context.Context, req *taskAPI.ResizePtyRequest) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "resize_pty not supported")
}

func (s *AkariShim) CloseIO(ctx context.Context, req *taskAPI.CloseIORequest) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "close_io not supported")
}

func (s *AkariShim) Update(ctx context.Context, req *taskAPI.UpdateTaskRequest) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "update not supported")
}

func (s *AkariShim) Wait(ctx context.Context, req *taskAPI.WaitRequest) (*taskAPI.WaitResponse, error) {
	return nil, status.Error(codes.Unimplemented, "wait not supported")
}

func (s *AkariShim) Stats(ctx context.Context, req *taskAPI.StatsRequest) (*taskAPI.StatsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "stats not supported")
}

func (s *AkariShim) StartShim(ctx context.Context, opts shim.StartOpts) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("getting self exe: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	cmd, err := shim.Command(ctx, &shim.CommandConfig{
		Runtime:      exe,
		Address:      opts.Address,
		TTRPCAddress: opts.TTRPCAddress,
		Path:         cwd,
		SchedCore:    false,
		Args:         []string{},
	})
	if err != nil {
		return "", fmt.Errorf("creating shim command: %w", err)
	}

	sockAddr, err := shim.SocketAddress(ctx, opts.Address, s.id)
	if err != nil {
		return "", fmt.Errorf("getting socket address: %w", err)
	}

	socket, err := shim.NewSocket(sockAddr)
	if err != nil {
		return "", fmt.Errorf("creating shim socket: %w", err)
	}

	if err := shim.WriteAddress("address", sockAddr); err != nil {
		return "", fmt.Errorf("writing socket address file: %w", err)
	}

	sockF, err := socket.File()
	if err != nil {
		sockF.Close()
		return "", fmt.Errorf("getting shim socket: %w", err)
	}
	cmd.ExtraFiles = append(cmd.ExtraFiles, sockF)

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("starting shim command: %w", err)
	}
	if err := shim.AdjustOOMScore(cmd.Process.Pid); err != nil {
		return "", fmt.Errorf("adjusting shim process OOM score: %w", err)
	}

	return sockAddr, nil
}

// Run registers and starts the shim-v2 process.
func Run() {
	shim.Run(ID,
		func(ctx context.Context, id string, _ shim.Publisher, shimCancel func()) (shim.Shim, error) {
			return &AkariShim{
				id:         id,
				auxSock:    defaults.AuxSockPath(defaults.Root()),
				shimCtx:    ctx,
				exchange:   exchange.NewExchange(),
				shimCancel: shimCancel,
			}, nil
		},
	)
}
