package guestagent

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// supervisedProcess is the guest-local process a container's lifecycle
// operations act on. Grounded on the bootstrap agent's own process
// construction: args[0] as the binary, the remainder as arguments, cwd
// and env copied through verbatim. Process supervision beyond this is
// out of scope; only the RPC contract around it is specified.
type supervisedProcess struct {
	cmd *exec.Cmd
}

func newSupervisedProcess(proc *specs.Process) (*supervisedProcess, error) {
	if proc == nil || len(proc.Args) == 0 {
		return nil, fmt.Errorf("process spec has no args")
	}

	cmd := exec.Command(proc.Args[0], proc.Args[1:]...)
	if proc.Cwd != "" {
		cmd.Dir = proc.Cwd
	}
	cmd.Env = append(cmd.Env, proc.Env...)
	// Setpgid puts the process in its own group so kill can signal the
	// whole group rather than just the directly-spawned pid.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	return &supervisedProcess{cmd: cmd}, nil
}

// start spawns the process. Matches the resolved Open Question: Create
// only configures the command, Start is what actually spawns it.
func (p *supervisedProcess) start() error {
	return p.cmd.Start()
}

func (p *supervisedProcess) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// kill forwards signal to the process group (negative pid), honoring
// the resolved Open Question that kill(signal) is meaningful rather
// than ignored.
func (p *supervisedProcess) kill(signal int) error {
	if p.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return syscall.Kill(-p.cmd.Process.Pid, syscall.Signal(signal))
}

// wait reaps the process so it does not linger as a zombie after
// delete.
func (p *supervisedProcess) wait() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "already called") {
		return nil
	}
	return err
}
