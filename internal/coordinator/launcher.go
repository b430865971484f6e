package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/psearch/internal/infrastructure/logging"
	"github.com/GriffinCanCode/psearch/internal/ipc"
	"github.com/GriffinCanCode/psearch/internal/worker"
)

// Process is a started worker.
type Process interface {
	// Wait blocks until the worker terminates and returns its exit code.
	Wait() (int, error)
}

// Launcher starts one worker per invocation.
type Launcher interface {
	Start(ctx context.Context, inv worker.Invocation) (Process, error)
}

// ExecLauncher runs every worker as a child process of the given
// executable, normally the running binary itself.
type ExecLauncher struct {
	Executable string
	// Env is appended to the inherited environment.
	Env []string
}

// NewExecLauncher returns a launcher that re-executes the running binary.
func NewExecLauncher() (*ExecLauncher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return &ExecLauncher{Executable: exe}, nil
}

// Start forks the worker. A pipe endpoint becomes descriptor 3 in the child.
func (l *ExecLauncher) Start(ctx context.Context, inv worker.Invocation) (Process, error) {
	if inv.Endpoint.File != nil {
		inv.Endpoint.Address = fmt.Sprint(ipc.InheritedFD)
	}

	cmd := exec.CommandContext(ctx, l.Executable, worker.Args(inv)...)
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, worker.RoleEnv+"="+worker.RoleWorker)
	cmd.Env = append(cmd.Env, l.Env...)
	cmd.Stderr = os.Stderr
	if inv.Endpoint.File != nil {
		cmd.ExtraFiles = []*os.File{inv.Endpoint.File}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %d: %w", inv.Task.Index, err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// InProcessLauncher runs workers on goroutines. Inherited descriptors are
// duplicated so each worker owns its copy exactly like a child would.
type InProcessLauncher struct {
	Logger *logging.Logger
}

// Start runs the worker role on a new goroutine.
func (l *InProcessLauncher) Start(ctx context.Context, inv worker.Invocation) (Process, error) {
	if inv.Endpoint.File != nil {
		fd, err := unix.Dup(int(inv.Endpoint.File.Fd()))
		if err != nil {
			return nil, fmt.Errorf("failed to duplicate descriptor for worker %d: %w", inv.Task.Index, err)
		}
		unix.CloseOnExec(fd)
		inv.Endpoint.File = os.NewFile(uintptr(fd), "pipe")
	}

	logger := l.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	p := &goroutineProcess{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.code = worker.Run(ctx, inv, logger)
	}()
	return p, nil
}

type goroutineProcess struct {
	done chan struct{}
	code int
}

func (p *goroutineProcess) Wait() (int, error) {
	<-p.done
	return p.code, nil
}
