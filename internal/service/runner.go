package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

var (
	ErrWorkerNotStarted = errors.New("worker not started")
	ErrWorkerInProgress = errors.New("worker in progress")
)

// Runner executes one worker process. Stdout and stderr share a single pipe,
// so the interleaving of progress and error text is kept.
type Runner struct {
	mx         sync.RWMutex
	cmd        *exec.Cmd
	cancelFunc context.CancelFunc
	result     Result
	done       chan struct{}
}

func NewRunner() *Runner {
	return &Runner{
		result: Result{Err: ErrWorkerNotStarted},
	}
}

type Command struct {
	Path    string
	Args    []string
	Env     []string
	Dir     string
	Timeout time.Duration
}

type Result struct {
	Path     string
	Args     []string
	Started  time.Time
	Stopped  time.Time
	ExitCode int
	Err      error
}

// Success reports a clean exit with status zero.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Start runs the process and copies its output into out. It returns
// ErrWorkerInProgress or an exec error, otherwise nil. It does NOT wait
// for the process, use Done instead.
func (r *Runner) Start(ctx context.Context, proto Command, out io.Writer) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.cmd != nil {
		return ErrWorkerInProgress
	}

	r.result = Result{
		Path: proto.Path,
		Args: append([]string(nil), proto.Args...),
	}

	if proto.Timeout == 0 {
		ctx, r.cancelFunc = context.WithCancel(ctx)
	} else {
		ctx, r.cancelFunc = context.WithTimeout(ctx, proto.Timeout)
	}

	cmd := exec.CommandContext(ctx, r.result.Path, r.result.Args...)
	cmd.Dir = proto.Dir
	cmd.Env = append(os.Environ(), proto.Env...)
	setProcAttr(cmd)
	cmd.Cancel = func() error {
		return killGroup(cmd)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		r.fail(err)
		return err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	r.result.Started = time.Now().UTC()
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		r.fail(err)
		return err
	}
	// the child holds its own copy
	_ = pw.Close()

	slog.DebugContext(ctx, "worker started", "path", proto.Path, "pid", cmd.Process.Pid, "dir", proto.Dir)
	r.cmd = cmd
	r.done = make(chan struct{})
	go r.wait(ctx, cmd, pr, out, r.done)
	return nil
}

func (r *Runner) fail(err error) {
	r.result.Stopped = time.Now().UTC()
	r.result.Err = err
	r.cancelFunc()
}

func (r *Runner) wait(ctx context.Context, cmd *exec.Cmd, pr *os.File, out io.Writer, done chan struct{}) {
	if _, err := io.Copy(out, pr); err != nil {
		slog.DebugContext(ctx, "worker output dropped", "error", err)
		// keep reading so the process never blocks on a full pipe
		_, _ = io.Copy(io.Discard, pr)
	}
	_ = pr.Close()

	err := cmd.Wait()
	r.cancelFunc()
	stopped := time.Now().UTC()

	r.mx.Lock()
	r.result.Stopped = stopped
	r.result.Err = err
	if cmd.ProcessState != nil {
		r.result.ExitCode = cmd.ProcessState.ExitCode()
	}
	r.cmd = nil
	r.mx.Unlock()
	close(done)
}

// Done returns a channel closed once the process exited and all its output
// was copied. It is nil before Start.
func (r *Runner) Done() <-chan struct{} {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.done
}

// Kill terminates the process and all its children. Killing a process which
// already exited is a no-op.
func (r *Runner) Kill() error {
	r.mx.RLock()
	cmd := r.cmd
	r.mx.RUnlock()
	if cmd == nil {
		return nil
	}
	err := killGroup(cmd)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Result returns the last result, or a result with ErrWorkerNotStarted
// if nothing has been started yet.
func (r *Runner) Result() Result {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.result
}
