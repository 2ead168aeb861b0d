package service

import (
	"context"
	"io"
	"slices"
)

// Worker is a running simulation script in its own execution context.
type Worker interface {
	// Done is closed once the worker exited and its output was copied.
	Done() <-chan struct{}
	// Result is valid after Done is closed.
	Result() Result
	// Kill terminates the worker forcefully, it does not wait for the exit.
	Kill() error
}

// Launcher starts scripts written into a job directory.
type Launcher interface {
	// WorkDir maps a job directory on this host to the path the worker sees.
	WorkDir(hostDir string) string
	// Launch runs script from hostDir, copying stdout and stderr into out.
	Launch(ctx context.Context, hostDir, script string, out io.Writer) (Worker, error)
}

// ProcessLauncher runs the script as a local child process: the configured
// interpreter with the script name appended as the last argument.
type ProcessLauncher struct {
	Command Command
}

func NewProcessLauncher(cmd Command) ProcessLauncher {
	return ProcessLauncher{Command: cmd}
}

func (l ProcessLauncher) WorkDir(hostDir string) string {
	return hostDir
}

func (l ProcessLauncher) Launch(ctx context.Context, hostDir, script string, out io.Writer) (Worker, error) {
	proto := l.Command
	proto.Args = append(slices.Clone(proto.Args), script)
	proto.Dir = hostDir

	runner := NewRunner()
	if err := runner.Start(ctx, proto, out); err != nil {
		return nil, err
	}
	return runner, nil
}
