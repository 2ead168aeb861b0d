package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/CZERTAINLY/mdsetup/internal/model"
)

// containerWorkDir is where the job directory is mounted inside the container.
const containerWorkDir = "/work"

// DockerLauncher runs every script in a fresh container, the job directory
// bind mounted at /work.
type DockerLauncher struct {
	cli     *client.Client
	image   string
	cmd     []string
	cpuset  string
	env     []string
	timeout time.Duration
}

func NewDockerLauncher(cfg model.Worker) (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("initializing docker client: %w", err)
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	return &DockerLauncher{
		cli:     cli,
		image:   cfg.Docker.Image,
		cmd:     cfg.Docker.Cmd,
		cpuset:  cfg.Docker.Cpuset,
		env:     cfg.Command.EnvList(),
		timeout: timeout,
	}, nil
}

func (l *DockerLauncher) WorkDir(string) string {
	return containerWorkDir
}

func (l *DockerLauncher) Launch(ctx context.Context, hostDir, script string, out io.Writer) (Worker, error) {
	abs, err := filepath.Abs(hostDir)
	if err != nil {
		return nil, err
	}

	config := &container.Config{
		Image:      l.image,
		Cmd:        append(slices.Clone(l.cmd), script),
		Env:        l.env,
		WorkingDir: containerWorkDir,
	}
	hostConfig := &container.HostConfig{
		Binds: []string{abs + ":" + containerWorkDir},
		Resources: container.Resources{
			CpusetCpus: l.cpuset,
		},
	}

	resp, err := l.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil && client.IsErrNotFound(err) {
		if err = l.pull(ctx); err == nil {
			resp, err = l.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create failed: %w", err)
	}
	w := &containerWorker{
		cli:  l.cli,
		id:   resp.ID,
		done: make(chan struct{}),
		result: Result{
			Path: l.image,
			Args: config.Cmd,
		},
	}

	// the container outlives the request which started it
	var waitCtx context.Context
	var cancel context.CancelFunc
	if l.timeout > 0 {
		waitCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	} else {
		waitCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	// subscribe before start, so a fast exit is not missed
	statusCh, errCh := l.cli.ContainerWait(waitCtx, resp.ID, container.WaitConditionNextExit)

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		cancel()
		w.remove(ctx)
		return nil, fmt.Errorf("start failed: %w", err)
	}
	w.result.Started = time.Now().UTC()

	logs, err := l.cli.ContainerLogs(waitCtx, resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		cancel()
		_ = w.Kill()
		w.remove(ctx)
		return nil, fmt.Errorf("attaching logs failed: %w", err)
	}

	slog.DebugContext(ctx, "container started", "id", resp.ID, "image", l.image)
	go w.wait(waitCtx, cancel, logs, out, statusCh, errCh)
	return w, nil
}

// pull fetches the worker image, missing locally.
func (l *DockerLauncher) pull(ctx context.Context) error {
	slog.InfoContext(ctx, "pulling worker image", "image", l.image)
	rc, err := l.cli.ImagePull(ctx, l.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	defer func() {
		_ = rc.Close()
	}()
	// the pull is done once the progress stream ends
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (l *DockerLauncher) Close() error {
	return l.cli.Close()
}

type containerWorker struct {
	cli    *client.Client
	id     string
	mx     sync.Mutex
	result Result
	done   chan struct{}
}

func (w *containerWorker) wait(ctx context.Context, cancel context.CancelFunc, logs io.ReadCloser, out io.Writer, statusCh <-chan container.WaitResponse, errCh <-chan error) {
	defer cancel()
	// the log stream is multiplexed, stdout and stderr go to the same place
	if _, err := stdcopy.StdCopy(out, out, logs); err != nil && !errors.Is(err, io.EOF) {
		slog.DebugContext(ctx, "container output dropped", "id", w.id, "error", err)
		_, _ = io.Copy(io.Discard, logs)
	}
	_ = logs.Close()

	var exitCode int
	var err error
	select {
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
		if status.Error != nil {
			err = errors.New(status.Error.Message)
		} else if exitCode != 0 {
			err = fmt.Errorf("container exited with status %d", exitCode)
		}
	case err = <-errCh:
		exitCode = -1
		if errors.Is(err, context.DeadlineExceeded) {
			_ = w.Kill()
		}
	}

	w.mx.Lock()
	w.result.Stopped = time.Now().UTC()
	w.result.ExitCode = exitCode
	w.result.Err = err
	w.mx.Unlock()

	w.remove(ctx)
	close(w.done)
}

func (w *containerWorker) remove(ctx context.Context) {
	err := w.cli.ContainerRemove(context.WithoutCancel(ctx), w.id, container.RemoveOptions{Force: true})
	if err != nil {
		slog.WarnContext(ctx, "removing container failed", "id", w.id, "error", err)
	}
}

func (w *containerWorker) Done() <-chan struct{} {
	return w.done
}

func (w *containerWorker) Result() Result {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.result
}

func (w *containerWorker) Kill() error {
	err := w.cli.ContainerKill(context.Background(), w.id, "SIGKILL")
	if err != nil && client.IsErrNotFound(err) {
		return nil
	}
	return err
}
