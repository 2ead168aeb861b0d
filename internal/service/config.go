package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CZERTAINLY/mdsetup/internal/jobstore"
	"github.com/CZERTAINLY/mdsetup/internal/model"
)

// DefaultRootName is the directory under the home dir jobs run in, unless
// jobs.root says otherwise.
const DefaultRootName = "openmm_simulation"

// Service holds everything built from the configuration the supervisors of
// all sessions share.
type Service struct {
	Root      string
	Launcher  Launcher
	Uploaders []model.Uploader
	Store     jobstore.Store
	Capacity  int
	// TTL is how long job records and idle sessions are kept, zero keeps
	// them for the life of the service.
	TTL           time.Duration
	SweepSchedule model.Schedule

	closers []io.Closer
}

// NewService wires the launcher, the uploaders and the job store configured
// in cfg. The returned service must be closed.
func NewService(ctx context.Context, cfg model.Config) (*Service, error) {
	root, err := jobsRoot(cfg.Jobs)
	if err != nil {
		return nil, err
	}
	ttl, err := cfg.Jobs.TTLDuration()
	if err != nil {
		return nil, err
	}
	svc := &Service{
		Root:          root,
		Capacity:      cfg.Worker.Buffer,
		TTL:           ttl,
		SweepSchedule: cfg.Jobs.Sweep,
	}

	launcher, err := newLauncher(cfg.Worker)
	if err != nil {
		return nil, err
	}
	svc.Launcher = launcher
	if c, ok := launcher.(io.Closer); ok {
		svc.closers = append(svc.closers, c)
	}

	if err := svc.initUploaders(ctx, cfg.Upload); err != nil {
		_ = svc.Close()
		return nil, err
	}
	if err := svc.initStore(ctx, cfg.Jobs); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

func jobsRoot(cfg model.Jobs) (string, error) {
	if cfg.Root != "" {
		return filepath.Abs(cfg.Root)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving jobs root: %w", err)
	}
	return filepath.Join(home, DefaultRootName), nil
}

func newLauncher(cfg model.Worker) (Launcher, error) {
	switch cfg.Launcher {
	case model.LauncherDocker:
		return NewDockerLauncher(cfg)
	case model.LauncherProcess, "":
		cmd, err := Cmd(cfg)
		if err != nil {
			return nil, err
		}
		return NewProcessLauncher(cmd), nil
	default:
		return nil, fmt.Errorf("unsupported launcher %q", cfg.Launcher)
	}
}

// Cmd returns the worker command prototype of the process launcher.
func Cmd(cfg model.Worker) (Command, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return Command{}, err
	}
	return Command{
		Path:    cfg.Command.Path,
		Args:    cfg.Command.Args,
		Env:     cfg.Command.EnvList(),
		Timeout: timeout,
	}, nil
}

func (s *Service) initUploaders(ctx context.Context, cfg model.Upload) error {
	if cfg.Stdout {
		s.Uploaders = append(s.Uploaders, NewWriteUploader(os.Stdout))
	}
	if cfg.Dir != "" {
		u, err := NewOSRootUploader(cfg.Dir)
		if err != nil {
			return fmt.Errorf("initializing upload dir: %w", err)
		}
		s.Uploaders = append(s.Uploaders, u)
		s.closers = append(s.closers, u)
	}
	if cfg.S3.Enabled() {
		u, err := NewS3Uploader(ctx, cfg.S3)
		if err != nil {
			return err
		}
		s.Uploaders = append(s.Uploaders, u)
	}
	return nil
}

func (s *Service) initStore(ctx context.Context, cfg model.Jobs) error {
	if cfg.Store != model.StoreRedis {
		s.Store = jobstore.NewMemory()
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connecting to redis %s: %w", cfg.Redis.Addr, err)
	}
	store := jobstore.NewRedis(client, s.TTL)
	s.Store = store
	s.closers = append(s.closers, store)
	return nil
}

// Supervisor returns a new supervisor bound to session.
func (s *Service) Supervisor(session string) *Supervisor {
	return NewSupervisor(s.Launcher,
		WithSession(session),
		WithStore(s.Store),
		WithUploaders(s.Uploaders...),
		WithCapacity(s.Capacity),
	)
}

// WorkDir returns the directory a job started with dir runs in. Relative
// paths are resolved against the jobs root, an empty dir is the root itself.
func (s *Service) WorkDir(dir string) string {
	if dir == "" {
		return s.Root
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(s.Root, dir)
}

func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	err := errors.Join(errs...)
	if err != nil {
		slog.Warn("closing service", "error", err)
	}
	return err
}
