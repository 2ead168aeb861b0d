package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/mdsetup/internal/files"
	"github.com/CZERTAINLY/mdsetup/internal/jobstore"
	"github.com/CZERTAINLY/mdsetup/internal/log"
	"github.com/CZERTAINLY/mdsetup/internal/model"
	"github.com/CZERTAINLY/mdsetup/internal/output"
	"github.com/CZERTAINLY/mdsetup/internal/script"
)

// Supervisor runs the simulation jobs of one session. Only the most recent
// job is live: Start supersedes the previous one, and Poll and Cancel act
// on the current job.
type Supervisor struct {
	launcher  Launcher
	uploaders []model.Uploader
	store     jobstore.Store
	session   string
	capacity  int
	now       func() time.Time

	mx      sync.Mutex
	current *Job
	group   errgroup.Group
}

type Option func(*Supervisor)

func WithUploaders(uploaders ...model.Uploader) Option {
	return func(s *Supervisor) {
		s.uploaders = uploaders
	}
}

func WithStore(store jobstore.Store) Option {
	return func(s *Supervisor) {
		s.store = store
	}
}

func WithSession(id string) Option {
	return func(s *Supervisor) {
		s.session = id
	}
}

// WithCapacity sets how many output chunks may be buffered before the
// worker blocks.
func WithCapacity(n int) Option {
	return func(s *Supervisor) {
		s.capacity = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

func NewSupervisor(launcher Launcher, opts ...Option) *Supervisor {
	s := &Supervisor{
		launcher: launcher,
		store:    jobstore.NewMemory(),
		capacity: output.DefaultCapacity,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start compiles the script and launches it in workDir. Invalid snapshots
// are rejected with *model.ConfigurationError or *model.UnknownPlatformError
// before anything is touched. Once the job exists, setup failures are
// reported through its output stream only, and Start returns the job.
func (s *Supervisor) Start(ctx context.Context, snap model.Snapshot, reg files.Registry, workDir string) (*Job, error) {
	dir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, err
	}
	compiled, err := script.Compile(snap, files.Names(reg), script.Options{
		Internal: true,
		WorkDir:  s.launcher.WorkDir(dir),
		Date:     s.now(),
	})
	if err != nil {
		return nil, err
	}

	job := newJob(uuid.NewString(), s.session, dir, s.capacity, s.now())
	ctx = log.ContextAttrs(context.WithoutCancel(ctx), slog.Group("job",
		slog.String("id", job.ID()),
		slog.String("session", s.session),
	))
	s.supersede(ctx, job)
	job.running(s.now())
	s.save(ctx, job)
	slog.InfoContext(ctx, "starting job", "dir", dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.fail(ctx, job, &DirectoryCreationError{Dir: dir, Err: err})
		return job, nil
	}
	if name, err := files.Materialize(dir, reg); err != nil {
		s.fail(ctx, job, &FileCopyError{Name: name, Err: err})
		return job, nil
	}
	if err := os.WriteFile(filepath.Join(dir, script.FileName), compiled.Bytes(), 0o644); err != nil {
		s.fail(ctx, job, &FileCopyError{Name: script.FileName, Err: err})
		return job, nil
	}

	worker, err := s.launcher.Launch(ctx, dir, script.FileName, job.out.Writer())
	if err != nil {
		s.fail(ctx, job, &LaunchError{Err: err})
		return job, nil
	}
	job.attach(worker)
	s.group.Go(func() error {
		s.watch(ctx, job, worker)
		return nil
	})
	return job, nil
}

func (s *Supervisor) supersede(ctx context.Context, job *Job) {
	s.mx.Lock()
	prev := s.current
	s.current = job
	s.mx.Unlock()
	if prev != nil && !prev.State().Terminal() {
		slog.InfoContext(ctx, "superseding running job", "previous", prev.ID())
		prev.Cancel()
		s.save(ctx, prev)
	}
}

func (s *Supervisor) fail(ctx context.Context, job *Job, err error) {
	slog.ErrorContext(ctx, "job setup failed", "error", err)
	job.fail(err, s.now())
	s.save(ctx, job)
}

func (s *Supervisor) watch(ctx context.Context, job *Job, worker Worker) {
	<-worker.Done()
	res := worker.Result()
	job.finish(res)
	s.save(ctx, job)

	state := job.State()
	slog.InfoContext(ctx, "job finished", "state", state.String(), "exit_code", res.ExitCode, "error", res.Err)
	if state != StateCompleted || len(s.uploaders) == 0 {
		return
	}

	raw, err := files.ArchiveDir(job.WorkDir())
	if err != nil {
		slog.ErrorContext(ctx, "archiving results failed", "error", err)
		return
	}
	if err := s.upload(ctx, ArchiveName(job.ID()), raw); err != nil {
		slog.ErrorContext(ctx, "upload failed", "error", err)
	}
}

// ArchiveName is the name uploaded results of a job are stored under.
func ArchiveName(jobID string) string {
	return "openmm_simulation-" + jobID + ".zip"
}

// upload hands the archive to all uploaders at once.
func (s *Supervisor) upload(ctx context.Context, name string, raw []byte) error {
	var g errgroup.Group
	errs := make([]error, len(s.uploaders))
	for i, u := range s.uploaders {
		g.Go(func() error {
			errs[i] = u.Upload(ctx, name, raw)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *Supervisor) save(ctx context.Context, job *Job) {
	if err := s.store.Save(ctx, job.Record()); err != nil {
		slog.WarnContext(ctx, "saving job record failed", "error", err)
	}
}

// Current returns the live job, nil if none was started.
func (s *Supervisor) Current() *Job {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.current
}

// Busy reports whether the current job has not finished yet.
func (s *Supervisor) Busy() bool {
	job := s.Current()
	return job != nil && !job.State().Terminal()
}

// Poll returns the output of the current job buffered since the last call.
// It never blocks. The boolean is false when no job was started, or the
// stream ended and was drained, or the job was cancelled.
func (s *Supervisor) Poll() (string, bool) {
	job := s.Current()
	if job == nil {
		return "", false
	}
	return job.Poll()
}

// Cancel kills the current job and drops its unread output. It returns
// once the kill was requested.
func (s *Supervisor) Cancel(ctx context.Context) {
	job := s.Current()
	if job == nil {
		return
	}
	job.Cancel()
	s.save(ctx, job)
}

// Status returns the record of a job of this supervisor, live or finished.
func (s *Supervisor) Status(ctx context.Context, id string) (jobstore.Record, error) {
	if job := s.Current(); job != nil && job.ID() == id {
		return job.Record(), nil
	}
	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, jobstore.ErrNotFound) {
		return jobstore.Record{}, ErrJobNotFound
	}
	if err == nil && s.session != "" && rec.Session != s.session {
		return jobstore.Record{}, ErrJobNotFound
	}
	return rec, err
}

// Close cancels the current job and waits for all workers to exit.
func (s *Supervisor) Close(ctx context.Context) {
	s.Cancel(ctx)
	_ = s.group.Wait()
}
