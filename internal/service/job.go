package service

import (
	"sync"
	"time"

	"github.com/CZERTAINLY/mdsetup/internal/jobstore"
	"github.com/CZERTAINLY/mdsetup/internal/output"
)

type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the job can't change its state anymore.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Job is one execution of a simulation script. It owns the output stream
// and the worker.
type Job struct {
	id      string
	session string
	workDir string
	out     *output.Channel

	mx       sync.Mutex
	state    State
	worker   Worker
	err      error
	exitCode int
	created  time.Time
	started  time.Time
	stopped  time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func newJob(id, session, workDir string, capacity int, now time.Time) *Job {
	return &Job{
		id:      id,
		session: session,
		workDir: workDir,
		out:     output.New(capacity),
		state:   StateNotStarted,
		created: now,
		done:    make(chan struct{}),
	}
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) WorkDir() string {
	return j.workDir
}

func (j *Job) State() State {
	j.mx.Lock()
	defer j.mx.Unlock()
	return j.state
}

// Err returns the setup or worker error of a failed job.
func (j *Job) Err() error {
	j.mx.Lock()
	defer j.mx.Unlock()
	return j.err
}

// Done is closed once the job reached a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Poll returns the output buffered since the last call. The boolean is
// false once the stream ended and was drained, or was discarded.
func (j *Job) Poll() (string, bool) {
	return j.out.Poll()
}

func (j *Job) running(now time.Time) {
	j.mx.Lock()
	defer j.mx.Unlock()
	j.state = StateRunning
	j.started = now
}

// attach binds a launched worker. A job cancelled in the meantime kills it
// right away.
func (j *Job) attach(w Worker) {
	j.mx.Lock()
	j.worker = w
	cancelled := j.state == StateCancelled
	j.mx.Unlock()
	if cancelled {
		_ = w.Kill()
	}
}

// fail reports a setup error through the stream and ends it.
func (j *Job) fail(err error, now time.Time) {
	j.mx.Lock()
	if !j.state.Terminal() {
		j.state = StateFailed
		j.err = err
		j.stopped = now
	}
	j.mx.Unlock()
	_ = j.out.Send(err.Error() + "\n")
	j.out.End()
	j.close()
}

// finish records the exit of the worker and ends the stream.
func (j *Job) finish(res Result) {
	j.mx.Lock()
	j.exitCode = res.ExitCode
	j.stopped = res.Stopped
	if j.state == StateRunning {
		if res.Success() {
			j.state = StateCompleted
		} else {
			j.state = StateFailed
			j.err = res.Err
		}
	}
	j.mx.Unlock()
	j.out.End()
	j.close()
}

// Cancel kills the worker and discards the stream. It does not wait for the
// worker to exit.
func (j *Job) Cancel() {
	j.mx.Lock()
	if !j.state.Terminal() {
		j.state = StateCancelled
		j.stopped = time.Now().UTC()
	}
	w := j.worker
	j.mx.Unlock()

	j.out.Discard()
	if w != nil {
		_ = w.Kill()
	}
}

func (j *Job) close() {
	j.closeOnce.Do(func() {
		close(j.done)
	})
}

// Record is the status of the job as kept in the job store.
func (j *Job) Record() jobstore.Record {
	j.mx.Lock()
	defer j.mx.Unlock()
	rec := jobstore.Record{
		ID:        j.id,
		Session:   j.session,
		State:     j.state.String(),
		WorkDir:   j.workDir,
		ExitCode:  j.exitCode,
		CreatedAt: j.created,
	}
	if j.err != nil {
		rec.Error = j.err.Error()
	}
	if !j.started.IsZero() {
		started := j.started
		rec.StartedAt = &started
	}
	if !j.stopped.IsZero() {
		stopped := j.stopped
		rec.StoppedAt = &stopped
	}
	return rec
}
