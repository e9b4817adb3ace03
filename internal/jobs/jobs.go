// Package jobs runs pipeline inputs asynchronously behind an in-memory queue
// with per-job status tracking.
package jobs

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Reve1io/BomProcessorBackend/internal/pipeline"
	"github.com/google/uuid"
)

// State is the lifecycle position of a submitted job.
type State string

const (
	StateQueued    State = "Queued"
	StateRunning   State = "Running"
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
)

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Runner executes one pipeline input. Satisfied by (*pipeline.Pipeline).Run.
type Runner func(ctx context.Context, in pipeline.Input) (pipeline.Output, error)

// Status is a point-in-time snapshot of a job.
type Status struct {
	ID         string           `json:"id"`
	State      State            `json:"state"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Output     *pipeline.Output `json:"output,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type job struct {
	id         string
	input      pipeline.Input
	state      State
	enqueuedAt time.Time
	startedAt  time.Time
	finishedAt time.Time
	output     *pipeline.Output
	err        string
}

// Options configures a Manager.
type Options struct {
	// Workers is the number of concurrent job executors. Defaults to 2.
	Workers int
	// QueueSize bounds how many jobs may wait. Submit fails once the queue is
	// full. Defaults to 64.
	QueueSize int
	// JobTimeout bounds a single job run. Large inputs fan out into many
	// upstream calls, so the default is deliberately long: 4 hours.
	JobTimeout time.Duration

	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 4 * time.Hour
	}
	return o
}

// Manager owns the queue, the worker pool, and the job table.
type Manager struct {
	run    Runner
	opts   Options
	logger *log.Logger

	queue  chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
}

// NewManager builds a stopped Manager; call Start before submitting.
func NewManager(run Runner, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		run:    run,
		opts:   opts,
		logger: opts.Logger,
		queue:  make(chan string, opts.QueueSize),
		jobs:   make(map[string]*job),
	}
}

// Start launches the worker pool. Workers exit when the parent context is
// cancelled or Stop is called.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	for i := 0; i < m.opts.Workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}
	m.logf("job manager started: workers=%d queueSize=%d timeout=%s", m.opts.Workers, m.opts.QueueSize, m.opts.JobTimeout)
}

// Stop closes intake, cancels running jobs, and waits for workers to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	alreadyClosed := m.closed
	m.closed = true
	m.mu.Unlock()
	if alreadyClosed {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logf("job manager stopped")
}

// Submit enqueues an input and returns the new job's id. It fails when the
// manager is stopped or the queue is full; it never blocks.
func (m *Manager) Submit(in pipeline.Input) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", fmt.Errorf("job manager is stopped")
	}

	j := &job{
		id:         uuid.NewString(),
		input:      in,
		state:      StateQueued,
		enqueuedAt: time.Now(),
	}

	select {
	case m.queue <- j.id:
	default:
		return "", fmt.Errorf("job queue is full (%d pending)", cap(m.queue))
	}

	m.jobs[j.id] = j
	m.logf("job enqueued: job=%s items=%d mode=%s", j.id, len(in.Items), in.Mode)
	return j.id, nil
}

// Status returns a snapshot of the job, and whether the id is known.
func (m *Manager) Status(id string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Status{}, false
	}
	return j.snapshot(), true
}

func (j *job) snapshot() Status {
	s := Status{
		ID:         j.id,
		State:      j.state,
		EnqueuedAt: j.enqueuedAt,
		Output:     j.output,
		Error:      j.err,
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		s.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		s.FinishedAt = &t
	}
	return s
}

func (m *Manager) worker(n int) {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case id := <-m.queue:
			m.execute(n, id)
		}
	}
}

// execute runs one job under the job timeout, converting errors and panics
// into a Failed terminal state.
func (m *Manager) execute(worker int, id string) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	j.state = StateRunning
	j.startedAt = time.Now()
	input := j.input
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(m.ctx, m.opts.JobTimeout)
	defer cancel()

	out, err := m.runSafely(ctx, input)

	m.mu.Lock()
	defer m.mu.Unlock()
	j.finishedAt = time.Now()
	if err != nil {
		j.state = StateFailed
		j.err = err.Error()
		m.logf("job failed: job=%s worker=%d duration=%s err=%q", id, worker, j.finishedAt.Sub(j.startedAt).Round(time.Millisecond), err.Error())
		return
	}
	j.state = StateCompleted
	j.output = &out
	m.logf("job completed: job=%s worker=%d duration=%s", id, worker, j.finishedAt.Sub(j.startedAt).Round(time.Millisecond))
}

// runSafely recovers a panicking run so one bad job cannot take down the
// worker pool.
func (m *Manager) runSafely(ctx context.Context, in pipeline.Input) (out pipeline.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			m.logf("job panic: %v\n%s", r, debug.Stack())
		}
	}()
	return m.run(ctx, in)
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Printf(format, args...)
}
