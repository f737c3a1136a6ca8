package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Runner executes the analysis for one job. Returning an error wrapping
// ErrCancelled settles the job as cancelled; any other error fails it.
type Runner func(ctx context.Context, jobID string) (any, error)

// ErrQueueFull is returned by Submit when every worker is busy and the
// backlog is at capacity.
var ErrQueueFull = errors.New("job queue is full")

// ErrStopped is returned by Submit after Shutdown.
var ErrStopped = errors.New("supervisor stopped")

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	Workers   int
	Backlog   int
	Retention time.Duration
	Logger    *log.Logger
	Meter     otelmetric.Meter
}

type task struct {
	jobID string
	run   Runner
}

// Supervisor runs jobs on a fixed pool of workers so the request path never
// blocks and job goroutines cannot grow without bound.
type Supervisor struct {
	store   *MemoryStore
	queue   chan task
	logger  *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool

	retention time.Duration

	started  otelmetric.Int64Counter
	finished otelmetric.Int64Counter
	duration otelmetric.Float64Histogram
}

// NewSupervisor starts the worker pool.
func NewSupervisor(store *MemoryStore, opts SupervisorOptions) *Supervisor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Backlog < 0 {
		opts.Backlog = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	meter := opts.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("job")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		store:     store,
		queue:     make(chan task, opts.Backlog),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		stop:      make(chan struct{}),
		retention: opts.Retention,
	}
	var err error
	if s.started, err = meter.Int64Counter("credence_jobs_started_total"); err != nil {
		logger.Printf("warn: create jobs started counter: %v", err)
	}
	if s.finished, err = meter.Int64Counter("credence_jobs_finished_total"); err != nil {
		logger.Printf("warn: create jobs finished counter: %v", err)
	}
	if s.duration, err = meter.Float64Histogram("credence_job_duration_seconds", otelmetric.WithUnit("s")); err != nil {
		logger.Printf("warn: create job duration histogram: %v", err)
	}

	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	if s.retention > 0 {
		s.wg.Add(1)
		go s.janitor()
	}
	return s
}

// Submit queues run for jobID without blocking.
func (s *Supervisor) Submit(jobID string, run Runner) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrStopped
	}
	select {
	case s.queue <- task{jobID: jobID, run: run}:
		return nil
	default:
		return fmt.Errorf("submit %s: %w", jobID, ErrQueueFull)
	}
}

// Shutdown stops accepting work and waits for running jobs until ctx is done.
// Queued jobs that never started are failed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stop)
		close(s.queue)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *Supervisor) worker(n int) {
	defer s.wg.Done()
	for t := range s.queue {
		if s.isStopping() {
			_, _ = s.store.Fail(t.jobID, "server shutting down")
			continue
		}
		s.execute(t)
	}
	s.logger.Printf("worker %d exiting", n)
}

func (s *Supervisor) isStopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Supervisor) execute(t task) {
	ok, err := s.store.Start(t.jobID)
	if err != nil {
		s.logger.Printf("job %s: start: %v", t.jobID, err)
		return
	}
	if !ok {
		s.logger.Printf("job %s: not pending, skipping", t.jobID)
		return
	}
	if s.started != nil {
		s.started.Add(s.ctx, 1)
	}
	begin := time.Now()
	result, runErr := s.safeRun(t)

	var status Status
	switch {
	case errors.Is(runErr, ErrCancelled):
		_ = s.store.AppendProgress(t.jobID, "Analysis cancelled by user", nil)
		_, _ = s.store.MarkCancelled(t.jobID)
		status = StatusCancelled
	case runErr != nil:
		_, _ = s.store.Fail(t.jobID, runErr.Error())
		status = StatusFailed
	default:
		_, _ = s.store.Complete(t.jobID, result)
		status = StatusCompleted
	}
	if j, found := s.store.Get(t.jobID); found {
		status = j.Status
	}
	elapsed := time.Since(begin)
	s.logger.Printf("job %s: %s in %s", t.jobID, status, elapsed.Round(time.Millisecond))
	attrs := otelmetric.WithAttributes(attribute.String("status", string(status)))
	if s.finished != nil {
		s.finished.Add(s.ctx, 1, attrs)
	}
	if s.duration != nil {
		s.duration.Record(s.ctx, elapsed.Seconds(), attrs)
	}
}

func (s *Supervisor) safeRun(t task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("job %s: panic: %v\n%s", t.jobID, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.run(s.ctx, t.jobID)
}

func (s *Supervisor) janitor() {
	defer s.wg.Done()
	interval := s.retention / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.store.Prune(time.Now().Add(-s.retention)); n > 0 {
				s.logger.Printf("pruned %d expired jobs", n)
			}
		}
	}
}
