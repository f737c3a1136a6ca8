package job

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker is the worker-side view of a job used by the pipelines.
type Tracker interface {
	AppendProgress(id, message string, detail map[string]any) error
	IsCancelled(id string) bool
}

// Store is the job table shared by the front door, the supervisor and the
// pipelines.
type Store interface {
	Tracker
	Create(content string) string
	Get(id string) (Job, bool)
	Start(id string) (bool, error)
	Complete(id string, result any) (bool, error)
	Fail(id string, msg string) (bool, error)
	Cancel(id string) (bool, error)
	MarkCancelled(id string) (bool, error)
	Subscribe(ctx context.Context, id string) (<-chan Event, error)
}

type record struct {
	mu        sync.Mutex
	job       Job
	cancelled bool
	// changed is closed and replaced on every mutation to wake subscribers.
	changed chan struct{}
}

// MemoryStore is a concurrency-safe in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*record
	observers []Observer
	logger    *log.Logger
	debug     bool
	now       func() time.Time
}

// StoreOption configures a MemoryStore.
type StoreOption func(*MemoryStore)

// WithLogger sets the store logger. debug enables debug-level lines.
func WithLogger(l *log.Logger, debug bool) StoreOption {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
		s.debug = debug
	}
}

// WithObserver registers an observer notified of every mutation.
func WithObserver(o Observer) StoreOption {
	return func(s *MemoryStore) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// NewMemoryStore builds an empty store.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		jobs:   make(map[string]*record),
		logger: log.New(io.Discard, "", 0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a pending job and returns its id.
func (s *MemoryStore) Create(content string) string {
	now := s.now().UTC()
	rec := &record{
		job: Job{
			ID:        uuid.NewString(),
			Content:   content,
			Status:    StatusPending,
			Progress:  []ProgressEntry{},
			CreatedAt: now,
			UpdatedAt: now,
		},
		changed: make(chan struct{}),
	}
	s.mu.Lock()
	s.jobs[rec.job.ID] = rec
	s.mu.Unlock()
	s.notifyStatus(rec.job.ID, StatusPending)
	return rec.job.ID
}

// Get returns a snapshot of the job, or false when the id is unknown.
func (s *MemoryStore) Get(id string) (Job, bool) {
	rec := s.lookup(id)
	if rec == nil {
		return Job{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot(), true
}

// AppendProgress adds one entry to the job's log. Entries written after the
// job reached a terminal state are dropped.
func (s *MemoryStore) AppendProgress(id, message string, detail map[string]any) error {
	rec := s.lookup(id)
	if rec == nil {
		return fmt.Errorf("append progress %s: %w", id, ErrNotFound)
	}
	rec.mu.Lock()
	if rec.job.Status.Terminal() {
		rec.mu.Unlock()
		s.debugf("job %s: progress after %s ignored: %s", id, rec.job.Status, message)
		return nil
	}
	entry := ProgressEntry{
		Seq:       len(rec.job.Progress) + 1,
		Message:   message,
		Detail:    detail,
		Timestamp: s.now().UTC(),
	}
	rec.job.Progress = append(rec.job.Progress, entry)
	rec.job.UpdatedAt = entry.Timestamp
	rec.broadcast()
	rec.mu.Unlock()
	for _, o := range s.observers {
		o.OnProgress(id, entry)
	}
	return nil
}

// IsCancelled reports whether cancellation was requested for the job.
func (s *MemoryStore) IsCancelled(id string) bool {
	rec := s.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.cancelled
}

// Start moves a pending job to processing. It returns false when the job is
// no longer pending, for example because it was cancelled while queued.
func (s *MemoryStore) Start(id string) (bool, error) {
	return s.transition(id, func(rec *record) (Status, bool) {
		if rec.job.Status != StatusPending {
			return "", false
		}
		return StatusProcessing, true
	})
}

// Complete stores the result and marks the job completed. A job whose
// cancellation flag is set becomes cancelled instead.
func (s *MemoryStore) Complete(id string, result any) (bool, error) {
	return s.transition(id, func(rec *record) (Status, bool) {
		if rec.cancelled {
			return StatusCancelled, true
		}
		rec.job.Result = result
		return StatusCompleted, true
	})
}

// Fail marks the job failed with msg.
func (s *MemoryStore) Fail(id string, msg string) (bool, error) {
	return s.transition(id, func(rec *record) (Status, bool) {
		rec.job.Error = msg
		return StatusFailed, true
	})
}

// Cancel sets the durable cancellation flag. A job still pending is moved to
// cancelled immediately; a processing job is settled by its worker at the next
// checkpoint. The returned bool is false when the flag was already set or the
// job had already finished.
func (s *MemoryStore) Cancel(id string) (bool, error) {
	rec := s.lookup(id)
	if rec == nil {
		return false, fmt.Errorf("cancel %s: %w", id, ErrNotFound)
	}
	rec.mu.Lock()
	if rec.job.Status.Terminal() || rec.cancelled {
		status := rec.job.Status
		rec.mu.Unlock()
		s.debugf("job %s: cancel ignored (status=%s)", id, status)
		return false, nil
	}
	rec.cancelled = true
	rec.job.Cancelled = true
	rec.job.UpdatedAt = s.now().UTC()
	settled := false
	if rec.job.Status == StatusPending {
		rec.job.Status = StatusCancelled
		settled = true
	}
	rec.broadcast()
	rec.mu.Unlock()
	if settled {
		s.notifyStatus(id, StatusCancelled)
	}
	return true, nil
}

// MarkCancelled is called by the worker once it has unwound after observing
// the cancellation flag.
func (s *MemoryStore) MarkCancelled(id string) (bool, error) {
	return s.transition(id, func(rec *record) (Status, bool) {
		rec.cancelled = true
		rec.job.Cancelled = true
		return StatusCancelled, true
	})
}

// Prune forgets terminal jobs last updated before cutoff and returns how many
// were removed.
func (s *MemoryStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.jobs {
		rec.mu.Lock()
		stale := rec.job.Status.Terminal() && rec.job.UpdatedAt.Before(cutoff)
		rec.mu.Unlock()
		if stale {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked jobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *MemoryStore) transition(id string, apply func(*record) (Status, bool)) (bool, error) {
	rec := s.lookup(id)
	if rec == nil {
		return false, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	rec.mu.Lock()
	if rec.job.Status.Terminal() {
		status := rec.job.Status
		rec.mu.Unlock()
		s.debugf("job %s: already %s, transition ignored", id, status)
		return false, nil
	}
	next, ok := apply(rec)
	if !ok {
		rec.mu.Unlock()
		return false, nil
	}
	rec.job.Status = next
	rec.job.UpdatedAt = s.now().UTC()
	rec.broadcast()
	rec.mu.Unlock()
	s.notifyStatus(id, next)
	return true, nil
}

func (s *MemoryStore) lookup(id string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

func (s *MemoryStore) notifyStatus(id string, status Status) {
	for _, o := range s.observers {
		o.OnStatus(id, status)
	}
}

func (s *MemoryStore) debugf(format string, args ...any) {
	if s.debug {
		s.logger.Printf("debug: "+format, args...)
	}
}

// must hold rec.mu
func (r *record) broadcast() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// must hold rec.mu
func (r *record) snapshot() Job {
	j := r.job
	j.Progress = append([]ProgressEntry(nil), r.job.Progress...)
	return j
}
