package job

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultProgressStream is the Redis stream progress events are mirrored to.
const DefaultProgressStream = "credence.job.progress"

// Envelope is the record appended to the Redis stream for every mutation.
type Envelope struct {
	EventID    string         `json:"event_id"`
	JobID      string         `json:"job_id"`
	Kind       string         `json:"kind"`
	Seq        int            `json:"seq,omitempty"`
	Message    string         `json:"message,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	Status     Status         `json:"status,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// XAdder is the subset of the Redis client the mirror needs.
type XAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisMirror copies job progress into a Redis stream so other processes can
// follow a job. Publishing happens on a background goroutine; when the buffer
// is full events are dropped rather than stalling the job worker.
type RedisMirror struct {
	client XAdder
	stream string
	maxLen int64
	events chan Envelope
	logger *log.Logger
	done   chan struct{}
}

// NewRedisMirror builds a mirror. Call Run to start publishing.
func NewRedisMirror(client XAdder, stream string, maxLen int64, logger *log.Logger) *RedisMirror {
	if stream == "" {
		stream = DefaultProgressStream
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &RedisMirror{
		client: client,
		stream: stream,
		maxLen: maxLen,
		events: make(chan Envelope, 256),
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (m *RedisMirror) OnProgress(jobID string, entry ProgressEntry) {
	m.enqueue(Envelope{
		JobID:      jobID,
		Kind:       "progress",
		Seq:        entry.Seq,
		Message:    entry.Message,
		Detail:     entry.Detail,
		OccurredAt: entry.Timestamp,
	})
}

func (m *RedisMirror) OnStatus(jobID string, status Status) {
	m.enqueue(Envelope{JobID: jobID, Kind: "status", Status: status, OccurredAt: time.Now().UTC()})
}

func (m *RedisMirror) enqueue(env Envelope) {
	env.EventID = uuid.NewString()
	select {
	case m.events <- env:
	default:
		m.logger.Printf("progress mirror buffer full, dropping %s event for job %s", env.Kind, env.JobID)
	}
}

// Run publishes buffered events until ctx is done.
func (m *RedisMirror) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-m.events:
			if err := m.publish(ctx, env); err != nil {
				m.logger.Printf("mirror job %s: %v", env.JobID, err)
			}
		}
	}
}

// Done is closed once Run has returned.
func (m *RedisMirror) Done() <-chan struct{} { return m.done }

func (m *RedisMirror) publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: m.stream,
		Values: map[string]interface{}{"job_id": env.JobID, "envelope": raw},
	}
	if m.maxLen > 0 {
		args.MaxLen = m.maxLen
		args.Approx = true
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", m.stream, err)
	}
	return nil
}
