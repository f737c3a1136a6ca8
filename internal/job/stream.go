package job

import (
	"context"
	"fmt"
)

// Subscribe streams the job's progress log followed by live updates. Entries
// already recorded are replayed first. A status event is sent whenever the
// status changes and the channel is closed after the terminal status has been
// delivered or when ctx is done. Slow readers never block the writer.
func (s *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan Event, error) {
	rec := s.lookup(id)
	if rec == nil {
		return nil, fmt.Errorf("subscribe %s: %w", id, ErrNotFound)
	}
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		sent := 0
		var lastStatus Status
		for {
			rec.mu.Lock()
			pending := append([]ProgressEntry(nil), rec.job.Progress[sent:]...)
			status := rec.job.Status
			wait := rec.changed
			rec.mu.Unlock()

			for i := range pending {
				entry := pending[i]
				select {
				case out <- Event{JobID: id, Entry: &entry}:
				case <-ctx.Done():
					return
				}
			}
			sent += len(pending)

			if status != lastStatus {
				select {
				case out <- Event{JobID: id, Status: status}:
				case <-ctx.Done():
					return
				}
				lastStatus = status
			}
			if status.Terminal() {
				return
			}
			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
