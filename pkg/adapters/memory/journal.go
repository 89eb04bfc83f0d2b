// Package memory provides an in-memory RunJournal, used as the default
// journal and in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/corvid-labs/strand/pkg/ports"
	"github.com/corvid-labs/strand/pkg/protocol"
)

// Journal implements ports.RunJournal in memory.
// Safe for concurrent use.
type Journal struct {
	mu   sync.RWMutex
	runs map[string][]ports.JournalEntry
}

// NewJournal creates an empty in-memory journal.
func NewJournal() *Journal {
	return &Journal{runs: make(map[string][]ports.JournalEntry)}
}

// Append records a message under the run ID.
func (j *Journal) Append(ctx context.Context, runID string, msg protocol.Message) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	entries := j.runs[runID]
	j.runs[runID] = append(entries, ports.JournalEntry{
		Seq:     int64(len(entries)),
		At:      time.Now().UTC(),
		Message: msg,
	})
	return nil
}

// List returns the entries of a run in sequence order.
func (j *Journal) List(ctx context.Context, runID string) ([]ports.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	entries, ok := j.runs[runID]
	if !ok {
		return nil, ports.ErrRunNotFound
	}
	// Copy on read so the caller cannot mutate the journal through the slice.
	out := make([]ports.JournalEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// Runs returns all recorded run IDs.
func (j *Journal) Runs(ctx context.Context) ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	ids := make([]string, 0, len(j.runs))
	for id := range j.runs {
		ids = append(ids, id)
	}
	return ids, nil
}
