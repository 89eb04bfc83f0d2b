package ports

import (
	"context"
	"errors"
	"time"

	"github.com/corvid-labs/strand/pkg/protocol"
)

// ErrRunNotFound is returned when a run ID has no recorded entries.
var ErrRunNotFound = errors.New("run not found")

// JournalEntry is one recorded protocol message of a run, in emission order.
type JournalEntry struct {
	Seq     int64            `json:"seq"`
	At      time.Time        `json:"at"`
	Message protocol.Message `json:"message"`
}

// RunJournal persists the message stream of FSM runs so a finished or
// crashed run can be inspected after the fact.
type RunJournal interface {
	// Append records a message under the given run ID, assigning the next
	// sequence number.
	Append(ctx context.Context, runID string, msg protocol.Message) error

	// List returns all entries of a run in sequence order.
	// Returns ErrRunNotFound if the run was never recorded.
	List(ctx context.Context, runID string) ([]JournalEntry, error)

	// Runs returns the IDs of all recorded runs.
	Runs(ctx context.Context) ([]string, error)
}
