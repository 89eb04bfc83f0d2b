// Package file provides a filesystem-backed RunJournal. Each run is an
// append-only JSONL file in a configured directory.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/corvid-labs/strand/pkg/ports"
	"github.com/corvid-labs/strand/pkg/protocol"
)

const runExt = ".jsonl"

// Journal implements ports.RunJournal using the local filesystem.
type Journal struct {
	basePath string
	mu       sync.Mutex
}

// New creates a file journal rooted at basePath.
// If basePath is empty, it defaults to ".strand/runs".
func New(basePath string) *Journal {
	if basePath == "" {
		basePath = filepath.Join(".strand", "runs")
	}
	return &Journal{basePath: basePath}
}

func (j *Journal) path(runID string) string {
	return filepath.Join(j.basePath, runID+runExt)
}

// record is the stored form of an entry. The sequence number is the line
// position, so it is assigned on read rather than persisted.
type record struct {
	At      time.Time        `json:"at"`
	Message protocol.Message `json:"message"`
}

// Append writes a message as one JSON line at the end of the run's file.
func (j *Journal) Append(ctx context.Context, runID string, msg protocol.Message) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	data, err := json.Marshal(record{At: time.Now().UTC(), Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(j.basePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure journal directory: %w", err)
	}

	f, err := os.OpenFile(j.path(runID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open run file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	return nil
}

// List returns the entries of a run in sequence order.
func (j *Journal) List(ctx context.Context, runID string) ([]ports.JournalEntry, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ports.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	defer f.Close()

	var entries []ports.JournalEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entry %d: %w", len(entries), err)
		}
		entries = append(entries, ports.JournalEntry{
			Seq:     int64(len(entries)),
			At:      rec.At,
			Message: rec.Message,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan run file: %w", err)
	}
	return entries, nil
}

// Runs returns all recorded run IDs.
func (j *Journal) Runs(ctx context.Context) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	dirEntries, err := os.ReadDir(j.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var ids []string
	for _, entry := range dirEntries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), runExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), runExt))
	}
	return ids, nil
}
