// Package redis provides a Redis-backed RunJournal for durable run history.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/corvid-labs/strand/pkg/ports"
	"github.com/corvid-labs/strand/pkg/protocol"
)

// Journal implements ports.RunJournal using Redis. Each run is a list of
// serialized entries; run IDs are tracked in a set for listing.
type Journal struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Journal)

// WithTTL sets the expiration for run history.
func WithTTL(ttl time.Duration) Option {
	return func(j *Journal) { j.ttl = ttl }
}

// WithPrefix sets the key prefix for runs.
func WithPrefix(prefix string) Option {
	return func(j *Journal) { j.prefix = prefix }
}

// New creates a Redis journal with its own client.
func New(address, password string, db int, opts ...Option) *Journal {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis journal from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Journal {
	j := &Journal{
		client: client,
		prefix: "strand:run:",
		ttl:    0, // no expiration by default
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Journal) key(runID string) string {
	return j.prefix + runID
}

func (j *Journal) indexKey() string {
	return j.prefix + "index"
}

// record is the stored form of an entry. The sequence number is the list
// position, so it is assigned on read rather than persisted.
type record struct {
	At      time.Time        `json:"at"`
	Message protocol.Message `json:"message"`
}

// Append pushes a message onto the run's list and registers the run ID.
func (j *Journal) Append(ctx context.Context, runID string, msg protocol.Message) error {
	data, err := json.Marshal(record{At: time.Now().UTC(), Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	pipe := j.client.Pipeline()
	pipe.RPush(ctx, j.key(runID), data)
	pipe.SAdd(ctx, j.indexKey(), runID)
	if j.ttl > 0 {
		pipe.Expire(ctx, j.key(runID), j.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to redis: %w", err)
	}
	return nil
}

// List returns the entries of a run in sequence order.
func (j *Journal) List(ctx context.Context, runID string) ([]ports.JournalEntry, error) {
	raw, err := j.client.LRange(ctx, j.key(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}
	if len(raw) == 0 {
		return nil, ports.ErrRunNotFound
	}

	entries := make([]ports.JournalEntry, 0, len(raw))
	for i, item := range raw {
		var rec record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entry %d: %w", i, err)
		}
		entries = append(entries, ports.JournalEntry{
			Seq:     int64(i),
			At:      rec.At,
			Message: rec.Message,
		})
	}
	return entries, nil
}

// Runs returns all recorded run IDs.
func (j *Journal) Runs(ctx context.Context) ([]string, error) {
	ids, err := j.client.SMembers(ctx, j.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return ids, nil
}

// Close closes the redis client.
func (j *Journal) Close() error {
	return j.client.Close()
}
