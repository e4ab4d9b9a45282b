// Package activity holds the per-session chat log that records what the user
// asked for and what happened to each proposal.
package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/calendar-agent/internal/model"
)

// Log is an append-only store of chat entries.
type Log interface {
	// Append stores entry and returns the sequence it was assigned.
	Append(ctx context.Context, entry *model.ChatEntry) (uint64, error)

	// List returns up to limit entries of a session after the given sequence,
	// the last sequence returned, and whether more entries may exist.
	List(ctx context.Context, sessionID string, afterSequence uint64, limit int) ([]model.ChatEntry, uint64, bool, error)
}

// Dropper is implemented by logs that can forget a session's entries.
type Dropper interface {
	Drop(sessionID string)
}

// NewEntry builds an entry stamped with a fresh id and the current time.
func NewEntry(sessionID string, kind model.ChatKind, content string) *model.ChatEntry {
	return &model.ChatEntry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: sessionID,
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Write appends a new entry and returns it with its sequence filled in.
func Write(ctx context.Context, log Log, sessionID string, kind model.ChatKind, content string) (model.ChatEntry, error) {
	entry := NewEntry(sessionID, kind, content)
	seq, err := log.Append(ctx, entry)
	if err != nil {
		return *entry, fmt.Errorf("failed to append %s entry: %w", kind, err)
	}
	entry.Sequence = seq
	return *entry, nil
}

// Memory is an in-process Log used when no NATS server is configured.
type Memory struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[string][]model.ChatEntry
}

// NewMemory creates an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]model.ChatEntry)}
}

// Append implements Log.
func (m *Memory) Append(_ context.Context, entry *model.ChatEntry) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	stored := *entry
	stored.Sequence = m.seq
	m.entries[entry.SessionID] = append(m.entries[entry.SessionID], stored)
	return m.seq, nil
}

// List implements Log.
func (m *Memory) List(_ context.Context, sessionID string, afterSequence uint64, limit int) ([]model.ChatEntry, uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ChatEntry
	var last uint64
	for _, e := range m.entries[sessionID] {
		if e.Sequence <= afterSequence {
			continue
		}
		if limit > 0 && len(out) == limit {
			return out, last, true, nil
		}
		out = append(out, e)
		last = e.Sequence
	}
	return out, last, false, nil
}

// Drop forgets every entry of a session.
func (m *Memory) Drop(sessionID string) {
	m.mu.Lock()
	delete(m.entries, sessionID)
	m.mu.Unlock()
}
