package calllog

import (
	"context"
	"sync"

	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// MemoryRepository is an in-memory append-only log
type MemoryRepository struct {
	mu        sync.RWMutex
	entries   []Entry
	bySession map[types.ID]int
}

// NewMemoryRepository creates an empty log
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bySession: make(map[types.ID]int)}
}

// Append stores an entry unless the session already has one
func (r *MemoryRepository) Append(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bySession[entry.SessionID]; exists {
		return errors.Conflict("call log entry already recorded for session " + entry.SessionID.String())
	}
	r.bySession[entry.SessionID] = len(r.entries)
	r.entries = append(r.entries, *entry)
	return nil
}

// FindBySession returns the entry for a session
func (r *MemoryRepository) FindBySession(ctx context.Context, sessionID types.ID) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.bySession[sessionID]
	if !ok {
		return nil, errors.NotFound("call log entry", sessionID.String())
	}
	e := r.entries[i]
	return &e, nil
}

// List returns entries newest first
func (r *MemoryRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !filter.RecipientID.IsZero() && e.RecipientID != filter.RecipientID {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
