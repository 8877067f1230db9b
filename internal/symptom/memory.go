package symptom

import (
	"context"
	"sync"

	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// MemoryRepository is an in-memory append-only report store
type MemoryRepository struct {
	mu      sync.RWMutex
	reports []Report
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Save(ctx context.Context, report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reports {
		if existing.ID == report.ID {
			return errors.Conflict("symptom report already saved")
		}
	}
	r.reports = append(r.reports, *report)
	return nil
}

func (r *MemoryRepository) ListByRecipient(ctx context.Context, recipientID types.ID, limit int) ([]Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Report
	for i := len(r.reports) - 1; i >= 0; i-- {
		if r.reports[i].RecipientID != recipientID {
			continue
		}
		out = append(out, r.reports[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
