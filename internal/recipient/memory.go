package recipient

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// MemoryDirectory is an in-memory recipient directory
type MemoryDirectory struct {
	mu         sync.RWMutex
	recipients map[types.ID]Recipient
}

// NewMemoryDirectory creates a directory holding the given recipients
func NewMemoryDirectory(recipients ...Recipient) *MemoryDirectory {
	d := &MemoryDirectory{recipients: make(map[types.ID]Recipient, len(recipients))}
	for _, r := range recipients {
		d.Add(r)
	}
	return d
}

// DemoRecipients returns the pilot recipients used in development mode
func DemoRecipients() []Recipient {
	now := time.Now().UTC()
	demo := func(name, phone string, loc risk.LocationUnit, age time.Duration) Recipient {
		return Recipient{
			ID:           types.NewDeterministicID("recipient", phone),
			Name:         name,
			Phone:        phone,
			Location:     loc,
			RegisteredAt: now.Add(-age),
		}
	}
	return []Recipient{
		demo("Amina Yusuf", "+2348034567890", risk.LocationUnit{Name: "Kano Municipal", Region: "Kano"}, 72*time.Hour),
		demo("Chukwudi Okonkwo", "+2348051234567", risk.LocationUnit{Name: "Oshodi-Isolo", Region: "Lagos"}, 48*time.Hour),
		demo("Fatima Bello", "+2347019876543", risk.LocationUnit{Name: "Maiduguri", Region: "Borno"}, 24*time.Hour),
	}
}

// Add registers or replaces a recipient
func (d *MemoryDirectory) Add(r Recipient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r.ID.IsZero() {
		r.ID = types.NewID()
	}
	if r.RegisteredAt.IsZero() {
		r.RegisteredAt = time.Now().UTC()
	}
	d.recipients[r.ID] = r
}

// FindByID returns a recipient by ID
func (d *MemoryDirectory) FindByID(ctx context.Context, id types.ID) (*Recipient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.recipients[id]
	if !ok {
		return nil, errors.NotFound("recipient", id.String())
	}
	return &r, nil
}

// List returns all recipients ordered by registration time
func (d *MemoryDirectory) List(ctx context.Context) ([]Recipient, error) {
	return d.filter(func(Recipient) bool { return true }), nil
}

// ListByLocation returns recipients registered in a location
func (d *MemoryDirectory) ListByLocation(ctx context.Context, location risk.LocationUnit) ([]Recipient, error) {
	return d.filter(func(r Recipient) bool { return sameLocation(r.Location, location) }), nil
}

func (d *MemoryDirectory) filter(keep func(Recipient) bool) []Recipient {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Recipient, 0, len(d.recipients))
	for _, r := range d.recipients {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
