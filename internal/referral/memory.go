package referral

import (
	"context"
	"sync"

	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// MemoryDirectory is an in-memory facility directory
type MemoryDirectory struct {
	mu         sync.RWMutex
	facilities []Facility
}

// NewMemoryDirectory creates a directory holding the given facilities
func NewMemoryDirectory(facilities ...Facility) *MemoryDirectory {
	return &MemoryDirectory{facilities: append([]Facility(nil), facilities...)}
}

// NewSeededDirectory creates a directory with the reference referral hospitals
func NewSeededDirectory() *MemoryDirectory {
	return NewMemoryDirectory(ReferenceFacilities()...)
}

// ReferenceFacilities returns the referral hospitals used in the pilot LGAs
func ReferenceFacilities() []Facility {
	facility := func(name, address string, loc risk.LocationUnit) Facility {
		return Facility{
			ID:       types.NewDeterministicID("facility", name),
			Name:     name,
			Address:  address,
			Location: loc,
			Tier:     1,
		}
	}
	return []Facility{
		facility("Kano General Hospital", "Bompai Road, Kano", risk.LocationUnit{Name: "Kano Municipal", Region: "Kano"}),
		facility("Lagos University Teaching Hospital", "Idi-Araba, Lagos", risk.LocationUnit{Name: "Mushin", Region: "Lagos"}),
		facility("University of Maiduguri Teaching Hospital", "Bama Road, Maiduguri", risk.LocationUnit{Name: "Maiduguri", Region: "Borno"}),
	}
}

// Add registers a facility
func (d *MemoryDirectory) Add(f Facility) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f.ID.IsZero() {
		f.ID = types.NewID()
	}
	d.facilities = append(d.facilities, f)
}

// LookupNearest returns the nearest registered facility
func (d *MemoryDirectory) LookupNearest(ctx context.Context, location risk.LocationUnit) (*FacilityRef, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	f, ok := pickNearest(d.facilities, location)
	if !ok {
		return nil, errors.NotFound("facility", location.String())
	}
	ref := f.Ref()
	return &ref, nil
}
