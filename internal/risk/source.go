package risk

import (
	"context"
	"sync"
)

// SignalSource provides the latest signal for a location. It may fail transiently.
type SignalSource interface {
	GetRiskSignal(ctx context.Context, location LocationUnit) (RiskSignal, error)
}

// SignalStore is a source that accepts signal updates
type SignalStore interface {
	SignalSource
	PutRiskSignal(ctx context.Context, location LocationUnit, signal RiskSignal) error
}

// StaticSource serves signals from memory. Explicit updates win over the
// hotspot registry, which is matched against the location name and then
// its region.
type StaticSource struct {
	mu       sync.RWMutex
	signals  map[string]RiskSignal
	hotspots map[string][]Hotspot
}

// NewStaticSource creates a source with the given hotspot registry keyed by area name
func NewStaticSource(hotspots map[string][]Hotspot) *StaticSource {
	s := &StaticSource{
		signals:  make(map[string]RiskSignal),
		hotspots: make(map[string][]Hotspot, len(hotspots)),
	}
	for area, hs := range hotspots {
		s.hotspots[normalize(area)] = append([]Hotspot(nil), hs...)
	}
	return s
}

// NewSeededSource creates a source with the reference NCDC hotspot registry
func NewSeededSource() *StaticSource {
	return NewStaticSource(ReferenceHotspots())
}

// ReferenceHotspots returns the outbreak registry from the February 2026 NCDC situation reports
func ReferenceHotspots() map[string][]Hotspot {
	return map[string][]Hotspot{
		"kano":        {{Disease: "Lassa fever", Severity: SeverityHigh}},
		"benue":       {{Disease: "Lassa fever", Severity: SeverityHigh}},
		"sokoto":      {{Disease: "Malaria", Severity: SeverityHigh}},
		"lagos":       {{Disease: "Cholera", Severity: SeverityHigh}},
		"abuja":       {{Disease: "Malaria", Severity: SeverityMedium}},
		"kaduna":      {{Disease: "Lassa fever", Severity: SeverityMedium}},
		"maiduguri":   {{Disease: "Cholera", Severity: SeverityHigh}},
		"plateau":     {{Disease: "Cholera", Severity: SeverityHigh}},
		"zamfara":     {{Disease: "Cholera", Severity: SeverityHigh}},
		"cross river": {{Disease: "Cholera", Severity: SeverityHigh}},
		"enugu":       {{Disease: "Malaria", Severity: SeverityMedium}},
	}
}

// GetRiskSignal returns the stored signal, or zero rainfall with any registered hotspots
func (s *StaticSource) GetRiskSignal(ctx context.Context, location LocationUnit) (RiskSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sig, ok := s.signals[location.Key()]; ok {
		return cloneSignal(sig), nil
	}

	hs, ok := s.hotspots[normalize(location.Name)]
	if !ok {
		hs = s.hotspots[normalize(location.Region)]
	}
	return RiskSignal{Hotspots: append([]Hotspot(nil), hs...)}, nil
}

// PutRiskSignal stores a signal update for a location
func (s *StaticSource) PutRiskSignal(ctx context.Context, location LocationUnit, signal RiskSignal) error {
	if err := location.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[location.Key()] = cloneSignal(signal)
	return nil
}

func cloneSignal(sig RiskSignal) RiskSignal {
	sig.Hotspots = append([]Hotspot(nil), sig.Hotspots...)
	return sig
}
