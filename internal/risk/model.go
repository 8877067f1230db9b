package risk

import (
	"fmt"
	"strings"
	"time"
)

// Level is the risk classification for a location
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// ParseLevel parses a level name, case-insensitively
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelLow:
		return LevelLow, nil
	case LevelMedium:
		return LevelMedium, nil
	case LevelHigh:
		return LevelHigh, nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

// Severity of a disease hotspot record
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// LocationUnit is an administrative area (an LGA) inside a parent region (a state)
type LocationUnit struct {
	Name   string `json:"name"`
	Region string `json:"region"`
}

// Validate checks that the location can be used as a lookup key
func (l LocationUnit) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("location name is required")
	}
	return nil
}

// Key is the normalized lookup key, "<region>:<name>" in lower case
func (l LocationUnit) Key() string {
	return normalize(l.Region) + ":" + normalize(l.Name)
}

func (l LocationUnit) String() string {
	if l.Region == "" {
		return l.Name
	}
	return l.Name + ", " + l.Region
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Hotspot is a disease outbreak record for a location
type Hotspot struct {
	Disease  string   `json:"disease"`
	Severity Severity `json:"severity"`
}

// RiskSignal is the environmental and epidemiological snapshot for a location
type RiskSignal struct {
	RainfallMM float64   `json:"rainfall_mm"`
	Hotspots   []Hotspot `json:"hotspots,omitempty"`
}

// Assessment is the classified risk for a location at a point in time
type Assessment struct {
	Location   LocationUnit `json:"location"`
	Level      Level        `json:"level"`
	Reasons    []string     `json:"reasons"`
	RainfallMM float64      `json:"rainfall_mm"`
	HasHotspot bool         `json:"has_hotspot"`
	AssessedAt time.Time    `json:"assessed_at"`
}

// Clone returns a deep copy
func (a Assessment) Clone() Assessment {
	a.Reasons = append([]string(nil), a.Reasons...)
	return a
}
