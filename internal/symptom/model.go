package symptom

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// Intensity of a reported symptom: 0 none, 1 mild, 2 moderate, 3 severe
type Intensity int

const (
	IntensityNone     Intensity = 0
	IntensityMild     Intensity = 1
	IntensityModerate Intensity = 2
	IntensitySevere   Intensity = 3
)

const maxNotesLength = 2000

// Symptoms holds the tracked symptom flags
type Symptoms struct {
	Fever    Intensity `json:"fever"`
	Cough    Intensity `json:"cough"`
	Headache Intensity `json:"headache"`
	Fatigue  Intensity `json:"fatigue"`
	Diarrhea Intensity `json:"diarrhea"`
	Vomiting Intensity `json:"vomiting"`
}

func (s Symptoms) fields() map[string]Intensity {
	return map[string]Intensity{
		"fever":    s.Fever,
		"cough":    s.Cough,
		"headache": s.Headache,
		"fatigue":  s.Fatigue,
		"diarrhea": s.Diarrhea,
		"vomiting": s.Vomiting,
	}
}

// Any reports whether at least one symptom is present
func (s Symptoms) Any() bool {
	for _, v := range s.fields() {
		if v > IntensityNone {
			return true
		}
	}
	return false
}

// Report is a symptom log entry submitted by a recipient outside of a call
type Report struct {
	ID          types.ID  `json:"id"`
	RecipientID types.ID  `json:"recipient_id"`
	Symptoms    Symptoms  `json:"symptoms"`
	Notes       string    `json:"notes,omitempty"`
	ReportedAt  time.Time `json:"reported_at"`
}

// NewReport validates and creates a report
func NewReport(recipientID types.ID, symptoms Symptoms, notes string, now time.Time) (*Report, error) {
	details := map[string]string{}
	if recipientID.IsZero() {
		details["recipient_id"] = "required"
	}
	for name, v := range symptoms.fields() {
		if v < IntensityNone || v > IntensitySevere {
			details[name] = fmt.Sprintf("must be between 0 and 3, got %d", v)
		}
	}
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > maxNotesLength {
		details["notes"] = fmt.Sprintf("must be at most %d characters", maxNotesLength)
	}
	if len(details) > 0 {
		return nil, errors.Validation("invalid symptom report", details)
	}

	return &Report{
		ID:          types.NewID(),
		RecipientID: recipientID,
		Symptoms:    symptoms,
		Notes:       notes,
		ReportedAt:  now,
	}, nil
}

// Repository is append-only storage for symptom reports
type Repository interface {
	Save(ctx context.Context, report *Report) error
	ListByRecipient(ctx context.Context, recipientID types.ID, limit int) ([]Report, error)
}
