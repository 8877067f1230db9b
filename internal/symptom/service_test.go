package symptom

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sabihealth/outreach/internal/recipient"
	apperrors "github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
)

func TestNewReport(t *testing.T) {
	now := time.Now().UTC()
	id := types.NewID()

	tests := []struct {
		name     string
		id       types.ID
		symptoms Symptoms
		notes    string
		field    string
	}{
		{"valid", id, Symptoms{Fever: IntensitySevere, Cough: IntensityMild}, "since Tuesday", ""},
		{"missing recipient", "", Symptoms{}, "", "recipient_id"},
		{"too intense", id, Symptoms{Vomiting: 4}, "", "vomiting"},
		{"negative", id, Symptoms{Headache: -1}, "", "headache"},
		{"long notes", id, Symptoms{}, strings.Repeat("a", maxNotesLength+1), "notes"},
		{"multibyte notes at limit", id, Symptoms{}, strings.Repeat("\u1eb9", maxNotesLength), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReport(tt.id, tt.symptoms, tt.notes, now)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("NewReport() error = %v", err)
				}
				if r.ID.IsZero() || !r.ReportedAt.Equal(now) {
					t.Errorf("report = %+v", r)
				}
				return
			}
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("error = %v, want validation", err)
			}
			if _, ok := appErr.Details[tt.field]; !ok {
				t.Errorf("details %v missing %q", appErr.Details, tt.field)
			}
		})
	}
}

func TestServiceSubmit(t *testing.T) {
	ctx := context.Background()
	people := recipient.DemoRecipients()
	svc := NewService(NewMemoryRepository(), recipient.NewMemoryDirectory(people...), nil)
	amina := people[0].ID

	if _, err := svc.Submit(ctx, amina, Symptoms{Fever: IntensityModerate}, " hot at night "); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := svc.Submit(ctx, amina, Symptoms{}, ""); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	reports, err := svc.List(ctx, amina, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("List() len = %d, want 2", len(reports))
	}
	if reports[1].Notes != "hot at night" || !reports[1].Symptoms.Any() {
		t.Errorf("oldest report = %+v", reports[1])
	}
	if reports[0].Symptoms.Any() {
		t.Error("newest report should have no symptoms")
	}

	_, err = svc.Submit(ctx, types.NewID(), Symptoms{}, "")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown recipient error = %v, want not found", err)
	}

	other, _ := svc.List(ctx, people[1].ID, 10)
	if len(other) != 0 {
		t.Errorf("other recipient has %d reports", len(other))
	}
}
