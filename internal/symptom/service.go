package symptom

import (
	"context"
	"log/slog"
	"time"

	"github.com/sabihealth/outreach/internal/recipient"
	"github.com/sabihealth/outreach/internal/shared/logging"
	"github.com/sabihealth/outreach/internal/shared/metrics"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// Service accepts symptom reports from registered recipients
type Service struct {
	repo       Repository
	recipients recipient.Directory
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a symptom service
func NewService(repo Repository, recipients recipient.Directory, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		recipients: recipients,
		logger:     logging.OrDefault(logger).With("component", "symptom"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates and stores a report for a known recipient
func (s *Service) Submit(ctx context.Context, recipientID types.ID, symptoms Symptoms, notes string) (*Report, error) {
	report, err := NewReport(recipientID, symptoms, notes, s.now())
	if err != nil {
		return nil, err
	}
	if _, err := s.recipients.FindByID(ctx, recipientID); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, report); err != nil {
		return nil, err
	}

	metrics.RecordSymptomReport()
	s.logger.Info("symptom report saved",
		"recipient_id", recipientID, "report_id", report.ID, "any_symptom", symptoms.Any())
	return report, nil
}

// List returns a recipient's reports, newest first
func (s *Service) List(ctx context.Context, recipientID types.ID, limit int) ([]Report, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListByRecipient(ctx, recipientID, limit)
}
