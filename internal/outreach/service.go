// Package outreach ties risk assessment, script composition and call
// sessions together for one recipient or a whole location.
package outreach

import (
	"context"
	"log/slog"

	"github.com/sabihealth/outreach/internal/call"
	"github.com/sabihealth/outreach/internal/message"
	"github.com/sabihealth/outreach/internal/recipient"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/logging"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// Service triggers advisory calls
type Service struct {
	recipients recipient.Directory
	evaluator  *risk.Evaluator
	composer   *message.Composer
	calls      *call.Manager
	logger     *slog.Logger
}

// NewService creates an outreach service
func NewService(
	recipients recipient.Directory,
	evaluator *risk.Evaluator,
	composer *message.Composer,
	calls *call.Manager,
	logger *slog.Logger,
) *Service {
	return &Service{
		recipients: recipients,
		evaluator:  evaluator,
		composer:   composer,
		calls:      calls,
		logger:     logging.OrDefault(logger).With("component", "outreach"),
	}
}

// Recipients returns the recipient directory
func (s *Service) Recipients() recipient.Directory {
	return s.recipients
}

// Evaluator returns the risk evaluator
func (s *Service) Evaluator() *risk.Evaluator {
	return s.evaluator
}

// TriggerFor assesses a recipient's location and starts a call. Manual
// triggers always call; automatic triggers return a nil session when the
// level is LOW or the recipient already has a call in flight.
func (s *Service) TriggerFor(ctx context.Context, recipientID types.ID, triggerType call.TriggerType) (*call.Session, error) {
	r, err := s.recipients.FindByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	assessment := s.evaluator.Assess(ctx, r.Location)
	return s.TriggerAssessed(ctx, *r, assessment, triggerType)
}

// TriggerAssessed starts a call for an assessment the caller already holds
func (s *Service) TriggerAssessed(
	ctx context.Context,
	r recipient.Recipient,
	assessment risk.Assessment,
	triggerType call.TriggerType,
) (*call.Session, error) {
	if triggerType == call.TriggerAutomatic {
		if assessment.Level == risk.LevelLow {
			s.logger.Debug("low risk, no automatic call", "recipient_id", r.ID)
			return nil, nil
		}
		if s.calls.Active(r.ID) {
			s.logger.Debug("call already in flight", "recipient_id", r.ID)
			return nil, nil
		}
	}

	persona := message.LookupPersona(r.PreferredPersona)
	script := s.composer.Compose(r.Name, r.Location.Name, assessment, persona)
	if triggerType == call.TriggerAutomatic {
		return s.calls.TriggerIfIdle(ctx, r, assessment, script, triggerType)
	}
	return s.calls.Trigger(ctx, r, assessment, script, triggerType)
}

// TriggerForLocation starts automatic calls for every recipient registered
// in a location. It assesses once and returns the sessions it started.
func (s *Service) TriggerForLocation(ctx context.Context, location risk.LocationUnit) ([]*call.Session, error) {
	people, err := s.recipients.ListByLocation(ctx, location)
	if err != nil {
		return nil, err
	}
	if len(people) == 0 {
		return nil, nil
	}

	assessment := s.evaluator.Assess(ctx, location)
	return s.triggerAll(ctx, people, assessment)
}

// TriggerForSignal evaluates a caller-supplied signal for a location and
// starts automatic calls for its recipients
func (s *Service) TriggerForSignal(ctx context.Context, location risk.LocationUnit, signal risk.RiskSignal) ([]*call.Session, error) {
	people, err := s.recipients.ListByLocation(ctx, location)
	if err != nil {
		return nil, err
	}
	if len(people) == 0 {
		return nil, nil
	}

	assessment := s.evaluator.Record(location, signal)
	return s.triggerAll(ctx, people, assessment)
}

func (s *Service) triggerAll(ctx context.Context, people []recipient.Recipient, assessment risk.Assessment) ([]*call.Session, error) {
	var started []*call.Session
	for _, r := range people {
		if err := ctx.Err(); err != nil {
			return started, err
		}
		session, err := s.TriggerAssessed(ctx, r, assessment, call.TriggerAutomatic)
		if err != nil {
			s.logger.Error("automatic trigger failed", "recipient_id", r.ID, "error", err)
			continue
		}
		if session != nil {
			started = append(started, session)
		}
	}
	return started, nil
}
