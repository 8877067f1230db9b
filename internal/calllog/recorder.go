package calllog

import (
	"context"
	"log/slog"
	"time"

	"github.com/sabihealth/outreach/internal/call"
	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/logging"
	"github.com/sabihealth/outreach/internal/shared/metrics"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// Recorder turns finalized sessions into log entries
type Recorder struct {
	repo      Repository
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewRecorder creates a recorder. publisher may be nil.
func NewRecorder(repo Repository, publisher Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:      repo,
		publisher: publisher,
		logger:    logging.OrDefault(logger).With("component", "calllog"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Record appends the entry for a finalized session. Sessions that are not
// COMPLETED or DECLINED are rejected; a second record for the same session
// is a conflict and leaves the first entry in place.
func (r *Recorder) Record(ctx context.Context, s *call.Session) (*Entry, error) {
	if s == nil {
		return nil, errors.BadRequest("session is required")
	}
	if !s.IsFinal() {
		return nil, errors.InvalidTransition(string(s.State), "record")
	}

	entry := newEntry(s, r.now())
	if err := r.repo.Append(ctx, entry); err != nil {
		return nil, err
	}
	metrics.RecordCallLogEntry(string(entry.FinalState), string(entry.Response))

	if r.publisher != nil {
		if err := r.publisher.PublishEntry(ctx, *entry); err != nil {
			r.logger.Warn("failed to publish call log entry",
				"session_id", entry.SessionID, "error", err)
		}
	}
	return entry, nil
}

// RecordSession lets the call manager hand sessions over on finalization
func (r *Recorder) RecordSession(ctx context.Context, s *call.Session) error {
	_, err := r.Record(ctx, s)
	return err
}

// Get returns the entry for a session
func (r *Recorder) Get(ctx context.Context, sessionID types.ID) (*Entry, error) {
	return r.repo.FindBySession(ctx, sessionID)
}

// List returns entries, newest first
func (r *Recorder) List(ctx context.Context, filter Filter) ([]Entry, error) {
	return r.repo.List(ctx, filter)
}

func newEntry(s *call.Session, now time.Time) *Entry {
	ts := now
	if s.CompletedAt != nil {
		ts = *s.CompletedAt
	}
	e := &Entry{
		ID:          types.NewID(),
		SessionID:   s.ID,
		RecipientID: s.RecipientID,
		Location:    s.Location,
		Timestamp:   ts,
		TriggerType: s.TriggerType,
		RiskLevel:   s.Risk.Level,
		FinalState:  s.State,
		Script:      s.Script,
		Response:    s.Response,
	}
	if e.Response == "" {
		e.Response = call.ResponseNone
	}
	if s.Referral != nil {
		e.ReferralName = s.Referral.String()
	}
	return e
}
