package calllog

import (
	"context"
	"time"

	"github.com/sabihealth/outreach/internal/call"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// Entry is the immutable record of one finalized call session
type Entry struct {
	ID           types.ID          `json:"id"`
	SessionID    types.ID          `json:"session_id"`
	RecipientID  types.ID          `json:"recipient_id"`
	Location     risk.LocationUnit `json:"location"`
	Timestamp    time.Time         `json:"timestamp"`
	TriggerType  call.TriggerType  `json:"trigger_type"`
	RiskLevel    risk.Level        `json:"risk_level"`
	FinalState   call.State        `json:"final_state"`
	Script       string            `json:"script"`
	Response     call.Response     `json:"response"`
	ReferralName string            `json:"referral_name,omitempty"`
}

// Filter narrows a log listing
type Filter struct {
	RecipientID types.ID
	Limit       int
}

// Repository is append-only storage for call log entries. Append returns a
// Conflict error when an entry for the session already exists.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	FindBySession(ctx context.Context, sessionID types.ID) (*Entry, error)
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Publisher forwards recorded entries to downstream consumers
type Publisher interface {
	PublishEntry(ctx context.Context, entry Entry) error
}
