package call

import (
	"fmt"
	"strings"
	"time"

	"github.com/sabihealth/outreach/internal/message"
	"github.com/sabihealth/outreach/internal/recipient"
	"github.com/sabihealth/outreach/internal/referral"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/events"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// State of a call session
type State string

const (
	StateIncoming         State = "INCOMING"
	StateConnected        State = "CONNECTED"
	StateAwaitingResponse State = "AWAITING_RESPONSE"
	StateCompleted        State = "COMPLETED"
	StateDeclined         State = "DECLINED"
)

// IsFinal reports whether the state is terminal
func (s State) IsFinal() bool {
	return s == StateCompleted || s == StateDeclined
}

// Response captured from the recipient
type Response string

const (
	ResponseFever Response = "FEVER"
	ResponseFine  Response = "FINE"
	ResponseNone  Response = "NONE"
)

// ParseResponse accepts FEVER or FINE in any case, or the keypad digits 1 and 2
func ParseResponse(s string) (Response, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FEVER", "1":
		return ResponseFever, nil
	case "FINE", "2":
		return ResponseFine, nil
	}
	return "", errors.Validation("invalid response", map[string]string{
		"response": fmt.Sprintf("%q must be FEVER or FINE", s),
	})
}

// TriggerType records what started the call
type TriggerType string

const (
	TriggerAutomatic TriggerType = "automatic"
	TriggerManual    TriggerType = "manual"
)

// Valid reports whether t is a known trigger type
func (t TriggerType) Valid() bool {
	return t == TriggerAutomatic || t == TriggerManual
}

// Event types published for the call lifecycle
const (
	EventTriggered      = "call.triggered"
	EventAnswered       = "call.answered"
	EventDelivered      = "call.delivered"
	EventDeliveryFailed = "call.delivery_failed"
	EventDeclined       = "call.declined"
	EventCompleted      = "call.completed"
	EventReferralIssued = "call.referral_issued"
)

// Session is one outbound advisory call and its lifecycle. It only changes
// through the transition methods below and is immutable once final.
type Session struct {
	ID            types.ID          `json:"id"`
	RecipientID   types.ID          `json:"recipient_id"`
	RecipientName string            `json:"recipient_name"`
	Phone         string            `json:"phone"`
	Location      risk.LocationUnit `json:"location"`
	Persona       message.Persona   `json:"persona"`
	TriggerType   TriggerType       `json:"trigger_type"`

	Risk     risk.Assessment `json:"risk"`
	Script   string          `json:"script"`
	AudioRef *string         `json:"audio_ref,omitempty"`

	State    State                 `json:"state"`
	Response Response              `json:"response"`
	Referral *referral.FacilityRef `json:"referral,omitempty"`

	DeliveryAttempts  int    `json:"delivery_attempts"`
	LastDeliveryError string `json:"last_delivery_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	AnsweredAt  *time.Time `json:"answered_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Domain events (not persisted, drained by the manager)
	domainEvents []events.Event
}

// NewSession creates a session in INCOMING
func NewSession(
	r recipient.Recipient,
	assessment risk.Assessment,
	script string,
	persona message.Persona,
	triggerType TriggerType,
	now time.Time,
) (*Session, error) {
	details := map[string]string{}
	if r.ID.IsZero() {
		details["recipient_id"] = "required"
	}
	if err := r.Location.Validate(); err != nil {
		details["location"] = err.Error()
	}
	if script == "" {
		details["script"] = "required"
	}
	if !triggerType.Valid() {
		details["trigger_type"] = fmt.Sprintf("unknown trigger type %q", triggerType)
	}
	if len(details) > 0 {
		return nil, errors.Validation("invalid call trigger", details)
	}

	s := &Session{
		ID:            types.NewID(),
		RecipientID:   r.ID,
		RecipientName: r.Name,
		Phone:         r.Phone,
		Location:      r.Location,
		Persona:       persona,
		TriggerType:   triggerType,
		Risk:          assessment.Clone(),
		Script:        script,
		State:         StateIncoming,
		Response:      ResponseNone,
		CreatedAt:     now,
	}
	s.addEvent(EventTriggered, map[string]any{
		"recipient_id": s.RecipientID,
		"trigger_type": s.TriggerType,
		"risk_level":   s.Risk.Level,
	})
	return s, nil
}

// guard checks that action is allowed from the current state
func (s *Session) guard(action string, allowed ...State) error {
	if s.State.IsFinal() {
		return errors.AlreadyFinalized(s.ID.String(), string(s.State))
	}
	for _, st := range allowed {
		if s.State == st {
			return nil
		}
	}
	return errors.InvalidTransition(string(s.State), action)
}

// Connect moves INCOMING to CONNECTED
func (s *Session) Connect(now time.Time) error {
	if err := s.guard("answer", StateIncoming); err != nil {
		return err
	}
	s.State = StateConnected
	s.AnsweredAt = &now
	s.addEvent(EventAnswered, nil)
	return nil
}

// Delivered moves CONNECTED to AWAITING_RESPONSE. An empty audioRef means
// the call had no audio channel.
func (s *Session) Delivered(audioRef string) error {
	if err := s.guard("deliver", StateConnected); err != nil {
		return err
	}
	s.DeliveryAttempts++
	s.LastDeliveryError = ""
	if audioRef != "" {
		s.AudioRef = &audioRef
	}
	s.State = StateAwaitingResponse
	s.addEvent(EventDelivered, map[string]any{"audio_ref": audioRef})
	return nil
}

// DeliveryFailed records a failed delivery attempt. The session stays CONNECTED.
func (s *Session) DeliveryFailed(cause error) error {
	if err := s.guard("deliver", StateConnected); err != nil {
		return err
	}
	s.DeliveryAttempts++
	s.LastDeliveryError = cause.Error()
	s.addEvent(EventDeliveryFailed, map[string]any{
		"attempt": s.DeliveryAttempts,
		"error":   s.LastDeliveryError,
	})
	return nil
}

// Decline moves INCOMING to DECLINED
func (s *Session) Decline(now time.Time) error {
	if err := s.guard("decline", StateIncoming); err != nil {
		return err
	}
	s.State = StateDeclined
	s.CompletedAt = &now
	s.addEvent(EventDeclined, nil)
	return nil
}

// Complete moves AWAITING_RESPONSE to COMPLETED. A FEVER response must carry a referral.
func (s *Session) Complete(response Response, ref *referral.FacilityRef, now time.Time) error {
	if err := s.guard("respond", StateAwaitingResponse); err != nil {
		return err
	}
	switch response {
	case ResponseFever:
		if ref == nil {
			return errors.Validation("fever response requires a referral", nil)
		}
		r := *ref
		s.Referral = &r
	case ResponseFine:
		s.Referral = nil
	default:
		return errors.Validation("invalid response", map[string]string{"response": string(response)})
	}

	s.Response = response
	s.State = StateCompleted
	s.CompletedAt = &now
	if s.Referral != nil {
		s.addEvent(EventReferralIssued, map[string]any{
			"facility": s.Referral.Name,
			"fallback": s.Referral.Fallback,
		})
	}
	s.addEvent(EventCompleted, map[string]any{"response": response})
	return nil
}

// IsFinal reports whether the session reached a terminal state
func (s *Session) IsFinal() bool {
	return s.State.IsFinal()
}

// Clone returns a deep copy without pending events
func (s *Session) Clone() *Session {
	c := *s
	c.domainEvents = nil
	c.Risk = s.Risk.Clone()
	if s.AudioRef != nil {
		v := *s.AudioRef
		c.AudioRef = &v
	}
	if s.Referral != nil {
		v := *s.Referral
		c.Referral = &v
	}
	if s.AnsweredAt != nil {
		v := *s.AnsweredAt
		c.AnsweredAt = &v
	}
	if s.CompletedAt != nil {
		v := *s.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

func (s *Session) addEvent(eventType string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["session_id"] = s.ID
	data["state"] = s.State
	e := events.NewEvent(eventType, "call", data).WithAggregate(s.ID.String())
	s.domainEvents = append(s.domainEvents, e)
}

// PullEvents returns and clears pending domain events
func (s *Session) PullEvents() []events.Event {
	evts := s.domainEvents
	s.domainEvents = nil
	return evts
}
