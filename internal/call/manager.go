package call

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sabihealth/outreach/internal/message"
	"github.com/sabihealth/outreach/internal/recipient"
	"github.com/sabihealth/outreach/internal/referral"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/events"
	"github.com/sabihealth/outreach/internal/shared/logging"
	"github.com/sabihealth/outreach/internal/shared/metrics"
	"github.com/sabihealth/outreach/internal/shared/types"
)

// ReferralResolver finds a facility for a FEVER response. It never fails.
type ReferralResolver interface {
	Resolve(ctx context.Context, location risk.LocationUnit) referral.FacilityRef
}

// SessionRecorder receives every session once it is final
type SessionRecorder interface {
	RecordSession(ctx context.Context, session *Session) error
}

// ManagerConfig wires the manager's collaborators. Only Delivery is
// optional in practice: nil means no audio channel.
type ManagerConfig struct {
	Delivery        Delivery
	DeliveryTimeout time.Duration
	Resolver        ReferralResolver
	Recorder        SessionRecorder
	Events          events.EventBus
	Logger          *slog.Logger
	Now             func() time.Time
}

// entry owns one session. mu serializes transitions; snapshot is the
// last committed copy and can be read without waiting on a transition.
type entry struct {
	mu       sync.Mutex
	session  *Session
	snapshot atomic.Pointer[Session]
}

func (e *entry) commit() *Session {
	snap := e.session.Clone()
	e.snapshot.Store(snap)
	return snap.Clone()
}

// Manager runs call sessions. Sessions are independent; each has its own lock.
type Manager struct {
	mu       sync.RWMutex
	sessions map[types.ID]*entry

	delivery        Delivery
	deliveryTimeout time.Duration
	resolver        ReferralResolver
	recorder        SessionRecorder
	bus             events.EventBus
	logger          *slog.Logger
	now             func() time.Time
}

// NewManager creates a session manager
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{
		sessions:        make(map[types.ID]*entry),
		delivery:        cfg.Delivery,
		deliveryTimeout: cfg.DeliveryTimeout,
		resolver:        cfg.Resolver,
		recorder:        cfg.Recorder,
		bus:             cfg.Events,
		logger:          logging.OrDefault(cfg.Logger).With("component", "call"),
		now:             cfg.Now,
	}
}

// Trigger creates a session in INCOMING. It does not contact the delivery backend.
func (m *Manager) Trigger(
	ctx context.Context,
	r recipient.Recipient,
	assessment risk.Assessment,
	script string,
	triggerType TriggerType,
) (*Session, error) {
	return m.trigger(ctx, r, assessment, script, triggerType, false)
}

// TriggerIfIdle is Trigger unless the recipient already has a session that
// is not final, in which case it returns a nil session. The check and the
// insert happen under the registry lock.
func (m *Manager) TriggerIfIdle(
	ctx context.Context,
	r recipient.Recipient,
	assessment risk.Assessment,
	script string,
	triggerType TriggerType,
) (*Session, error) {
	return m.trigger(ctx, r, assessment, script, triggerType, true)
}

func (m *Manager) trigger(
	ctx context.Context,
	r recipient.Recipient,
	assessment risk.Assessment,
	script string,
	triggerType TriggerType,
	onlyIdle bool,
) (*Session, error) {
	persona := message.LookupPersona(r.PreferredPersona)
	s, err := NewSession(r, assessment, script, persona, triggerType, m.now())
	if err != nil {
		return nil, err
	}

	e := &entry{session: s}
	snap := e.commit()
	evts := s.PullEvents()

	m.mu.Lock()
	if onlyIdle && m.activeLocked(r.ID) {
		m.mu.Unlock()
		return nil, nil
	}
	m.sessions[s.ID] = e
	m.mu.Unlock()

	metrics.RecordCallTriggered(string(triggerType), string(assessment.Level))
	m.publish(ctx, evts)
	m.logger.Info("call triggered",
		"session_id", s.ID, "recipient_id", s.RecipientID,
		"trigger_type", triggerType, "risk_level", assessment.Level)
	return snap, nil
}

// Answer connects the call and delivers the script. A failed or timed out
// delivery leaves the session CONNECTED and returns an Unavailable error;
// calling Answer again retries delivery.
func (m *Manager) Answer(ctx context.Context, id types.ID) (*Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	s := e.session
	if err := s.guard("answer", StateIncoming, StateConnected); err != nil {
		e.mu.Unlock()
		m.rejected("answer", err)
		return nil, err
	}

	var evts []events.Event
	if s.State == StateIncoming {
		if err := s.Connect(m.now()); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		metrics.RecordCallTransition(string(StateIncoming), string(StateConnected))
		e.commit()
		evts = s.PullEvents()
	}

	audioRef, derr := m.deliver(ctx, s)
	if derr != nil {
		_ = s.DeliveryFailed(derr)
		e.commit()
		evts = append(evts, s.PullEvents()...)
		attempt := s.DeliveryAttempts
		e.mu.Unlock()

		m.publish(ctx, evts)
		m.logger.Warn("delivery failed, session stays connected",
			"session_id", id, "attempt", attempt, "error", derr)
		return nil, errors.Unavailable("call delivery failed", derr)
	}

	if err := s.Delivered(audioRef); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	snap := e.commit()
	evts = append(evts, s.PullEvents()...)
	e.mu.Unlock()

	metrics.RecordCallTransition(string(StateConnected), string(StateAwaitingResponse))
	m.publish(ctx, evts)
	return snap, nil
}

// deliver calls the delivery backend with a bounded timeout, even if the
// backend ignores ctx
func (m *Manager) deliver(ctx context.Context, s *Session) (string, error) {
	if m.delivery == nil {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.deliveryTimeout)
	defer cancel()

	type result struct {
		ref string
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	script, persona := s.Script, s.Persona
	go func() {
		ref, err := m.delivery.Deliver(ctx, script, persona)
		done <- result{ref, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = result{err: ctx.Err()}
	}
	metrics.RecordDelivery(m.delivery.Name(), res.err == nil, time.Since(start))
	return res.ref, res.err
}

// Decline ends an INCOMING call as DECLINED
func (m *Manager) Decline(ctx context.Context, id types.ID) (*Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	s := e.session
	if err := s.Decline(m.now()); err != nil {
		e.mu.Unlock()
		m.rejected("decline", err)
		return nil, err
	}
	snap := e.commit()
	evts := s.PullEvents()
	e.mu.Unlock()

	metrics.RecordCallTransition(string(StateIncoming), string(StateDeclined))
	m.publish(ctx, evts)
	m.finalize(ctx, snap)
	return snap, nil
}

// SubmitResponse completes an AWAITING_RESPONSE call. A FEVER response
// resolves a referral before the session is finalized.
func (m *Manager) SubmitResponse(ctx context.Context, id types.ID, response Response) (*Session, error) {
	if response != ResponseFever && response != ResponseFine {
		return nil, errors.Validation("invalid response", map[string]string{
			"response": "must be FEVER or FINE",
		})
	}

	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	s := e.session
	if err := s.guard("respond", StateAwaitingResponse); err != nil {
		e.mu.Unlock()
		m.rejected("respond", err)
		return nil, err
	}

	var ref *referral.FacilityRef
	if response == ResponseFever {
		r := m.resolve(ctx, s.Location)
		ref = &r
	}
	if err := s.Complete(response, ref, m.now()); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	snap := e.commit()
	evts := s.PullEvents()
	e.mu.Unlock()

	metrics.RecordCallTransition(string(StateAwaitingResponse), string(StateCompleted))
	m.publish(ctx, evts)
	m.finalize(ctx, snap)
	return snap, nil
}

func (m *Manager) resolve(ctx context.Context, location risk.LocationUnit) referral.FacilityRef {
	if m.resolver == nil {
		metrics.RecordReferral("fallback")
		return referral.Fallback(location)
	}
	return m.resolver.Resolve(ctx, location)
}

// finalize hands a final session to the recorder. Recording runs on a
// context detached from the caller so a cancelled request still logs.
func (m *Manager) finalize(ctx context.Context, snap *Session) {
	metrics.RecordCallFinalized()
	m.logger.Info("call finalized",
		"session_id", snap.ID, "state", snap.State, "response", snap.Response)

	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordSession(context.WithoutCancel(ctx), snap); err != nil {
		m.logger.Error("failed to record call log",
			"session_id", snap.ID, "error", err)
	}
}

// Get returns the last committed state of a session
func (m *Manager) Get(ctx context.Context, id types.ID) (*Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.snapshot.Load().Clone(), nil
}

// List returns sessions, newest first, optionally only those for a recipient
func (m *Manager) List(ctx context.Context, recipientID types.ID) []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		snap := e.snapshot.Load()
		if recipientID.IsZero() || snap.RecipientID == recipientID {
			out = append(out, snap.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Active reports whether a recipient has a session that is not yet final
func (m *Manager) Active(recipientID types.ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked(recipientID)
}

// activeLocked requires m.mu
func (m *Manager) activeLocked(recipientID types.ID) bool {
	for _, e := range m.sessions {
		snap := e.snapshot.Load()
		if snap.RecipientID == recipientID && !snap.IsFinal() {
			return true
		}
	}
	return false
}

// Prune forgets final sessions completed before cutoff. Their log entries remain.
func (m *Manager) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		snap := e.snapshot.Load()
		if snap.IsFinal() && snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *Manager) lookup(id types.ID) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("call session", id.String())
	}
	return e, nil
}

func (m *Manager) rejected(action string, err error) {
	reason := "invalid_transition"
	if errors.Is(err, errors.ErrAlreadyFinalized) {
		reason = "already_finalized"
	}
	metrics.RecordTransitionRejected(action, reason)
}

func (m *Manager) publish(ctx context.Context, evts []events.Event) {
	if m.bus == nil {
		return
	}
	for _, e := range evts {
		if err := m.bus.Publish(ctx, e); err != nil {
			m.logger.Warn("failed to publish call event", "type", e.Type, "error", err)
		}
	}
}
