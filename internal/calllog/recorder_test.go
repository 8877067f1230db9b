package calllog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sabihealth/outreach/internal/call"
	"github.com/sabihealth/outreach/internal/message"
	"github.com/sabihealth/outreach/internal/recipient"
	"github.com/sabihealth/outreach/internal/referral"
	"github.com/sabihealth/outreach/internal/risk"
	apperrors "github.com/sabihealth/outreach/internal/shared/errors"
	"github.com/sabihealth/outreach/internal/shared/types"
)

type capturePublisher struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (p *capturePublisher) PublishEntry(ctx context.Context, e Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
	return p.err
}

func session(t *testing.T, final bool, response call.Response) *call.Session {
	t.Helper()
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	r := recipient.Recipient{
		ID:       types.NewID(),
		Name:     "Amina Yusuf",
		Location: risk.LocationUnit{Name: "Kano Municipal", Region: "Kano"},
	}
	a := risk.Evaluate(r.Location, risk.RiskSignal{RainfallMM: 45})
	s, err := call.NewSession(r, a, "Hello Amina", message.DefaultPersona, call.TriggerAutomatic, now)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if !final {
		return s
	}
	_ = s.Connect(now)
	_ = s.Delivered("")
	var ref *referral.FacilityRef
	if response == call.ResponseFever {
		ref = &referral.FacilityRef{Name: "Kano General Hospital", Address: "Bompai Road, Kano"}
	}
	if err := s.Complete(response, ref, now.Add(time.Minute)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	return s
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	rec := NewRecorder(NewMemoryRepository(), pub, nil)
	s := session(t, true, call.ResponseFever)

	entry, err := rec.Record(ctx, s)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if entry.SessionID != s.ID || entry.RecipientID != s.RecipientID {
		t.Errorf("entry ids = %s/%s", entry.SessionID, entry.RecipientID)
	}
	if entry.Response != call.ResponseFever || entry.FinalState != call.StateCompleted {
		t.Errorf("entry = %s/%s", entry.Response, entry.FinalState)
	}
	if entry.TriggerType != call.TriggerAutomatic || entry.RiskLevel != risk.LevelHigh {
		t.Errorf("entry trigger/risk = %s/%s", entry.TriggerType, entry.RiskLevel)
	}
	if !entry.Timestamp.Equal(*s.CompletedAt) {
		t.Errorf("Timestamp = %v, want completion time %v", entry.Timestamp, *s.CompletedAt)
	}
	if entry.ReferralName != "Kano General Hospital, Bompai Road, Kano" {
		t.Errorf("ReferralName = %q", entry.ReferralName)
	}
	if len(pub.entries) != 1 {
		t.Errorf("published %d, want 1", len(pub.entries))
	}

	got, err := rec.Get(ctx, s.ID)
	if err != nil || got.ID != entry.ID {
		t.Errorf("Get() = %v, %v", got, err)
	}
}

func TestRecordDuplicateIsConflict(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(NewMemoryRepository(), nil, nil)
	s := session(t, true, call.ResponseFine)

	first, err := rec.Record(ctx, s)
	if err != nil {
		t.Fatalf("first Record() error = %v", err)
	}
	_, err = rec.Record(ctx, s)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("second Record() error = %v, want conflict", err)
	}

	all, _ := rec.List(ctx, Filter{})
	if len(all) != 1 || all[0].ID != first.ID {
		t.Errorf("entries = %v, want only the first", all)
	}
}

func TestRecordConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(NewMemoryRepository(), nil, nil)
	s := session(t, true, call.ResponseFine)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rec.Record(ctx, s); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Errorf("successful records = %d, want 1", ok)
	}
}

func TestRecordRejectsActiveSession(t *testing.T) {
	rec := NewRecorder(NewMemoryRepository(), nil, nil)
	_, err := rec.Record(context.Background(), session(t, false, ""))
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Errorf("error = %v, want invalid transition", err)
	}
	if _, err := rec.Record(context.Background(), nil); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Errorf("nil session error = %v, want bad request", err)
	}
}

func TestRecordDeclined(t *testing.T) {
	now := time.Now().UTC()
	s := session(t, false, "")
	_ = s.Decline(now)

	rec := NewRecorder(NewMemoryRepository(), nil, nil)
	entry, err := rec.Record(context.Background(), s)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if entry.FinalState != call.StateDeclined || entry.Response != call.ResponseNone {
		t.Errorf("entry = %s/%s", entry.FinalState, entry.Response)
	}
}

func TestPublisherFailureDoesNotFailRecord(t *testing.T) {
	pub := &capturePublisher{err: errors.New("kafka down")}
	rec := NewRecorder(NewMemoryRepository(), pub, nil)
	if _, err := rec.Record(context.Background(), session(t, true, call.ResponseFine)); err != nil {
		t.Errorf("Record() error = %v", err)
	}
}

func TestMemoryRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	a, b := types.NewID(), types.NewID()

	for i, rid := range []types.ID{a, b, a} {
		_ = repo.Append(ctx, &Entry{ID: types.NewID(), SessionID: types.NewID(), RecipientID: rid, Script: string(rune('x' + i))})
	}

	all, _ := repo.List(ctx, Filter{})
	if len(all) != 3 || all[0].Script != "z" {
		t.Errorf("List() = %v, want newest first", all)
	}
	forA, _ := repo.List(ctx, Filter{RecipientID: a})
	if len(forA) != 2 {
		t.Errorf("List(a) len = %d, want 2", len(forA))
	}
	limited, _ := repo.List(ctx, Filter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("List(limit 1) len = %d", len(limited))
	}
	if _, err := repo.FindBySession(ctx, types.NewID()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("FindBySession(unknown) error = %v", err)
	}
}

func TestRecorderWithManager(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(NewMemoryRepository(), nil, nil)
	m := call.NewManager(call.ManagerConfig{Recorder: rec})

	r := recipient.Recipient{ID: types.NewID(), Name: "Fatima", Location: risk.LocationUnit{Name: "Maiduguri", Region: "Borno"}}
	s, _ := m.Trigger(ctx, r, risk.Evaluate(r.Location, risk.RiskSignal{}), "hello", call.TriggerManual)
	_, _ = m.Answer(ctx, s.ID)
	_, _ = m.SubmitResponse(ctx, s.ID, call.ResponseFine)

	entry, err := rec.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.TriggerType != call.TriggerManual || entry.Response != call.ResponseFine {
		t.Errorf("entry = %s/%s", entry.TriggerType, entry.Response)
	}
}
