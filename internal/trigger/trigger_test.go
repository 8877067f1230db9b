package trigger

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sabihealth/outreach/internal/call"
	"github.com/sabihealth/outreach/internal/message"
	"github.com/sabihealth/outreach/internal/outreach"
	"github.com/sabihealth/outreach/internal/recipient"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/config"
	"github.com/sabihealth/outreach/internal/shared/types"
	"github.com/segmentio/kafka-go"
)

var oyo = risk.LocationUnit{Name: "Ibadan North", Region: "Oyo"}

type harness struct {
	svc    *outreach.Service
	calls  *call.Manager
	source *risk.StaticSource
	low    recipient.Recipient
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	low := recipient.Recipient{ID: types.NewID(), Name: "Tunde Ade", Phone: "+2348000000001", Location: oyo}
	people := append(recipient.DemoRecipients(), low)
	source := risk.NewSeededSource()
	calls := call.NewManager(call.ManagerConfig{Delivery: call.NewMockDelivery()})
	svc := outreach.NewService(
		recipient.NewMemoryDirectory(people...),
		risk.NewEvaluator(source, time.Second, nil),
		message.NewSeededComposer(3),
		calls,
		nil,
	)
	return &harness{svc: svc, calls: calls, source: source, low: low}
}

func TestSchedulerRunOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := NewScheduler(h.svc, h.calls, config.SchedulerConfig{Interval: time.Hour, CallsPerSec: 1000, Burst: 10}, nil)

	started, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if started != 3 {
		t.Fatalf("started = %d, want 3 (demo recipients are all in hotspots)", started)
	}
	if h.calls.Active(h.low.ID) {
		t.Error("low risk recipient was called")
	}

	again, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce() error = %v", err)
	}
	if again != 0 {
		t.Errorf("second pass started %d calls, want 0 while calls are in flight", again)
	}
}

func TestSchedulerPrunesFinalSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := NewScheduler(h.svc, h.calls, config.SchedulerConfig{Interval: time.Hour, CallsPerSec: 1000, Burst: 10}, nil)

	if _, err := s.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	for _, sess := range h.calls.List(ctx, "") {
		if _, err := h.calls.Decline(ctx, sess.ID); err != nil {
			t.Fatalf("Decline() error = %v", err)
		}
	}

	s.now = func() time.Time { return time.Now().UTC().Add(SessionRetention + time.Hour) }
	started, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if started != 3 {
		t.Errorf("started = %d, want 3 after previous calls ended", started)
	}
	if n := len(h.calls.List(ctx, "")); n != 3 {
		t.Errorf("sessions in memory = %d, want 3 after prune", n)
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	s := NewScheduler(h.svc, h.calls, config.SchedulerConfig{Interval: time.Hour, CallsPerSec: 0.001, Burst: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(values ...[]byte) *fakeReader {
	r := &fakeReader{drained: make(chan struct{})}
	for i, v := range values {
		r.messages = append(r.messages, kafka.Message{Offset: int64(i), Value: v})
	}
	return r
}

func (r *fakeReader) Consume(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Commit(ctx context.Context, msg kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msg.Offset)
	return nil
}

func encode(t *testing.T, u SignalUpdate) []byte {
	t.Helper()
	b, err := json.Marshal(u)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSignalConsumerHandle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := NewSignalConsumer(newFakeReader(), h.svc, nil)

	c.Handle(ctx, encode(t, SignalUpdate{Location: "Ibadan North", Region: "Oyo", RainfallMM: 50}))

	if !h.calls.Active(h.low.ID) {
		t.Fatal("heavy rain update did not trigger a call")
	}
	sessions := h.calls.List(ctx, h.low.ID)
	if len(sessions) != 1 || sessions[0].Risk.Level != risk.LevelHigh {
		t.Fatalf("sessions = %+v", sessions)
	}

	sig, err := h.source.GetRiskSignal(ctx, oyo)
	if err != nil || sig.RainfallMM != 50 {
		t.Errorf("stored signal = %+v, %v", sig, err)
	}
	if a := h.svc.Evaluator().Assess(ctx, oyo); a.Level != risk.LevelHigh {
		t.Errorf("assessment after update = %s, want HIGH", a.Level)
	}
}

func TestSignalConsumerDropsBadUpdates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := NewSignalConsumer(newFakeReader(), h.svc, nil)

	c.Handle(ctx, []byte("{not json"))
	c.Handle(ctx, encode(t, SignalUpdate{Region: "Oyo", RainfallMM: 80}))
	c.Handle(ctx, encode(t, SignalUpdate{Location: "Ibadan North", Region: "Oyo", RainfallMM: 2}))

	if n := len(h.calls.List(ctx, "")); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
}

func TestSignalConsumerRunCommits(t *testing.T) {
	h := newHarness(t)
	reader := newFakeReader(
		encode(t, SignalUpdate{Location: "Ibadan North", Region: "Oyo", RainfallMM: 20}),
		[]byte("garbage"),
	)
	c := NewSignalConsumer(reader, h.svc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-reader.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	<-done

	reader.mu.Lock()
	defer reader.mu.Unlock()
	if len(reader.committed) != 2 {
		t.Errorf("committed = %v, want both offsets", reader.committed)
	}
	if !h.calls.Active(h.low.ID) {
		t.Error("medium rain update did not trigger a call")
	}
}
