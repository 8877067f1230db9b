// Package trigger starts automatic calls, either on a fixed interval or
// when a location's risk signal changes.
package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/sabihealth/outreach/internal/call"
	"github.com/sabihealth/outreach/internal/outreach"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/config"
	"github.com/sabihealth/outreach/internal/shared/logging"
	"golang.org/x/time/rate"
)

// SessionRetention is how long final sessions stay in memory after they end
const SessionRetention = 24 * time.Hour

// Scheduler periodically assesses every recipient and dials those at risk
type Scheduler struct {
	outreach *outreach.Service
	calls    *call.Manager
	interval time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler creates a scheduler paced at cfg.CallsPerSec
func NewScheduler(svc *outreach.Service, calls *call.Manager, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Scheduler{
		outreach: svc,
		calls:    calls,
		interval: cfg.Interval,
		limiter:  rate.NewLimiter(rate.Limit(cfg.CallsPerSec), burst),
		logger:   logging.OrDefault(logger).With("component", "scheduler"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes a pass immediately and then on every interval until ctx ends
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce assesses each recipient's location once and triggers automatic
// calls where the level is above LOW. It returns the number of calls started.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if pruned := s.calls.Prune(s.now().Add(-SessionRetention)); pruned > 0 {
		s.logger.Debug("pruned final sessions", "count", pruned)
	}

	people, err := s.outreach.Recipients().List(ctx)
	if err != nil {
		return 0, err
	}

	assessed := make(map[string]risk.Assessment)
	started := 0
	for _, r := range people {
		key := r.Location.Key()
		a, ok := assessed[key]
		if !ok {
			a = s.outreach.Evaluator().Assess(ctx, r.Location)
			assessed[key] = a
		}
		if a.Level == risk.LevelLow || s.calls.Active(r.ID) {
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return started, err
		}
		session, err := s.outreach.TriggerAssessed(ctx, r, a, call.TriggerAutomatic)
		if err != nil {
			s.logger.Error("automatic trigger failed", "recipient_id", r.ID, "error", err)
			continue
		}
		if session != nil {
			started++
		}
	}

	s.logger.Info("scheduled pass complete",
		"recipients", len(people), "locations", len(assessed), "calls_started", started)
	return started, nil
}
