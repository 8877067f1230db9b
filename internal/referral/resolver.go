package referral

import (
	"context"
	"log/slog"
	"time"

	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/logging"
	"github.com/sabihealth/outreach/internal/shared/metrics"
)

// Resolver finds a referral facility and never fails: directory misses,
// errors and timeouts all degrade to the generic fallback facility.
type Resolver struct {
	directory Directory
	timeout   time.Duration
	logger    *slog.Logger
}

// NewResolver creates a resolver over a facility directory
func NewResolver(directory Directory, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		directory: directory,
		timeout:   timeout,
		logger:    logging.OrDefault(logger).With("component", "referral"),
	}
}

// Resolve returns the nearest facility for a location, or the fallback
func (r *Resolver) Resolve(ctx context.Context, location risk.LocationUnit) FacilityRef {
	if r.directory == nil {
		metrics.RecordReferral("fallback")
		return Fallback(location)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		ref *FacilityRef
		err error
	}
	// Run the lookup so a directory that ignores ctx still cannot block past the timeout.
	done := make(chan result, 1)
	go func() {
		ref, err := r.directory.LookupNearest(ctx, location)
		done <- result{ref, err}
	}()

	select {
	case res := <-done:
		if res.err != nil || res.ref == nil {
			r.logger.Info("no facility found, using fallback",
				"location", location.String(), "error", res.err)
			metrics.RecordReferral("fallback")
			return Fallback(location)
		}
		metrics.RecordReferral("directory")
		return *res.ref
	case <-ctx.Done():
		r.logger.Warn("facility lookup timed out, using fallback",
			"location", location.String(), "timeout", r.timeout)
		metrics.RecordReferral("fallback")
		return Fallback(location)
	}
}
