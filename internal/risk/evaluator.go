package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sabihealth/outreach/internal/shared/logging"
	"github.com/sabihealth/outreach/internal/shared/metrics"
)

// Rainfall thresholds in millimetres over the last 24 hours
const (
	HeavyRainfallMM     = 15.0
	VeryHeavyRainfallMM = 40.0
)

// NoRiskReason is the only reason on an assessment with nothing to report
const NoRiskReason = "no significant health risk detected"

const (
	reasonVeryHeavyRain = "very heavy rainfall — high vector-breeding risk"
	reasonHeavyRain     = "heavy rainfall — increased mosquito breeding"
)

// Evaluate classifies a signal. It is pure and safe for concurrent use.
func Evaluate(location LocationUnit, signal RiskSignal) Assessment {
	rainfall := signal.RainfallMM
	if rainfall < 0 || math.IsNaN(rainfall) {
		rainfall = 0
	}

	var reasons []string
	rainHigh, rainMedium := false, false
	switch {
	case rainfall > VeryHeavyRainfallMM:
		reasons = append(reasons, reasonVeryHeavyRain)
		rainHigh = true
	case rainfall > HeavyRainfallMM:
		reasons = append(reasons, reasonHeavyRain)
		rainMedium = true
	}

	hotspotHigh := false
	for _, h := range signal.Hotspots {
		if h.Severity == SeverityHigh {
			reasons = append(reasons, fmt.Sprintf("active %s outbreak in area", h.Disease))
			hotspotHigh = true
		}
	}
	for _, h := range signal.Hotspots {
		if h.Severity == SeverityMedium {
			reasons = append(reasons, fmt.Sprintf("%s cases reported nearby", h.Disease))
		}
	}

	hasHotspot := len(signal.Hotspots) > 0

	level := LevelLow
	switch {
	case rainHigh || hotspotHigh:
		level = LevelHigh
	case rainMedium || hasHotspot:
		level = LevelMedium
	}

	if len(reasons) == 0 {
		reasons = append(reasons, NoRiskReason)
	}

	return Assessment{
		Location:   location,
		Level:      level,
		Reasons:    reasons,
		RainfallMM: rainfall,
		HasHotspot: hasHotspot,
		AssessedAt: time.Now().UTC(),
	}
}

// Evaluator fetches signals from a source and classifies them
type Evaluator struct {
	source  SignalSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewEvaluator creates an evaluator over a signal source
func NewEvaluator(source SignalSource, timeout time.Duration, logger *slog.Logger) *Evaluator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Evaluator{
		source:  source,
		timeout: timeout,
		logger:  logging.OrDefault(logger).With("component", "risk"),
	}
}

// Assess evaluates the current signal for a location. A failing source
// degrades to a zero signal rather than an error.
func (e *Evaluator) Assess(ctx context.Context, location LocationUnit) Assessment {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	signal, err := e.source.GetRiskSignal(ctx, location)
	if err != nil {
		e.logger.Warn("signal source failed, using zero signal",
			"location", location.String(), "error", err)
		signal = RiskSignal{}
	}
	return e.Record(location, signal)
}

// Record evaluates a caller-supplied signal and counts it in metrics
func (e *Evaluator) Record(location LocationUnit, signal RiskSignal) Assessment {
	a := Evaluate(location, signal)
	metrics.RecordAssessment(string(a.Level))
	e.logger.Debug("risk assessed",
		"location", location.String(), "level", a.Level, "reasons", len(a.Reasons))
	return a
}

// Source returns the signal source behind the evaluator
func (e *Evaluator) Source() SignalSource {
	return e.source
}
