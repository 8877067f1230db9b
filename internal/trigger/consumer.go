package trigger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sabihealth/outreach/internal/outreach"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/logging"
	"github.com/sabihealth/outreach/internal/shared/metrics"
	"github.com/segmentio/kafka-go"
)

// SignalUpdate is the message published when a location's rainfall or
// outbreak data changes
type SignalUpdate struct {
	Location   string         `json:"location"`
	Region     string         `json:"region"`
	RainfallMM float64        `json:"rainfall_mm"`
	Hotspots   []risk.Hotspot `json:"hotspots,omitempty"`
}

// MessageReader is the part of a Kafka consumer the signal consumer needs
type MessageReader interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// SignalConsumer applies signal updates and triggers automatic calls for
// the recipients registered in the updated location
type SignalConsumer struct {
	reader   MessageReader
	outreach *outreach.Service
	store    risk.SignalStore
	logger   *slog.Logger
}

// NewSignalConsumer creates a consumer. Updates are written back to the
// evaluator's source when it is a SignalStore.
func NewSignalConsumer(reader MessageReader, svc *outreach.Service, logger *slog.Logger) *SignalConsumer {
	store, _ := svc.Evaluator().Source().(risk.SignalStore)
	return &SignalConsumer{
		reader:   reader,
		outreach: svc,
		store:    store,
		logger:   logging.OrDefault(logger).With("component", "signal-consumer"),
	}
}

// Run consumes until ctx ends
func (c *SignalConsumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("failed to consume signal update", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.Handle(ctx, msg.Value)

		if err := c.reader.Commit(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit signal update", "offset", msg.Offset, "error", err)
		}
	}
}

// Handle applies one encoded update. Malformed updates are logged and dropped.
func (c *SignalConsumer) Handle(ctx context.Context, value []byte) {
	var update SignalUpdate
	if err := json.Unmarshal(value, &update); err != nil {
		metrics.RecordSignalUpdate("invalid")
		c.logger.Warn("dropping malformed signal update", "error", err)
		return
	}

	location := risk.LocationUnit{Name: update.Location, Region: update.Region}
	if err := location.Validate(); err != nil {
		metrics.RecordSignalUpdate("invalid")
		c.logger.Warn("dropping signal update", "error", err)
		return
	}
	signal := risk.RiskSignal{RainfallMM: update.RainfallMM, Hotspots: update.Hotspots}

	if c.store != nil {
		if err := c.store.PutRiskSignal(ctx, location, signal); err != nil {
			c.logger.Warn("failed to store signal update", "location", location.String(), "error", err)
		}
	}

	started, err := c.outreach.TriggerForSignal(ctx, location, signal)
	if err != nil {
		metrics.RecordSignalUpdate("failed")
		c.logger.Error("failed to trigger calls for signal update",
			"location", location.String(), "error", err)
		return
	}

	metrics.RecordSignalUpdate("applied")
	c.logger.Info("signal update applied",
		"location", location.String(), "rainfall_mm", update.RainfallMM, "calls_started", len(started))
}
