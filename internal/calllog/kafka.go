package calllog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sabihealth/outreach/internal/shared/queue"
)

// KafkaPublisher publishes recorded entries keyed by recipient, so one
// recipient's history stays ordered within a partition
type KafkaPublisher struct {
	producer *queue.Producer
}

// NewKafkaPublisher creates a publisher on the call log topic
func NewKafkaPublisher(producer *queue.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// PublishEntry sends an entry as JSON
func (p *KafkaPublisher) PublishEntry(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal call log entry: %w", err)
	}
	return p.producer.Publish(ctx, entry.RecipientID.String(), data)
}
