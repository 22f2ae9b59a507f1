package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"otp-gateway/internal/client"
	"otp-gateway/internal/models"
)

const dispatchEventType = "otp.dispatched"

// MessageProducer publishes one message to a topic.
type MessageProducer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

var _ MessageProducer = (*client.KafkaProducer)(nil)

// KafkaSink publishes dispatch events keyed by phone hash, so events for one
// phone stay ordered within a partition.
type KafkaSink struct {
	producer MessageProducer
	topic    string
}

func NewKafkaSink(producer MessageProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

func (s *KafkaSink) WriteDispatchEvent(ctx context.Context, event *models.DispatchEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode dispatch event: %w", err)
	}

	headers := map[string]string{
		"event_type": dispatchEventType,
		"method":     event.Method,
	}
	if event.Reason != "" {
		headers["reason"] = event.Reason
	}

	return s.producer.ProduceMessage(ctx, s.topic, []byte(event.PhoneHash), value, headers)
}
