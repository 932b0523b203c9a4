package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/internal/config"
)

const RecommendationsServedEvent = "recommendations_served"

// RecommendationEvent records one answered recommendation request. Only ids are published,
// never usage data.
type RecommendationEvent struct {
	EventID      uuid.UUID `json:"event_id"`
	EventType    string    `json:"event_type"`
	RequestID    uuid.UUID `json:"request_id"`
	UserID       string    `json:"user_id,omitempty"`
	Domain       string    `json:"domain"`
	Mode         string    `json:"mode"`
	ItemIDs      []string  `json:"item_ids"`
	Personalized int       `json:"personalized"`
	Fallback     int       `json:"fallback"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher sends recommendation events to the event bus.
type Publisher interface {
	PublishRecommendation(ctx context.Context, event RecommendationEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *logrus.Logger
}

// NewPublisher returns a Kafka publisher, or a no-op publisher when no broker is configured.
func NewPublisher(cfg config.KafkaConfig, logger *logrus.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		logger.Info("No Kafka brokers configured, recommendation events are disabled")
		return NoopPublisher{}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topics.Recommendations,
		Balancer:     &kafka.Hash{}, // Key by domain
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.WithError(err).WithField("messages", len(messages)).Error("Failed to deliver recommendation events")
			}
		},
	}

	return newKafkaPublisher(writer, cfg.Topics.Recommendations, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) PublishRecommendation(ctx context.Context, event RecommendationEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.EventType == "" {
		event.EventType = RecommendationsServedEvent
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Domain),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.logger.WithError(err).WithField("event_id", event.EventID).Error("Failed to publish event to Kafka")
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id":   event.EventID,
		"request_id": event.RequestID,
		"topic":      p.topic,
	}).Debug("Event published to Kafka")

	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	return nil
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishRecommendation(context.Context, RecommendationEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
