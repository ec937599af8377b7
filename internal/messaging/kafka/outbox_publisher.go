package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// OutboxEnvelope — формат сообщения outbox в Kafka. Payload хранит событие как есть.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOutboxEnvelope оборачивает сообщение outbox.
func NewOutboxEnvelope(event domain.OutboxMessage, publishedAt time.Time) OutboxEnvelope {
	return OutboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   publishedAt,
	}
}

// OutboxTopicPublisher публикует outbox-сообщения в topic, выбранный по типу агрегата.
type OutboxTopicPublisher struct {
	producer     *Producer
	defaultTopic string
	// fixed отключает выбор topic по агрегату (DLQ).
	fixed bool
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
// defaultTopic используется для агрегатов без собственного topic.
func NewOutboxPublisher(producer *Producer, defaultTopic string) domain.OutboxPublisher {
	if defaultTopic == "" {
		defaultTopic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer:     producer,
		defaultTopic: defaultTopic,
	}
}

// NewDLQPublisher публикует все сообщения в TopicDeadLetterQueue.
func NewDLQPublisher(producer *Producer) domain.OutboxPublisher {
	return &OutboxTopicPublisher{
		producer:     producer,
		defaultTopic: TopicDeadLetterQueue,
		fixed:        true,
	}
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := NewOutboxEnvelope(event, time.Now().UTC())

	return p.producer.PublishEvent(p.topicFor(event.AggregateType), key, envelope)
}

func (p *OutboxTopicPublisher) topicFor(aggregateType string) string {
	if p.fixed {
		return p.defaultTopic
	}
	if topic := TopicForAggregate(aggregateType); topic != "" {
		return topic
	}
	return p.defaultTopic
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
