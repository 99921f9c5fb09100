package kafka

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

// TopicPublisher публикует outbox-сообщения в один topic, ключ сообщения — id агрегата.
type TopicPublisher struct {
	producer *Producer
	topic    string
	// sourceTopic задан у DLQ-паблишера и попадает в заголовки вместе со временем отказа.
	sourceTopic string
	now         func() time.Time
}

// NewOutboxPublisher создаёт publisher основного topic'а.
func NewOutboxPublisher(producer *Producer, topic string) *TopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &TopicPublisher{producer: producer, topic: topic, now: time.Now}
}

// NewDLQPublisher создаёт publisher в dead letter queue для сообщений из sourceTopic.
func NewDLQPublisher(producer *Producer, dlqTopic, sourceTopic string) *TopicPublisher {
	if dlqTopic == "" {
		dlqTopic = TopicDeadLetterQueue
	}
	if sourceTopic == "" {
		sourceTopic = TopicOrderEvents
	}
	return &TopicPublisher{producer: producer, topic: dlqTopic, sourceTopic: sourceTopic, now: time.Now}
}

// Topic возвращает topic назначения.
func (p *TopicPublisher) Topic() string {
	return p.topic
}

// Publish отправляет сообщение в конверте Envelope.
func (p *TopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil {
		return ErrProducerNotInitialized
	}
	_, err := p.producer.Send(ctx, p.message(msg))
	return err
}

func (p *TopicPublisher) message(msg domain.OutboxMessage) Message {
	now := p.now()

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}

	headers := map[string]string{HeaderEventType: msg.EventType}
	if p.sourceTopic != "" {
		headers[HeaderOriginalTopic] = p.sourceTopic
		headers[HeaderFailedAt] = now.UTC().Format(time.RFC3339Nano)
	}

	return Message{
		Topic:     p.topic,
		Key:       key,
		Value:     NewEnvelope(msg, now),
		Headers:   headers,
		Timestamp: now,
	}
}

var _ domain.OutboxPublisher = (*TopicPublisher)(nil)
