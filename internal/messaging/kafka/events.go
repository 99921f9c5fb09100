package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

// EventType — тип события в конверте.
type EventType string

// EventTypeOrderCreated публикуется после оформления заказа из корзины.
const EventTypeOrderCreated EventType = domain.EventTypeOrderCreated

// Topics по умолчанию.
const (
	TopicOrderEvents     = "eshop.order.events"
	TopicDeadLetterQueue = "eshop.dlq"
)

// Заголовки Kafka-сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope — JSON-конверт, в котором outbox-сообщение уходит в брокер.
// Payload встраивается как есть, без повторного кодирования.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение; пустой payload кодируется как null.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	envelope := Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     EventType(msg.EventType),
		Payload:       json.RawMessage("null"),
		PublishedAt:   publishedAt.UTC(),
	}
	if len(msg.Payload) > 0 {
		envelope.Payload = append(json.RawMessage(nil), msg.Payload...)
	}
	return envelope
}
