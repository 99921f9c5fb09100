package domain

import (
	"encoding/json"
	"time"
)

// DeadLetter — запись о сообщении outbox, которое не удалось опубликовать после всех попыток.
// В таком виде она уходит в DLQ и читается обратно утилитой повторной отправки.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt string          `json:"dlq_published_at"`
}

// NewDeadLetter собирает запись для DLQ из исходного сообщения и последней ошибки публикации.
func NewDeadLetter(msg OutboxMessage, publishErr error, at time.Time) DeadLetter {
	letter := DeadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        json.RawMessage(msg.Payload),
		DLQPublishedAt: at.UTC().Format(time.RFC3339Nano),
	}
	if publishErr != nil {
		letter.PublishError = publishErr.Error()
	}
	return letter
}
