package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
// PullPending отдаёт pending-сообщения в порядке постановки.
type OutboxRepository interface {
	// Enqueue сохраняет сообщение в статусе pending; пустой ID генерируется.
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит ключи идемпотентности и ответы на запросы.
type IdempotencyRepository interface {
	// Reserve сохраняет запись в статусе processing. Если ключ занят непросроченной записью,
	// возвращает её вместе с ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
	Reserve(ctx context.Context, record IdempotencyRecord) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	// Complete сохраняет ответ; статус записи берётся из StoredResponse.Outcome.
	Complete(ctx context.Context, key string, response StoredResponse) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Типы агрегатов и событий в outbox.
const (
	AggregateTypeOrder = "order"

	EventTypeOrderCreated = "order.created"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStatus — состояние сообщения в outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
