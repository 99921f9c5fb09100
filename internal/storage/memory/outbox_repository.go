package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

const defaultOutboxPullLimit = 100

type outboxEntry struct {
	msg       domain.OutboxMessage
	status    domain.OutboxStatus
	attempts  int
	createdAt time.Time
}

// OutboxRepository — in-memory outbox. Сообщения отдаются в порядке Enqueue.
type OutboxRepository struct {
	mu      sync.Mutex
	entries []*outboxEntry
	byID    map[string]*outboxEntry
	now     func() time.Time
}

// NewOutboxRepository создаёт пустой outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{byID: make(map[string]*outboxEntry), now: time.Now}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[msg.ID]; ok {
		return domain.OutboxMessage{}, fmt.Errorf("%w: %s", domain.ErrOutboxDuplicate, msg.ID)
	}
	entry := &outboxEntry{msg: msg, status: domain.OutboxStatusPending, createdAt: r.now().UTC()}
	r.entries = append(r.entries, entry)
	r.byID[msg.ID] = entry
	return msg, nil
}

func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultOutboxPullLimit
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var messages []domain.OutboxMessage
	for _, entry := range r.entries {
		if len(messages) == limit {
			break
		}
		if entry.status == domain.OutboxStatusPending {
			msg := entry.msg
			msg.Payload = append([]byte(nil), msg.Payload...)
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxStats{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for _, entry := range r.entries {
		if entry.status != domain.OutboxStatusPending {
			continue
		}
		// entries упорядочены по времени постановки, первое pending-сообщение самое старое.
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = entry.createdAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.OutboxStatusSent)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.OutboxStatusFailed)
}

// Status возвращает состояние сообщения и число попыток публикации.
func (r *OutboxRepository) Status(id string) (domain.OutboxStatus, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[id]
	if !ok {
		return "", 0, false
	}
	return entry.status, entry.attempts, true
}

func (r *OutboxRepository) transition(ctx context.Context, id string, status domain.OutboxStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOutboxMessageNotFound, id)
	}
	entry.status = status
	entry.attempts++
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
