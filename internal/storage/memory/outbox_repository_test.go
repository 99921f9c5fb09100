package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

func orderEvent(orderID int) domain.OutboxMessage {
	return domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   fmt.Sprint(orderID),
		EventType:     domain.EventTypeOrderCreated,
		Payload:       []byte(fmt.Sprintf(`{"order_id":%d}`, orderID)),
	}
}

func TestOutboxRepository_EnqueueAssignsIDAndCopiesPayload(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	msg := orderEvent(1)
	saved, err := repo.Enqueue(ctx, msg)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	msg.Payload[0] = 'X'

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, saved.ID, pending[0].ID)
	require.JSONEq(t, `{"order_id":1}`, string(pending[0].Payload))

	_, err = repo.Enqueue(ctx, domain.OutboxMessage{ID: saved.ID})
	require.ErrorIs(t, err, domain.ErrOutboxDuplicate)
}

func TestOutboxRepository_PullPendingKeepsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	for _, id := range []string{"m-1", "m-2", "m-3"} {
		_, err := repo.Enqueue(ctx, domain.OutboxMessage{ID: id})
		require.NoError(t, err)
	}
	require.NoError(t, repo.MarkSent(ctx, "m-1"))

	pending, err := repo.PullPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "m-2", pending[0].ID)

	pending, err = repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2, "non-positive limit falls back to default")
}

func TestOutboxRepository_TransitionsAndStats(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()
	start := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	clock := start
	repo.now = func() time.Time { return clock }

	first, err := repo.Enqueue(ctx, orderEvent(1))
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	second, err := repo.Enqueue(ctx, orderEvent(2))
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OutboxStats{PendingCount: 2, OldestPendingAt: start}, stats)

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OutboxStats{PendingCount: 1, OldestPendingAt: start.Add(time.Minute)}, stats)

	require.NoError(t, repo.MarkFailed(ctx, second.ID))
	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.IsZero())

	status, attempts, ok := repo.Status(second.ID)
	require.True(t, ok)
	require.Equal(t, domain.OutboxStatusFailed, status)
	require.Equal(t, 1, attempts)

	require.ErrorIs(t, repo.MarkFailed(ctx, "missing"), domain.ErrOutboxMessageNotFound)
	_, _, ok = repo.Status("missing")
	require.False(t, ok)
}
