package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	"github.com/vladislavdragonenkov/eshop-basket/internal/metrics"
	"github.com/vladislavdragonenkov/eshop-basket/internal/storage/memory"
)

var _ domain.IdempotencyRepository = (*scriptedRepo)(nil)

// scriptedRepo отдаёт заранее заданные результаты DeleteExpired и запоминает аргументы вызовов.
type scriptedRepo struct {
	domain.IdempotencyRepository

	mu      sync.Mutex
	script  []deleteStep
	befores []time.Time
	limits  []int
}

type deleteStep struct {
	deleted int
	err     error
}

func (r *scriptedRepo) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.befores = append(r.befores, before)
	r.limits = append(r.limits, limit)
	if len(r.script) == 0 {
		return 0, nil
	}
	step := r.script[0]
	r.script = r.script[1:]
	return step.deleted, step.err
}

func (r *scriptedRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.befores)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestCleanupWorker_RunOnce(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*60*60))
	dbDown := errors.New("db down")

	testCases := []struct {
		name       string
		script     []deleteStep
		maxBatches int
		want       CleanupResult
		wantCalls  int
		wantErr    error
	}{
		{
			name:      "drains until a short batch",
			script:    []deleteStep{{deleted: 2}, {deleted: 2}, {deleted: 1}},
			want:      CleanupResult{Deleted: 5, Batches: 3},
			wantCalls: 3,
		},
		{
			name:      "nothing expired",
			want:      CleanupResult{Batches: 1},
			wantCalls: 1,
		},
		{
			name:       "stops at batch limit",
			script:     []deleteStep{{deleted: 2}, {deleted: 2}, {deleted: 2}},
			maxBatches: 2,
			want:       CleanupResult{Deleted: 4, Batches: 2, Truncated: true},
			wantCalls:  2,
		},
		{
			name:      "repository error keeps partial result",
			script:    []deleteStep{{deleted: 2}, {err: dbDown}},
			want:      CleanupResult{Deleted: 2, Batches: 1},
			wantCalls: 2,
			wantErr:   dbDown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &scriptedRepo{script: tc.script}
			worker := NewCleanupWorker(repo,
				WithBatchSize(2),
				WithMaxBatches(tc.maxBatches),
				WithClock(fixedClock(now)),
			)

			got, err := worker.RunOnce(context.Background())
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.wantCalls, repo.calls())
			for i := range repo.befores {
				require.True(t, repo.befores[i].Equal(now), "all batches use the same cutoff")
				require.Equal(t, time.UTC, repo.befores[i].Location())
				require.Equal(t, 2, repo.limits[i])
			}
		})
	}
}

func TestCleanupWorker_RunOnce_CanceledContext(t *testing.T) {
	repo := &scriptedRepo{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCleanupWorker(repo).RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, repo.calls())
}

func TestCleanupWorker_RunOnce_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	repo := &scriptedRepo{script: []deleteStep{{deleted: 3}, {deleted: 1}}}
	worker := NewCleanupWorker(repo,
		WithBatchSize(3),
		WithMetrics(metrics.NewCleanupMetricsWithRegisterer(reg)),
	)

	_, err := worker.RunOnce(context.Background())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, family := range families {
		metric := family.GetMetric()[0]
		switch family.GetName() {
		case "eshop_idempotency_cleanup_deleted_total":
			values[family.GetName()] = metric.GetCounter().GetValue()
		case "eshop_idempotency_cleanup_last_deleted":
			values[family.GetName()] = metric.GetGauge().GetValue()
		}
	}
	require.Equal(t, 4.0, values["eshop_idempotency_cleanup_deleted_total"])
	require.Equal(t, 4.0, values["eshop_idempotency_cleanup_last_deleted"])
}

func TestCleanupWorker_Run_StopsOnContextCancel(t *testing.T) {
	repo := &scriptedRepo{}
	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	require.Eventually(t, func() bool { return repo.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestCleanupWorker_Run_NilRepoReturnsImmediately(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewCleanupWorker(nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without repository must exit")
	}
}

func TestCleanupWorker_WithMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for _, key := range []string{"checkout-1", "checkout-2", "checkout-3"} {
		_, err := repo.Reserve(ctx, domain.IdempotencyRecord{Key: key, RequestHash: "hash", TTLAt: now.Add(-time.Minute)})
		require.NoError(t, err)
	}
	_, err := repo.Reserve(ctx, domain.IdempotencyRecord{Key: "checkout-live", RequestHash: "hash", TTLAt: now.Add(time.Hour)})
	require.NoError(t, err)

	result, err := NewCleanupWorker(repo, WithBatchSize(2), WithClock(fixedClock(now))).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, result.Deleted)
	require.Equal(t, 2, result.Batches)

	_, err = repo.Get(ctx, "checkout-live")
	require.NoError(t, err, "live key must survive cleanup")
	_, err = repo.Get(ctx, "checkout-1")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	require.Equal(t, 1, repo.Len())
}
