package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	"github.com/vladislavdragonenkov/eshop-basket/internal/metrics"
)

const (
	defaultCleanupInterval   = 10 * time.Minute
	defaultCleanupBatchSize  = 500
	defaultCleanupMaxBatches = 20
)

type cleanupConfig struct {
	logger     *log.Entry
	metrics    *metrics.CleanupMetrics
	interval   time.Duration
	batchSize  int
	maxBatches int
	now        func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*cleanupConfig)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(cfg *cleanupConfig) { cfg.logger = logger }
}

// WithMetrics подключает метрики очистки. Без опции метрики не пишутся.
func WithMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(cfg *cleanupConfig) { cfg.metrics = m }
}

// WithInterval задаёт паузу между прогонами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(cfg *cleanupConfig) { cfg.interval = interval }
}

// WithBatchSize задаёт число записей, удаляемых одним запросом.
func WithBatchSize(batchSize int) CleanupOption {
	return func(cfg *cleanupConfig) { cfg.batchSize = batchSize }
}

// WithMaxBatches ограничивает число batch-удалений за один прогон,
// остаток дочищается на следующем тике.
func WithMaxBatches(maxBatches int) CleanupOption {
	return func(cfg *cleanupConfig) { cfg.maxBatches = maxBatches }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) CleanupOption {
	return func(cfg *cleanupConfig) { cfg.now = now }
}

// CleanupResult — итог одного прогона очистки.
type CleanupResult struct {
	Deleted int
	Batches int
	// Truncated — прогон упёрся в WithMaxBatches, а просроченные записи ещё остались.
	Truncated bool
}

// CleanupWorker удаляет ключи идемпотентности с истёкшим ttl.
type CleanupWorker struct {
	repo domain.IdempotencyRepository
	cfg  cleanupConfig
}

// NewCleanupWorker создаёт воркер очистки. Некорректные значения опций заменяются значениями по умолчанию.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	cfg := cleanupConfig{
		interval:   defaultCleanupInterval,
		batchSize:  defaultCleanupBatchSize,
		maxBatches: defaultCleanupMaxBatches,
		now:        time.Now,
	}
	for _, option := range options {
		option(&cfg)
	}

	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "idempotency-cleanup-worker")
	}
	if cfg.interval <= 0 {
		cfg.interval = defaultCleanupInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultCleanupBatchSize
	}
	if cfg.maxBatches <= 0 {
		cfg.maxBatches = defaultCleanupMaxBatches
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	return &CleanupWorker{repo: repo, cfg: cfg}
}

// Run выполняет прогон сразу и затем каждые interval, пока ctx не отменён.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.cfg.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		result, err := w.RunOnce(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			w.cfg.logger.WithError(err).WithField("deleted", result.Deleted).Warn("idempotency cleanup run failed")
		case result.Deleted > 0:
			w.cfg.logger.WithFields(log.Fields{
				"deleted":   result.Deleted,
				"batches":   result.Batches,
				"truncated": result.Truncated,
			}).Info("idempotency cleanup completed")
		}
		timer.Reset(w.cfg.interval)
	}
}

// RunOnce удаляет записи, просроченные на момент вызова, пока очередной batch не окажется неполным
// или не будет исчерпан лимит batch-удалений.
func (w *CleanupWorker) RunOnce(ctx context.Context) (CleanupResult, error) {
	before := w.cfg.now().UTC()

	var result CleanupResult
	for result.Batches < w.cfg.maxBatches {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		deleted, err := w.repo.DeleteExpired(ctx, before, w.cfg.batchSize)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.cfg.metrics.ObserveRun(result.Deleted, err)
			}
			return result, err
		}
		result.Batches++
		result.Deleted += deleted
		w.cfg.metrics.AddDeleted(deleted)

		if deleted < w.cfg.batchSize {
			w.cfg.metrics.ObserveRun(result.Deleted, nil)
			return result, nil
		}
	}

	result.Truncated = true
	w.cfg.metrics.ObserveRun(result.Deleted, nil)
	return result, nil
}
