package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	"github.com/vladislavdragonenkov/eshop-basket/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultMaxRetryDelay  = 5 * time.Second
)

type workerConfig struct {
	logger         *log.Entry
	metrics        *metrics.OutboxMetrics
	dlq            domain.OutboxPublisher
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	maxRetryDelay  time.Duration
	now            func() time.Time
}

// Option настраивает Worker.
type Option func(*workerConfig)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(cfg *workerConfig) { cfg.logger = logger }
}

// WithMetrics подключает метрики публикации и backlog.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(cfg *workerConfig) { cfg.metrics = m }
}

// WithDLQPublisher задаёт publisher, куда уходят сообщения после исчерпания попыток.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(cfg *workerConfig) { cfg.dlq = publisher }
}

// WithPollInterval задаёт паузу между опросами outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(cfg *workerConfig) { cfg.pollInterval = interval }
}

// WithBatchSize задаёт число сообщений, забираемых за один опрос.
func WithBatchSize(batchSize int) Option {
	return func(cfg *workerConfig) { cfg.batchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации одного сообщения.
func WithMaxAttempts(maxAttempts int) Option {
	return func(cfg *workerConfig) { cfg.maxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт задержку перед второй попыткой; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(cfg *workerConfig) { cfg.retryBaseDelay = delay }
}

// WithMaxRetryDelay ограничивает рост задержки между попытками.
func WithMaxRetryDelay(delay time.Duration) Option {
	return func(cfg *workerConfig) { cfg.maxRetryDelay = delay }
}

// WithClock подменяет источник времени для отметок DLQ и возраста backlog.
func WithClock(now func() time.Time) Option {
	return func(cfg *workerConfig) { cfg.now = now }
}

// BatchReport — итог одного опроса outbox.
type BatchReport struct {
	Pulled       int
	Sent         int
	Failed       int
	DeadLettered int
}

// Worker переносит pending-сообщения из outbox в брокер.
// Сообщение помечается sent после успешной публикации и failed после исчерпания попыток.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       workerConfig
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	cfg := workerConfig{
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		maxRetryDelay:  defaultMaxRetryDelay,
		now:            time.Now,
	}
	for _, option := range options {
		option(&cfg)
	}

	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "outbox-worker")
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultBatchSize
	}
	if cfg.maxAttempts <= 0 {
		cfg.maxAttempts = defaultMaxAttempts
	}
	if cfg.retryBaseDelay < 0 {
		cfg.retryBaseDelay = 0
	}
	if cfg.maxRetryDelay <= 0 {
		cfg.maxRetryDelay = defaultMaxRetryDelay
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	return &Worker{repo: repo, publisher: publisher, cfg: cfg}
}

// Run опрашивает outbox сразу и затем каждые pollInterval, пока ctx не отменён.
// Полный батч означает, что в outbox, вероятно, остались сообщения, и следующий опрос идёт без паузы.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.cfg.logger.Warn("outbox worker is disabled: repo or publisher is nil")
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

		report, err := w.ProcessOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.cfg.logger.WithError(err).Warn("outbox poll failed")
		}
		if report.Failed > 0 {
			w.cfg.logger.WithFields(log.Fields{
				"pulled":        report.Pulled,
				"sent":          report.Sent,
				"failed":        report.Failed,
				"dead_lettered": report.DeadLettered,
			}).Warn("outbox batch finished with failures")
		}

		next := w.cfg.pollInterval
		if err == nil && report.Pulled == w.cfg.batchSize {
			next = 0
		}
		timer.Reset(next)
	}
}

// ProcessOnce забирает один батч pending-сообщений и публикует их по порядку.
// Ошибка возвращается, только если батч не удалось получить или ctx отменён.
func (w *Worker) ProcessOnce(ctx context.Context) (BatchReport, error) {
	var report BatchReport
	if err := ctx.Err(); err != nil {
		return report, err
	}
	defer w.refreshBacklog(context.WithoutCancel(ctx))

	messages, err := w.repo.PullPending(ctx, w.cfg.batchSize)
	if err != nil {
		return report, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	report.Pulled = len(messages)

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		logger := w.cfg.logger.WithFields(log.Fields{"outbox_id": msg.ID, "event_type": msg.EventType})

		publishErr := w.publish(ctx, msg)
		if publishErr == nil {
			report.Sent++
			if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
				logger.WithError(err).Warn("failed to mark outbox message as sent")
			}
			continue
		}
		if errors.Is(publishErr, context.Canceled) {
			return report, publishErr
		}

		report.Failed++
		w.cfg.metrics.ObservePublish(metrics.PublishFailed)
		logger.WithError(publishErr).Error("outbox publish failed after retries")

		if w.cfg.dlq != nil {
			if err := w.deadLetter(ctx, msg, publishErr); err != nil {
				w.cfg.metrics.ObservePublish(metrics.PublishDLQFailed)
				logger.WithError(err).Warn("failed to publish to DLQ")
			} else {
				report.DeadLettered++
			}
		}
		if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
			logger.WithError(err).Warn("failed to mark outbox message as failed")
		}
	}

	return report, nil
}

func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, w.retryDelay(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = w.publisher.Publish(ctx, msg)
		if lastErr == nil {
			w.cfg.metrics.ObservePublish(metrics.PublishSent)
			return nil
		}
		w.cfg.metrics.ObservePublish(metrics.PublishRetryError)
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.cfg.maxAttempts, lastErr)
}

// retryDelay возвращает паузу после n-й неудачной попытки: base, 2*base, 4*base... не больше maxRetryDelay.
func (w *Worker) retryDelay(failed int) time.Duration {
	delay := w.cfg.retryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < failed; i++ {
		if delay >= w.cfg.maxRetryDelay/2 {
			return w.cfg.maxRetryDelay
		}
		delay *= 2
	}
	return min(delay, w.cfg.maxRetryDelay)
}

func (w *Worker) deadLetter(ctx context.Context, msg domain.OutboxMessage, publishErr error) error {
	payload, err := json.Marshal(domain.NewDeadLetter(msg, publishErr, w.cfg.now()))
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	letter := msg
	letter.Payload = payload
	if err := w.cfg.dlq.Publish(ctx, letter); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.cfg.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if !stats.OldestPendingAt.IsZero() {
		age = w.cfg.now().Sub(stats.OldestPendingAt)
	}
	w.cfg.metrics.SetBacklog(stats.PendingCount, age)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
