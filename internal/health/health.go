// Package health собирает состояние зависимостей сервиса для /healthz и /readyz.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultCheckTimeout = 2 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// worse возвращает худший из двух статусов.
func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report — тело ответа /healthz.
type Report struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Checks        map[string]Check `json:"checks,omitempty"`
}

// Checker проверяет одну зависимость. Реализация обязана уважать дедлайн ctx.
type Checker interface {
	Check(ctx context.Context) Check
}

type registration struct {
	checker  Checker
	optional bool
}

// Handler отдаёт агрегированное состояние зарегистрированных проверок.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]registration
	version  string
	started  time.Time
	now      func() time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]registration),
		version:  version,
		started:  time.Now(),
		now:      time.Now,
	}
}

// RegisterChecker добавляет проверку, от которой зависит готовность сервиса.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.register(name, registration{checker: checker})
}

// RegisterOptionalChecker добавляет проверку, которая попадает в /healthz, но не снимает готовность.
func (h *Handler) RegisterOptionalChecker(name string, checker Checker) {
	h.register(name, registration{checker: checker, optional: true})
}

func (h *Handler) register(name string, reg registration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = reg
}

// Evaluate выполняет все проверки параллельно. Второй результат сообщает,
// готов ли сервис принимать трафик.
func (h *Handler) Evaluate(ctx context.Context) (Report, bool) {
	h.mu.RLock()
	names := slices.Sorted(maps.Keys(h.checkers))
	regs := make([]registration, len(names))
	for i, name := range names {
		regs[i] = h.checkers[name]
	}
	h.mu.RUnlock()

	results := make([]Check, len(regs))
	var g errgroup.Group
	for i, reg := range regs {
		g.Go(func() error {
			results[i] = reg.checker.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:        StatusHealthy,
		Timestamp:     h.now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(h.now().Sub(h.started).Seconds()),
		Checks:        make(map[string]Check, len(names)),
	}
	ready := true
	for i, name := range names {
		check := results[i]
		report.Checks[name] = check
		report.Status = worse(report.Status, check.Status)
		if check.Status == StatusUnhealthy && !regs[i].optional {
			ready = false
		}
	}
	return report, ready
}

// ServeHTTP отдаёт Report. Unhealthy-статус превращается в 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, _ := h.Evaluate(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if _, ready := h.Evaluate(r.Context()); !ready {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// PingChecker проверяет доступность зависимости, например Postgres.
type PingChecker struct {
	name    string
	timeout time.Duration
	ping    func(ctx context.Context) error
}

// NewPingChecker создаёт проверку доступности; timeout <= 0 заменяется на 2s.
func NewPingChecker(name string, timeout time.Duration, ping func(ctx context.Context) error) *PingChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &PingChecker{name: name, timeout: timeout, ping: ping}
}

func (c *PingChecker) Check(ctx context.Context) Check {
	return run(ctx, c.name, c.timeout, func(ctx context.Context) (Status, string) {
		if err := c.ping(ctx); err != nil {
			return StatusUnhealthy, err.Error()
		}
		return StatusHealthy, ""
	})
}

// BacklogChecker переводит компонент в degraded, когда очередь длиннее threshold.
// Ошибка чтения размера считается unhealthy, threshold <= 0 отключает порог.
type BacklogChecker struct {
	name      string
	threshold int
	size      func(ctx context.Context) (int, error)
}

func NewBacklogChecker(name string, threshold int, size func(ctx context.Context) (int, error)) *BacklogChecker {
	return &BacklogChecker{name: name, threshold: threshold, size: size}
}

func (c *BacklogChecker) Check(ctx context.Context) Check {
	return run(ctx, c.name, defaultCheckTimeout, func(ctx context.Context) (Status, string) {
		n, err := c.size(ctx)
		switch {
		case err != nil:
			return StatusUnhealthy, err.Error()
		case c.threshold > 0 && n > c.threshold:
			return StatusDegraded, fmt.Sprintf("backlog %d exceeds threshold %d", n, c.threshold)
		}
		return StatusHealthy, ""
	})
}

func run(ctx context.Context, name string, timeout time.Duration, probe func(context.Context) (Status, string)) Check {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	status, msg := probe(ctx)
	return Check{
		Name:       name,
		Status:     status,
		Message:    msg,
		DurationMs: time.Since(start).Milliseconds(),
	}
}
