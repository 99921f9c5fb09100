package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// ResultOK — операция завершилась без ошибки.
	ResultOK = "ok"
	// ResultError — операция вернула ошибку.
	ResultError = "error"
)

// BasketMetrics содержит метрики операций с корзиной и заказами.
// Все методы безопасно вызывать на nil-получателе.
type BasketMetrics struct {
	// Счётчики операций
	operations         *prometheus.CounterVec
	itemsAdded         prometheus.Counter
	basketsTransferred prometheus.Counter
	ordersCreated      prometheus.Counter

	// Гистограммы
	operationDuration *prometheus.HistogramVec
	orderTotal        prometheus.Histogram
}

// NewBasketMetrics создаёт метрики в глобальном registry.
func NewBasketMetrics() *BasketMetrics {
	return NewBasketMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewBasketMetricsWithRegisterer создаёт метрики в переданном registry.
// Повторная регистрация возвращает уже зарегистрированные коллекторы.
func NewBasketMetricsWithRegisterer(registerer prometheus.Registerer) *BasketMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BasketMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "eshop_basket_operations_total",
			Help: "Total number of basket and order service operations grouped by result",
		}, []string{"operation", "result"}),
		itemsAdded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "eshop_basket_items_added_total",
			Help: "Total number of basket lines added",
		}),
		basketsTransferred: registerCounter(registerer, prometheus.CounterOpts{
			Name: "eshop_basket_transfers_total",
			Help: "Total number of anonymous baskets transferred to a user",
		}),
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "eshop_orders_created_total",
			Help: "Total number of orders created from baskets",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "eshop_basket_operation_duration_seconds",
			Help:    "Duration of basket and order service operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		orderTotal: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "eshop_order_total_minor",
			Help:    "Order totals in minor currency units",
			Buckets: prometheus.ExponentialBuckets(100, 4, 8),
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// ObserveOperation фиксирует результат и длительность операции сервиса.
func (m *BasketMetrics) ObserveOperation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// RecordItemAdded увеличивает счётчик добавленных строк корзины.
func (m *BasketMetrics) RecordItemAdded() {
	if m == nil {
		return
	}
	m.itemsAdded.Inc()
}

// RecordBasketTransferred увеличивает счётчик перенесённых корзин.
func (m *BasketMetrics) RecordBasketTransferred() {
	if m == nil {
		return
	}
	m.basketsTransferred.Inc()
}

// RecordOrderCreated учитывает созданный заказ и его сумму.
func (m *BasketMetrics) RecordOrderCreated(totalMinor int64) {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
	m.orderTotal.Observe(float64(totalMinor))
}
