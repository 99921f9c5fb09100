package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestHTTPMetrics_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegisterer(reg)

	m.ObserveRequest(http.MethodGet, "/api/v1/baskets/{basketID}/", http.StatusOK, time.Now())
	m.ObserveRequest(http.MethodGet, "/api/v1/baskets/{basketID}/", http.StatusOK, time.Now())
	m.ObserveRequest(http.MethodGet, "/api/v1/baskets/{basketID}/", http.StatusNotFound, time.Now())

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var requests *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "eshop_http_requests_total" {
			requests = family
		}
	}
	if requests == nil {
		t.Fatal("eshop_http_requests_total not found")
	}

	counts := make(map[string]float64)
	for _, metric := range requests.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "code" {
				counts[label.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	if counts["200"] != 2 || counts["404"] != 1 {
		t.Fatalf("unexpected request counts: %v", counts)
	}
}

func TestHTTPMetrics_NilIsNoop(_ *testing.T) {
	var m *HTTPMetrics
	m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Now())
}

func TestHTTPMetrics_ObserveIdempotency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegisterer(reg)

	m.ObserveIdempotency(IdempotencyStored)
	m.ObserveIdempotency(IdempotencyReplayed)
	m.ObserveIdempotency(IdempotencyReplayed)
	m.ObserveIdempotency(IdempotencyConflict)

	outcomes := counterByLabel(gatherFamily(t, reg, "eshop_http_idempotent_requests_total"), "outcome")
	if outcomes[IdempotencyStored] != 1 || outcomes[IdempotencyReplayed] != 2 || outcomes[IdempotencyConflict] != 1 {
		t.Fatalf("unexpected idempotency outcomes: %v", outcomes)
	}

	var nilMetrics *HTTPMetrics
	nilMetrics.ObserveIdempotency(IdempotencyInProgress)
}
