package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	"github.com/vladislavdragonenkov/eshop-basket/internal/metrics"
)

const (
	// IdempotencyKeyHeader — заголовок с ключом идемпотентности checkout.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader выставляется, если ответ взят из сохранённой записи.
	IdempotentReplayHeader = "Idempotent-Replayed"
)

// withIdempotency выполняет run не более одного раза для пары (key, hash)
// и сохраняет ответ для повторов.
func (a *API) withIdempotency(w http.ResponseWriter, r *http.Request, key, hash string, run func(context.Context) (int, any)) {
	ctx := r.Context()

	existing, err := a.idempotency.Reserve(ctx, domain.IdempotencyRecord{
		Key:         key,
		RequestHash: hash,
		TTLAt:       a.now().Add(a.idempotencyTTL),
	})
	if err != nil {
		a.replayIdempotency(w, r, err, existing)
		return
	}

	status, body := run(ctx)
	response := domain.StoredResponse{HTTPStatus: status}
	if response.Body, err = json.Marshal(body); err != nil {
		a.logger.WithError(err).WithField("idempotency_key", key).Error("failed to encode idempotent response")
		response = domain.StoredResponse{HTTPStatus: http.StatusInternalServerError, Body: []byte(`{"error":"internal error"}`)}
	}

	// Ответ сохраняется и после отмены запроса клиентом, иначе ключ останется в processing до истечения ttl.
	if err := a.idempotency.Complete(context.WithoutCancel(ctx), key, response); err != nil {
		a.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
	a.metrics.ObserveIdempotency(metrics.IdempotencyStored)
	writeRaw(w, response.HTTPStatus, response.Body)
}

func (a *API) replayIdempotency(w http.ResponseWriter, r *http.Request, reserveErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(reserveErr, domain.ErrIdempotencyHashMismatch):
		a.metrics.ObserveIdempotency(metrics.IdempotencyConflict)
		a.writeJSON(w, http.StatusConflict, errorResponse{Error: "idempotency key is already used with different request payload"})
	case !errors.Is(reserveErr, domain.ErrIdempotencyKeyAlreadyExists):
		a.writeError(w, r, fmt.Errorf("reserve idempotency key: %w", reserveErr))
	case record.Replayable():
		a.metrics.ObserveIdempotency(metrics.IdempotencyReplayed)
		w.Header().Set(IdempotentReplayHeader, "true")
		writeRaw(w, record.Response.HTTPStatus, record.Response.Body)
	case record.Status == domain.IdempotencyStatusProcessing:
		a.metrics.ObserveIdempotency(metrics.IdempotencyInProgress)
		a.writeJSON(w, http.StatusConflict, errorResponse{Error: "request with the same idempotency key is already processing"})
	default:
		a.logger.WithFields(log.Fields{
			"idempotency_key": record.Key,
			"status":          record.Status,
			"path":            r.URL.Path,
		}).Warn("idempotency record has no stored response")
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "idempotency cache is empty"})
	}
}

// checkoutRequestHash строит хэш по корзине и нормализованному телу запроса.
func checkoutRequestHash(basketID int64, req checkoutRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode checkout request: %w", err)
	}

	payload := make([]byte, 0, len(data)+32)
	payload = fmt.Appendf(payload, "checkout:%d:", basketID)
	payload = append(payload, data...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
