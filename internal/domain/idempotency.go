package domain

import (
	"net/http"
	"strings"
	"time"
)

// DefaultIdempotencyTTL — срок хранения ключа, если ttl не задан.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStatus — состояние ключа идемпотентности.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

// Valid сообщает, что статус известен.
func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s.Terminal()
}

// Terminal сообщает, что обработка завершена и ответ сохранён.
func (s IdempotencyStatus) Terminal() bool {
	return s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// StoredResponse — ответ, который отдаётся при повторе запроса с тем же ключом.
type StoredResponse struct {
	HTTPStatus int
	Body       []byte
}

// Empty сообщает, что ответа нет.
func (r StoredResponse) Empty() bool {
	return r.HTTPStatus == 0 || len(r.Body) == 0
}

// Outcome — статус, с которым сохраняется ответ; 4xx и 5xx считаются неуспехом.
func (r StoredResponse) Outcome() IdempotencyStatus {
	if r.HTTPStatus >= http.StatusBadRequest {
		return IdempotencyStatusFailed
	}
	return IdempotencyStatusDone
}

// Clone возвращает копию с собственным буфером Body.
func (r StoredResponse) Clone() StoredResponse {
	if r.Body != nil {
		r.Body = append([]byte(nil), r.Body...)
	}
	return r
}

// IdempotencyRecord — ключ идемпотентности checkout и сохранённый по нему ответ.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Status      IdempotencyStatus
	Response    StoredResponse
	TTLAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewIdempotencyRecord создаёт запись в статусе processing.
// Пробелы по краям key и requestHash отбрасываются, нулевой ttlAt заменяется на now+DefaultIdempotencyTTL.
func NewIdempotencyRecord(key, requestHash string, now, ttlAt time.Time) (IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" {
		return IdempotencyRecord{}, ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}

	now = now.UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Expired сообщает, что срок хранения истёк к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// ConflictWith объясняет, почему ключ нельзя занять запросом с хэшем requestHash.
func (r IdempotencyRecord) ConflictWith(requestHash string) error {
	if r.RequestHash != strings.TrimSpace(requestHash) {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}

// Replayable сообщает, что по записи можно вернуть сохранённый ответ.
func (r IdempotencyRecord) Replayable() bool {
	return r.Status.Terminal() && !r.Response.Empty()
}

// Clone возвращает копию записи, не разделяющую буфер ответа.
func (r IdempotencyRecord) Clone() IdempotencyRecord {
	r.Response = r.Response.Clone()
	return r
}
