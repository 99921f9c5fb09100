package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

// errBadRequest помечает некорректный JSON или параметры пути.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

type basketItemResponse struct {
	ID             int64 `json:"id"`
	CatalogItemID  int64 `json:"catalog_item_id"`
	UnitPriceMinor int64 `json:"unit_price_minor"`
	Quantity       int   `json:"quantity"`
}

type basketResponse struct {
	ID         int64                `json:"id"`
	BuyerID    string               `json:"buyer_id"`
	Items      []basketItemResponse `json:"items"`
	TotalItems int                  `json:"total_items"`
	TotalMinor int64                `json:"total_minor"`
}

type orderItemResponse struct {
	ID             int64  `json:"id"`
	CatalogItemID  int64  `json:"catalog_item_id"`
	ProductName    string `json:"product_name"`
	PictureURI     string `json:"picture_uri"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Units          int    `json:"units"`
}

type orderResponse struct {
	ID         int64               `json:"id"`
	BuyerID    string              `json:"buyer_id"`
	OrderDate  time.Time           `json:"order_date"`
	ShipTo     domain.Address      `json:"ship_to"`
	Items      []orderItemResponse `json:"items"`
	TotalMinor int64               `json:"total_minor"`
}

type catalogItemResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceMinor  int64  `json:"price_minor"`
	PictureURI  string `json:"picture_uri"`
}

func toBasketResponse(b *domain.Basket) basketResponse {
	items := b.Items()
	resp := basketResponse{
		ID:         b.ID(),
		BuyerID:    b.BuyerID(),
		Items:      make([]basketItemResponse, 0, len(items)),
		TotalItems: b.TotalItems(),
		TotalMinor: b.TotalMinor(),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, basketItemResponse{
			ID:             item.ID(),
			CatalogItemID:  item.CatalogItemID(),
			UnitPriceMinor: item.UnitPriceMinor(),
			Quantity:       item.Quantity(),
		})
	}
	return resp
}

func toOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		ID:         o.ID,
		BuyerID:    o.BuyerID,
		OrderDate:  o.OrderDate,
		ShipTo:     o.ShipTo,
		Items:      make([]orderItemResponse, 0, len(o.Items)),
		TotalMinor: o.TotalMinor(),
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:             item.ID,
			CatalogItemID:  item.ItemOrdered.CatalogItemID,
			ProductName:    item.ItemOrdered.ProductName,
			PictureURI:     item.ItemOrdered.PictureURI,
			UnitPriceMinor: item.UnitPriceMinor,
			Units:          item.Units,
		})
	}
	return resp
}

// statusForError сопоставляет доменную ошибку HTTP-статусу.
func statusForError(err error) int {
	switch {
	case domain.IsIdempotencyConflict(err):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBasketEmpty):
		return http.StatusUnprocessableEntity
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsValidation(err),
		errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorBody возвращает статус и тело ответа для ошибки.
// Текст внутренних ошибок наружу не отдаётся.
func errorBody(err error) (int, errorResponse) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		return status, errorResponse{Error: "internal error"}
	}
	return status, errorResponse{Error: err.Error()}
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.WithError(err).Warn("failed to encode response")
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorBody(err)
	if status == http.StatusInternalServerError {
		a.logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	a.writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, name)
	}
	return id, nil
}
