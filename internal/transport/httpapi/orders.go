package httpapi

import (
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

type checkoutRequest struct {
	Address domain.Address `json:"address"`
}

type listOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
}

// checkout оформляет заказ из корзины и удаляет её.
// С заголовком Idempotency-Key повторный запрос возвращает сохранённый ответ.
func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	basketID, err := pathID(r, "basketID")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	run := func(ctx context.Context) (int, any) {
		return a.placeOrder(ctx, r, basketID, req.Address)
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if a.idempotency == nil || key == "" {
		status, body := run(r.Context())
		a.writeJSON(w, status, body)
		return
	}

	hash, err := checkoutRequestHash(basketID, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.withIdempotency(w, r, key, hash, run)
}

func (a *API) placeOrder(ctx context.Context, r *http.Request, basketID int64, shipTo domain.Address) (int, any) {
	order, err := a.orders.CreateOrder(ctx, basketID, shipTo)
	if err != nil {
		status, body := errorBody(err)
		if status == http.StatusInternalServerError {
			a.logger.WithError(err).WithField("path", r.URL.Path).Error("checkout failed")
		}
		return status, body
	}

	// Заказ уже сохранён, поэтому ошибка удаления корзины не отменяет ответ.
	if err := a.baskets.DeleteBasket(ctx, basketID); err != nil {
		a.logger.WithError(err).WithFields(log.Fields{
			"basket_id": basketID,
			"order_id":  order.ID,
		}).Warn("failed to delete basket after checkout")
	}
	return http.StatusCreated, toOrderResponse(order)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	order, err := a.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.orders.ListBuyerOrders(r.Context(), r.URL.Query().Get("buyer_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := listOrdersResponse{Orders: make([]orderResponse, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(order))
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) getCatalogItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemID")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	item, err := a.catalog.GetByID(r.Context(), itemID)
	if err != nil {
		a.writeError(w, r, catalogLookupError(itemID, err))
		return
	}

	pictureURI := item.PictureURI
	if a.uris != nil {
		pictureURI = a.uris.ComposePictureURI(pictureURI)
	}
	a.writeJSON(w, http.StatusOK, catalogItemResponse{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		PriceMinor:  item.PriceMinor,
		PictureURI:  pictureURI,
	})
}
