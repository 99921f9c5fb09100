package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

type getOrCreateBasketRequest struct {
	BuyerID string `json:"buyer_id"`
}

type addItemRequest struct {
	CatalogItemID int64 `json:"catalog_item_id"`
	Quantity      *int  `json:"quantity"`
}

type transferBasketRequest struct {
	AnonymousID string `json:"anonymous_id"`
	UserID      string `json:"user_id"`
}

type countItemsResponse struct {
	BuyerID string `json:"buyer_id"`
	Count   int    `json:"count"`
}

func (a *API) getOrCreateBasket(w http.ResponseWriter, r *http.Request) {
	var req getOrCreateBasketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	basket, err := a.baskets.GetOrCreateBasketForBuyer(r.Context(), req.BuyerID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toBasketResponse(basket))
}

func (a *API) getBasket(w http.ResponseWriter, r *http.Request) {
	basketID, err := pathID(r, "basketID")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	basket, err := a.baskets.GetBasket(r.Context(), basketID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toBasketResponse(basket))
}

func (a *API) countItems(w http.ResponseWriter, r *http.Request) {
	buyerID := strings.TrimSpace(r.URL.Query().Get("buyer_id"))
	count, err := a.baskets.CountItems(r.Context(), buyerID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, countItemsResponse{BuyerID: buyerID, Count: count})
}

// addItem добавляет товар в корзину по текущей цене каталога.
// Отсутствующее количество считается равным DefaultItemQuantity, явный 0 отклоняется.
func (a *API) addItem(w http.ResponseWriter, r *http.Request) {
	basketID, err := pathID(r, "basketID")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	quantity := domain.DefaultItemQuantity
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 {
		a.writeError(w, r, fmt.Errorf("%w: added quantity must be positive, got %d", domain.ErrInvalidQuantity, quantity))
		return
	}

	product, err := a.catalog.GetByID(r.Context(), req.CatalogItemID)
	if err != nil {
		a.writeError(w, r, catalogLookupError(req.CatalogItemID, err))
		return
	}

	basket, err := a.baskets.AddItemToBasket(r.Context(), basketID, product.ID, product.PriceMinor, quantity)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toBasketResponse(basket))
}

func (a *API) setQuantities(w http.ResponseWriter, r *http.Request) {
	basketID, err := pathID(r, "basketID")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	quantities := make(map[string]int)
	if err := decodeJSON(w, r, &quantities); err != nil {
		a.writeError(w, r, err)
		return
	}

	basket, err := a.baskets.SetQuantities(r.Context(), basketID, quantities)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toBasketResponse(basket))
}

func (a *API) deleteBasket(w http.ResponseWriter, r *http.Request) {
	basketID, err := pathID(r, "basketID")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.baskets.DeleteBasket(r.Context(), basketID); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) transferBasket(w http.ResponseWriter, r *http.Request) {
	var req transferBasketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.baskets.TransferBasket(r.Context(), req.AnonymousID, req.UserID); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func catalogLookupError(itemID int64, err error) error {
	if domain.IsNotFound(err) {
		return fmt.Errorf("catalog item %d: %w", itemID, domain.ErrCatalogItemNotFound)
	}
	return fmt.Errorf("load catalog item %d: %w", itemID, err)
}
