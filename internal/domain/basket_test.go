package domain_test

import (
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

func newBasket(t *testing.T, buyerID string) *domain.Basket {
	t.Helper()
	basket, err := domain.NewBasket(buyerID)
	if err != nil {
		t.Fatalf("new basket: %v", err)
	}
	return basket
}

func TestNewBasket_RequiresBuyer(t *testing.T) {
	if _, err := domain.NewBasket("   "); !errors.Is(err, domain.ErrBuyerRequired) {
		t.Fatalf("expected ErrBuyerRequired, got %v", err)
	}
}

// Сценарий: товар 20 по цене 50, количество сбрасывается в 0, очистка оставляет пустую корзину.
func TestBasket_AddItemThenRemoveEmpty(t *testing.T) {
	basket := newBasket(t, "testbuyer")

	if err := basket.AddItem(20, 50, domain.DefaultItemQuantity); err != nil {
		t.Fatalf("add item: %v", err)
	}

	items := basket.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].UnitPriceMinor() != 50 {
		t.Fatalf("expected unit price 50, got %d", items[0].UnitPriceMinor())
	}
	if items[0].Quantity() != 1 {
		t.Fatalf("expected quantity 1, got %d", items[0].Quantity())
	}

	if err := basket.SetItemQuantity(items[0].ID(), 0); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	basket.RemoveEmptyItems()

	if got := len(basket.Items()); got != 0 {
		t.Fatalf("expected empty basket, got %d items", got)
	}
}

func TestBasket_AddItemAppendsLineForSameCatalogItem(t *testing.T) {
	basket := newBasket(t, "buyer-1")

	if err := basket.AddItem(7, 100, 1); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := basket.AddItem(7, 100, 2); err != nil {
		t.Fatalf("second add: %v", err)
	}

	items := basket.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 separate lines, got %d", len(items))
	}
	if items[0].ID() == items[1].ID() {
		t.Fatalf("item ids must be unique within basket, both are %d", items[0].ID())
	}
	if items[0].Quantity() != 1 || items[1].Quantity() != 2 {
		t.Fatalf("lines must keep their own quantities, got %d and %d", items[0].Quantity(), items[1].Quantity())
	}
	if basket.TotalItems() != 3 {
		t.Fatalf("expected 3 units, got %d", basket.TotalItems())
	}
	if basket.TotalMinor() != 300 {
		t.Fatalf("expected total 300, got %d", basket.TotalMinor())
	}
}

func TestBasket_AddItemValidation(t *testing.T) {
	cases := []struct {
		name     string
		price    int64
		quantity int
		wantErr  error
	}{
		{name: "negative quantity", price: 10, quantity: -1, wantErr: domain.ErrInvalidQuantity},
		{name: "negative price", price: -10, quantity: 1, wantErr: domain.ErrInvalidUnitPrice},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			basket := newBasket(t, "buyer-1")
			if err := basket.AddItem(1, tc.price, tc.quantity); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if len(basket.Items()) != 0 {
				t.Fatal("failed add must not change basket")
			}
		})
	}
}

func TestBasket_SetItemQuantity(t *testing.T) {
	basket := newBasket(t, "buyer-1")
	if err := basket.AddItem(1, 10, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}
	itemID := basket.Items()[0].ID()

	if err := basket.SetItemQuantity(itemID, -5); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if got := basket.Items()[0].Quantity(); got != 1 {
		t.Fatalf("rejected quantity must not be applied, got %d", got)
	}

	if err := basket.SetItemQuantity(itemID+100, 3); !errors.Is(err, domain.ErrBasketItemNotFound) {
		t.Fatalf("expected ErrBasketItemNotFound, got %v", err)
	}

	if err := basket.SetItemQuantity(itemID, 0); err != nil {
		t.Fatalf("set zero quantity: %v", err)
	}
	if got := len(basket.Items()); got != 1 {
		t.Fatalf("zero quantity must not purge the line by itself, got %d items", got)
	}
}

func TestBasket_ItemsReturnsCopy(t *testing.T) {
	basket := newBasket(t, "buyer-1")
	if err := basket.AddItem(1, 10, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}

	items := basket.Items()
	if err := items[0].SetQuantity(9); err != nil {
		t.Fatalf("set quantity on copy: %v", err)
	}

	if got := basket.Items()[0].Quantity(); got != 1 {
		t.Fatalf("mutating a copy must not change the basket, got %d", got)
	}
}

func TestBasket_RemoveEmptyItemsIdempotent(t *testing.T) {
	basket := newBasket(t, "buyer-1")
	for _, catalogID := range []int64{1, 2, 3} {
		if err := basket.AddItem(catalogID, 10, 1); err != nil {
			t.Fatalf("add item: %v", err)
		}
	}
	if err := basket.SetItemQuantity(basket.Items()[1].ID(), 0); err != nil {
		t.Fatalf("set quantity: %v", err)
	}

	basket.RemoveEmptyItems()
	basket.RemoveEmptyItems()

	items := basket.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].CatalogItemID() != 1 || items[1].CatalogItemID() != 3 {
		t.Fatalf("insertion order must be preserved, got %d,%d", items[0].CatalogItemID(), items[1].CatalogItemID())
	}

	// Новая позиция не должна переиспользовать id существующих строк.
	if err := basket.AddItem(4, 10, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}
	seen := map[int64]bool{}
	for _, item := range basket.Items() {
		if seen[item.ID()] {
			t.Fatalf("duplicate item id %d", item.ID())
		}
		seen[item.ID()] = true
	}
}

func TestBasket_CloneIsIndependent(t *testing.T) {
	basket := newBasket(t, "buyer-1")
	if err := basket.AddItem(1, 10, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}

	clone := basket.Clone()
	if err := clone.SetItemQuantity(clone.Items()[0].ID(), 5); err != nil {
		t.Fatalf("set quantity: %v", err)
	}

	if got := basket.Items()[0].Quantity(); got != 1 {
		t.Fatalf("clone mutation leaked into original, got %d", got)
	}
}

func TestBasket_ItemIDsAreNotReusedAfterPurge(t *testing.T) {
	basket := newBasket(t, "buyer-1")
	for _, catalogID := range []int64{20, 21} {
		if err := basket.AddItem(catalogID, 50, 1); err != nil {
			t.Fatalf("add item %d: %v", catalogID, err)
		}
	}

	if err := basket.SetItemQuantity(2, 0); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	basket.RemoveEmptyItems()
	if err := basket.AddItem(99, 10, 1); err != nil {
		t.Fatalf("add item 99: %v", err)
	}

	items := basket.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if got := items[1]; got.ID() != 3 || got.CatalogItemID() != 99 {
		t.Fatalf("expected catalog 99 under id 3, got id=%d catalog=%d", got.ID(), got.CatalogItemID())
	}
	if err := basket.SetItemQuantity(2, 5); !errors.Is(err, domain.ErrBasketItemNotFound) {
		t.Fatalf("purged id 2 must stay unknown, got %v", err)
	}
	if got := basket.NextItemID(); got != 4 {
		t.Fatalf("expected next item id 4, got %d", got)
	}
}

func TestRestoreBasket_NextItemID(t *testing.T) {
	items := []domain.BasketItem{
		domain.RestoreBasketItem(1, 20, 50, 1),
		domain.RestoreBasketItem(4, 21, 70, 2),
	}
	testCases := []struct {
		name   string
		stored int64
		want   int64
	}{
		{name: "stored sequence ahead of items", stored: 9, want: 9},
		{name: "stored sequence behind items", stored: 2, want: 5},
		{name: "missing sequence", stored: 0, want: 5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			basket := domain.RestoreBasket(1, "buyer-1", tc.stored, items, time.Now(), time.Now())
			if got := basket.NextItemID(); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
			if got := basket.Clone().NextItemID(); got != tc.want {
				t.Fatalf("clone lost sequence: expected %d, got %d", tc.want, got)
			}
		})
	}

	if got := domain.RestoreBasket(1, "buyer-1", 0, nil, time.Now(), time.Now()).NextItemID(); got != 1 {
		t.Fatalf("empty basket must start at 1, got %d", got)
	}
}

func TestBasketWithItemsSpecification(t *testing.T) {
	spec := domain.BasketWithItemsSpecification{BuyerID: "anon-1"}

	if !spec.IsSatisfiedBy(newBasket(t, "anon-1")) {
		t.Fatal("expected basket of anon-1 to match")
	}
	if spec.IsSatisfiedBy(newBasket(t, "user-1")) {
		t.Fatal("basket of another buyer must not match")
	}
	if spec.IsSatisfiedBy(nil) {
		t.Fatal("nil basket must not match")
	}
}

// После обнуления части позиций и очистки в корзине остаются ровно ненулевые позиции.
func TestBasket_RemoveEmptyItemsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		basket, err := domain.NewBasket("buyer-prop")
		if err != nil {
			rt.Fatalf("new basket: %v", err)
		}

		count := rapid.IntRange(0, 20).Draw(rt, "count")
		for i := 0; i < count; i++ {
			catalogID := rapid.Int64Range(1, 5).Draw(rt, "catalog_id")
			price := rapid.Int64Range(0, 10_000).Draw(rt, "price")
			qty := rapid.IntRange(1, 10).Draw(rt, "qty")
			if err := basket.AddItem(catalogID, price, qty); err != nil {
				rt.Fatalf("add item: %v", err)
			}
		}

		wantKept := map[int64]int{}
		for _, item := range basket.Items() {
			if rapid.Bool().Draw(rt, "zero") {
				if err := basket.SetItemQuantity(item.ID(), 0); err != nil {
					rt.Fatalf("set quantity: %v", err)
				}
				continue
			}
			wantKept[item.ID()] = item.Quantity()
		}

		basket.RemoveEmptyItems()

		items := basket.Items()
		if len(items) != len(wantKept) {
			rt.Fatalf("expected %d items after cleanup, got %d", len(wantKept), len(items))
		}
		for _, item := range items {
			if item.Quantity() == 0 {
				rt.Fatalf("item %d kept with zero quantity", item.ID())
			}
			qty, ok := wantKept[item.ID()]
			if !ok {
				rt.Fatalf("unexpected item %d after cleanup", item.ID())
			}
			if qty != item.Quantity() {
				rt.Fatalf("item %d quantity changed: want %d got %d", item.ID(), qty, item.Quantity())
			}
		}
	})
}
