package domain

import (
	"strings"
	"time"
)

// DefaultItemQuantity — количество, с которым позиция попадает в корзину, если его не указали.
const DefaultItemQuantity = 1

// BasketItem — позиция корзины. Существует только внутри своей корзины.
type BasketItem struct {
	id             int64
	catalogItemID  int64
	unitPriceMinor int64
	quantity       int
}

// RestoreBasketItem собирает позицию из сохранённого состояния (для хранилищ).
func RestoreBasketItem(id, catalogItemID, unitPriceMinor int64, quantity int) BasketItem {
	return BasketItem{
		id:             id,
		catalogItemID:  catalogItemID,
		unitPriceMinor: unitPriceMinor,
		quantity:       quantity,
	}
}

// ID уникален в пределах корзины.
func (i BasketItem) ID() int64 { return i.id }

// CatalogItemID — ссылка на товар каталога.
func (i BasketItem) CatalogItemID() int64 { return i.catalogItemID }

// UnitPriceMinor — цена за единицу в минимальных денежных единицах, фиксируется при добавлении.
func (i BasketItem) UnitPriceMinor() int64 { return i.unitPriceMinor }

// Quantity — текущее количество единиц.
func (i BasketItem) Quantity() int { return i.quantity }

// SetQuantity меняет количество. Пустые позиции не удаляются автоматически.
func (i *BasketItem) SetQuantity(quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	i.quantity = quantity
	return nil
}

// Basket — агрегат корзины покупателя. Позиции меняются только через методы корзины.
type Basket struct {
	id      int64
	buyerID string
	items   []BasketItem
	// nextItemID — id следующей позиции; только растёт.
	nextItemID int64
	createdAt  time.Time
	updatedAt  time.Time
}

// NewBasket создаёт пустую корзину покупателя. buyerID содержит id пользователя или анонимный токен сессии.
func NewBasket(buyerID string) (*Basket, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return nil, ErrBuyerRequired
	}
	now := time.Now().UTC()
	return &Basket{
		buyerID:    buyerID,
		nextItemID: 1,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// RestoreBasket собирает корзину из сохранённого состояния (для хранилищ).
// nextItemID не может оказаться меньше max(id позиций)+1.
func RestoreBasket(id int64, buyerID string, nextItemID int64, items []BasketItem, createdAt, updatedAt time.Time) *Basket {
	for _, item := range items {
		nextItemID = max(nextItemID, item.id+1)
	}
	return &Basket{
		id:         id,
		buyerID:    buyerID,
		items:      append([]BasketItem(nil), items...),
		nextItemID: max(nextItemID, 1),
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}
}

// ID — идентификатор, назначенный хранилищем (0 до сохранения).
func (b *Basket) ID() int64 { return b.id }

// BuyerID — владелец корзины.
func (b *Basket) BuyerID() string { return b.buyerID }

// NextItemID — id, который получит следующая добавленная позиция.
func (b *Basket) NextItemID() int64 { return b.nextItemID }

// CreatedAt возвращает момент создания корзины.
func (b *Basket) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt возвращает момент последнего изменения корзины.
func (b *Basket) UpdatedAt() time.Time { return b.updatedAt }

// Items возвращает копию позиций в порядке добавления.
func (b *Basket) Items() []BasketItem {
	return append([]BasketItem(nil), b.items...)
}

// AddItem всегда добавляет новую строку, даже если товар уже есть в корзине:
// строки с одинаковым catalogItemID не объединяются.
func (b *Basket) AddItem(catalogItemID, unitPriceMinor int64, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	if unitPriceMinor < 0 {
		return ErrInvalidUnitPrice
	}

	b.items = append(b.items, BasketItem{
		id:             b.nextItemID,
		catalogItemID:  catalogItemID,
		unitPriceMinor: unitPriceMinor,
		quantity:       quantity,
	})
	b.nextItemID++
	b.touch()
	return nil
}

// SetItemQuantity меняет количество позиции itemID.
func (b *Basket) SetItemQuantity(itemID int64, quantity int) error {
	for idx := range b.items {
		if b.items[idx].id != itemID {
			continue
		}
		if err := b.items[idx].SetQuantity(quantity); err != nil {
			return err
		}
		b.touch()
		return nil
	}
	return ErrBasketItemNotFound
}

// RemoveEmptyItems удаляет позиции с нулевым количеством. Идемпотентна.
func (b *Basket) RemoveEmptyItems() {
	kept := b.items[:0]
	for _, item := range b.items {
		if item.quantity == 0 {
			continue
		}
		kept = append(kept, item)
	}
	if len(kept) != len(b.items) {
		b.touch()
	}
	// Обнуляем хвост, чтобы не держать удалённые позиции в backing array.
	for idx := len(kept); idx < len(b.items); idx++ {
		b.items[idx] = BasketItem{}
	}
	b.items = kept
}

// TotalItems возвращает суммарное количество единиц во всех позициях.
func (b *Basket) TotalItems() int {
	total := 0
	for _, item := range b.items {
		total += item.quantity
	}
	return total
}

// TotalMinor возвращает сумму корзины: qty * price по всем позициям.
func (b *Basket) TotalMinor() int64 {
	var total int64
	for _, item := range b.items {
		total += int64(item.quantity) * item.unitPriceMinor
	}
	return total
}

// EntityID реализует Entity.
func (b *Basket) EntityID() int64 { return b.id }

// AssignID реализует Entity.
func (b *Basket) AssignID(id int64) { b.id = id }

// Clone возвращает независимую копию корзины.
func (b *Basket) Clone() *Basket {
	return RestoreBasket(b.id, b.buyerID, b.nextItemID, b.items, b.createdAt, b.updatedAt)
}

func (b *Basket) touch() {
	b.updatedAt = time.Now().UTC()
}

// BasketWithItemsSpecification выбирает корзину покупателя вместе с позициями.
type BasketWithItemsSpecification struct {
	BuyerID string
}

// IsSatisfiedBy реализует Specification.
func (s BasketWithItemsSpecification) IsSatisfiedBy(basket *Basket) bool {
	return basket != nil && basket.buyerID == s.BuyerID
}

var _ Specification[Basket] = BasketWithItemsSpecification{}
