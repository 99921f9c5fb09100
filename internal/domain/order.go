package domain

import (
	"strings"
	"time"
)

// Address — адрес доставки заказа.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	ZipCode string `json:"zip_code"`
}

// Validate проверяет обязательные поля адреса. State необязателен.
func (a Address) Validate() error {
	if strings.TrimSpace(a.Street) == "" ||
		strings.TrimSpace(a.City) == "" ||
		strings.TrimSpace(a.Country) == "" ||
		strings.TrimSpace(a.ZipCode) == "" {
		return ErrAddressInvalid
	}
	return nil
}

// CatalogItemOrdered — снимок товара на момент оформления заказа.
// Последующие изменения каталога не влияют на исторические заказы.
type CatalogItemOrdered struct {
	CatalogItemID int64
	ProductName   string
	PictureURI    string
}

// OrderItem — позиция заказа.
type OrderItem struct {
	ID             int64
	ItemOrdered    CatalogItemOrdered
	UnitPriceMinor int64
	Units          int
}

// Order агрегирует оформленный заказ покупателя.
type Order struct {
	ID        int64
	BuyerID   string
	OrderDate time.Time
	ShipTo    Address
	Items     []OrderItem
}

// TotalMinor возвращает сумму заказа.
func (o *Order) TotalMinor() int64 {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Units) * item.UnitPriceMinor
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(o.BuyerID) == "" {
		errs = append(errs, ErrBuyerRequired)
	}
	if err := o.ShipTo.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrOrderItemsRequired)
	}
	for _, item := range o.Items {
		if item.Units <= 0 {
			errs = append(errs, ErrOrderUnitsInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrInvalidUnitPrice)
		}
	}

	return errs
}

// EntityID реализует Entity.
func (o *Order) EntityID() int64 { return o.ID }

// AssignID реализует Entity.
func (o *Order) AssignID(id int64) { o.ID = id }

// Clone реализует Entity.
func (o *Order) Clone() *Order {
	dup := *o
	dup.Items = append([]OrderItem(nil), o.Items...)
	return &dup
}

// OrdersByBuyerSpecification выбирает все заказы покупателя.
type OrdersByBuyerSpecification struct {
	BuyerID string
}

// IsSatisfiedBy реализует Specification.
func (s OrdersByBuyerSpecification) IsSatisfiedBy(order *Order) bool {
	return order != nil && order.BuyerID == s.BuyerID
}

var _ Specification[Order] = OrdersByBuyerSpecification{}
