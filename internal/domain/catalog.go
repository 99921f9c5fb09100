package domain

// CatalogItem — товар каталога. Корзина и заказ ссылаются на него только по ID.
type CatalogItem struct {
	ID          int64
	Name        string
	Description string
	// PriceMinor — текущая цена в минимальных денежных единицах.
	PriceMinor int64
	// PictureURI — сохранённая ссылка на картинку, может содержать плейсхолдер базового URL.
	PictureURI string
}

// EntityID реализует Entity.
func (c *CatalogItem) EntityID() int64 { return c.ID }

// AssignID реализует Entity.
func (c *CatalogItem) AssignID(id int64) { c.ID = id }

// Clone реализует Entity.
func (c *CatalogItem) Clone() *CatalogItem {
	dup := *c
	return &dup
}
