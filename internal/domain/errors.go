package domain

import "errors"

var (
	// ErrNotFound возвращается репозиторием, если агрегат отсутствует в хранилище.
	ErrNotFound = errors.New("entity not found")
	// ErrUnsupportedSpecification — хранилище не умеет исполнять переданную спецификацию.
	ErrUnsupportedSpecification = errors.New("unsupported specification")

	// ErrBasketNotFound — корзина с запрошенным идентификатором не существует.
	ErrBasketNotFound = errors.New("basket not found")
	// ErrBasketItemNotFound — в корзине нет позиции с таким идентификатором.
	ErrBasketItemNotFound = errors.New("basket item not found")
	// ErrBasketEmpty — из пустой корзины нельзя оформить заказ.
	ErrBasketEmpty = errors.New("basket contains no items")
	// Ошибка отрицательного количества товара.
	ErrInvalidQuantity = errors.New("quantity must be non-negative")
	// Ошибка отрицательной цены позиции.
	ErrInvalidUnitPrice = errors.New("unit price must be non-negative")
	// Ошибка отсутствующего идентификатора покупателя.
	ErrBuyerRequired = errors.New("buyer_id is required")

	// ErrCatalogItemNotFound — позиция корзины ссылается на отсутствующий товар каталога.
	ErrCatalogItemNotFound = errors.New("catalog item not found")

	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// Ошибка неполного адреса доставки.
	ErrAddressInvalid = errors.New("shipping address is incomplete")
	// Ошибка отсутствия позиций в заказе.
	ErrOrderItemsRequired = errors.New("order must contain at least one item")
	// Ошибка некорректного количества единиц в позиции заказа.
	ErrOrderUnitsInvalid = errors.New("order item units must be greater than zero")

	// ErrOutboxMessageNotFound — сообщения с таким id нет в outbox.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
	// ErrOutboxDuplicate — сообщение с таким id уже поставлено в outbox.
	ErrOutboxDuplicate = errors.New("outbox message already enqueued")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// IsNotFound сообщает, относится ли ошибка к отсутствующим сущностям.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBasketNotFound) ||
		errors.Is(err, ErrBasketItemNotFound) ||
		errors.Is(err, ErrCatalogItemNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}

// IsValidation сообщает, что ошибка вызвана некорректными входными данными.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidUnitPrice) ||
		errors.Is(err, ErrBuyerRequired) ||
		errors.Is(err, ErrAddressInvalid)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
