package domain

import "context"

// Entity — ограничение для агрегатов, которые умеют хранить generic-репозитории.
// Идентификатор назначается хранилищем при Add.
type Entity[T any] interface {
	*T
	EntityID() int64
	AssignID(id int64)
	// Clone возвращает глубокую копию, чтобы хранилище не делило состояние с вызывающим.
	Clone() *T
}

// Specification — именованный предикат выборки агрегатов.
type Specification[T any] interface {
	IsSatisfiedBy(entity *T) bool
}

// Repository описывает требования к хранилищу агрегата T.
// Отсутствующий агрегат возвращается как ErrNotFound, остальные ошибки хранилища
// пробрасываются без изменений.
type Repository[T any] interface {
	// GetByID возвращает агрегат по идентификатору.
	GetByID(ctx context.Context, id int64) (*T, error)
	// GetBySpec возвращает самый свежий агрегат, удовлетворяющий спецификации.
	GetBySpec(ctx context.Context, spec Specification[T]) (*T, error)
	// ListBySpec возвращает все подходящие агрегаты, новые первыми.
	ListBySpec(ctx context.Context, spec Specification[T]) ([]*T, error)
	// Add сохраняет новый агрегат и возвращает его с назначенным идентификатором.
	Add(ctx context.Context, entity *T) (*T, error)
	// Update перезаписывает существующий агрегат (last writer wins).
	Update(ctx context.Context, entity *T) error
	// Delete удаляет агрегат.
	Delete(ctx context.Context, entity *T) error
}

// Transactor выполняет fn в одной транзакции хранилища.
// Репозитории того же хранилища, вызванные с переданным ctx, участвуют в транзакции.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// URIComposer строит абсолютный URI картинки товара по сохранённой ссылке.
type URIComposer interface {
	ComposePictureURI(reference string) string
}
