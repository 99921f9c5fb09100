package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

// Repository — generic in-memory реализация domain.Repository для локальной разработки и тестов.
// Снаружи хранилище отдаёт и принимает только копии агрегатов.
type Repository[T any, PT domain.Entity[T]] struct {
	mu     sync.RWMutex
	items  map[int64]*T
	nextID int64
}

// NewRepository создаёт пустое хранилище агрегатов T.
func NewRepository[T any, PT domain.Entity[T]]() *Repository[T, PT] {
	return &Repository[T, PT]{
		items: make(map[int64]*T),
	}
}

// NewBasketRepository возвращает in-memory хранилище корзин.
func NewBasketRepository() *Repository[domain.Basket, *domain.Basket] {
	return NewRepository[domain.Basket, *domain.Basket]()
}

// NewCatalogRepository возвращает in-memory хранилище каталога.
func NewCatalogRepository() *Repository[domain.CatalogItem, *domain.CatalogItem] {
	return NewRepository[domain.CatalogItem, *domain.CatalogItem]()
}

// NewOrderRepository возвращает in-memory хранилище заказов.
func NewOrderRepository() *Repository[domain.Order, *domain.Order] {
	return NewRepository[domain.Order, *domain.Order]()
}

// GetByID возвращает копию агрегата или ErrNotFound.
func (r *Repository[T, PT]) GetByID(ctx context.Context, id int64) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return PT(item).Clone(), nil
}

// GetBySpec возвращает самый свежий (с наибольшим ID) подходящий агрегат.
func (r *Repository[T, PT]) GetBySpec(ctx context.Context, spec domain.Specification[T]) (*T, error) {
	matched, err := r.ListBySpec(ctx, spec)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, domain.ErrNotFound
	}
	return matched[0], nil
}

// ListBySpec возвращает копии подходящих агрегатов, новые первыми.
func (r *Repository[T, PT]) ListBySpec(ctx context.Context, spec domain.Specification[T]) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec == nil {
		return nil, domain.ErrUnsupportedSpecification
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.items))
	for id, item := range r.items {
		if spec.IsSatisfiedBy(item) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	result := make([]*T, 0, len(ids))
	for _, id := range ids {
		result = append(result, PT(r.items[id]).Clone())
	}
	return result, nil
}

// Add назначает агрегату ID и сохраняет его копию.
func (r *Repository[T, PT]) Add(ctx context.Context, entity *T) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	PT(entity).AssignID(r.nextID)
	r.items[r.nextID] = PT(entity).Clone()
	return entity, nil
}

// Update перезаписывает существующий агрегат.
func (r *Repository[T, PT]) Update(ctx context.Context, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := PT(entity).EntityID()
	if _, ok := r.items[id]; !ok {
		return domain.ErrNotFound
	}
	r.items[id] = PT(entity).Clone()
	return nil
}

// Delete удаляет агрегат; для отсутствующего агрегата возвращает ErrNotFound.
func (r *Repository[T, PT]) Delete(ctx context.Context, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := PT(entity).EntityID()
	if _, ok := r.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// Len возвращает количество сохранённых агрегатов (используется в тестах).
func (r *Repository[T, PT]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Transactor выполняет fn как есть: in-memory хранилище не поддерживает откат.
type Transactor struct{}

// RunInTx реализует domain.Transactor.
func (Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var (
	_ domain.Repository[domain.Basket]      = (*Repository[domain.Basket, *domain.Basket])(nil)
	_ domain.Repository[domain.CatalogItem] = (*Repository[domain.CatalogItem, *domain.CatalogItem])(nil)
	_ domain.Repository[domain.Order]       = (*Repository[domain.Order, *domain.Order])(nil)
	_ domain.Transactor                     = Transactor{}
)
