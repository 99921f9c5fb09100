package basket_test

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	"github.com/vladislavdragonenkov/eshop-basket/internal/storage/memory"
)

// recordingRepository записывает вызовы поверх in-memory хранилища
// и позволяет подставить ошибку для конкретного метода.
type recordingRepository struct {
	*memory.Repository[domain.Basket, *domain.Basket]

	mu      sync.Mutex
	calls   map[string]int
	added   []*domain.Basket
	deleted []int64
	updated []*domain.Basket
	errs    map[string]error
}

func newRecordingRepository() *recordingRepository {
	return &recordingRepository{
		Repository: memory.NewBasketRepository(),
		calls:      make(map[string]int),
		errs:       make(map[string]error),
	}
}

func (r *recordingRepository) record(method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[method]++
	return r.errs[method]
}

func (r *recordingRepository) failOn(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[method] = err
}

func (r *recordingRepository) count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *recordingRepository) ioCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}

func (r *recordingRepository) GetByID(ctx context.Context, id int64) (*domain.Basket, error) {
	if err := r.record("GetByID"); err != nil {
		return nil, err
	}
	return r.Repository.GetByID(ctx, id)
}

func (r *recordingRepository) GetBySpec(ctx context.Context, spec domain.Specification[domain.Basket]) (*domain.Basket, error) {
	if err := r.record("GetBySpec"); err != nil {
		return nil, err
	}
	return r.Repository.GetBySpec(ctx, spec)
}

func (r *recordingRepository) Add(ctx context.Context, basket *domain.Basket) (*domain.Basket, error) {
	if err := r.record("Add"); err != nil {
		return nil, err
	}
	saved, err := r.Repository.Add(ctx, basket)
	if err == nil {
		r.mu.Lock()
		r.added = append(r.added, saved.Clone())
		r.mu.Unlock()
	}
	return saved, err
}

func (r *recordingRepository) Update(ctx context.Context, basket *domain.Basket) error {
	if err := r.record("Update"); err != nil {
		return err
	}
	r.mu.Lock()
	r.updated = append(r.updated, basket.Clone())
	r.mu.Unlock()
	return r.Repository.Update(ctx, basket)
}

func (r *recordingRepository) Delete(ctx context.Context, basket *domain.Basket) error {
	if err := r.record("Delete"); err != nil {
		return err
	}
	r.mu.Lock()
	r.deleted = append(r.deleted, basket.ID())
	r.mu.Unlock()
	return r.Repository.Delete(ctx, basket)
}

// seed сохраняет корзину в обход счётчиков вызовов.
func (r *recordingRepository) seed(ctx context.Context, basket *domain.Basket) *domain.Basket {
	saved, err := r.Repository.Add(ctx, basket)
	if err != nil {
		panic(err)
	}
	return saved
}

type recordingTransactor struct {
	runs int
}

func (t *recordingTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.runs++
	return fn(ctx)
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	return logger.WithField("component", "test")
}

var _ domain.Repository[domain.Basket] = (*recordingRepository)(nil)
