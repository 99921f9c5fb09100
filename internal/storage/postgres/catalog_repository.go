package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

type catalogRepository struct {
	store *Store
}

// NewCatalogRepository создаёт PostgreSQL-реализацию репозитория каталога.
// Выборки по спецификациям каталог не поддерживает.
func NewCatalogRepository(store *Store) domain.Repository[domain.CatalogItem] {
	return &catalogRepository{store: store}
}

func (r *catalogRepository) GetByID(ctx context.Context, id int64) (*domain.CatalogItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	item := domain.CatalogItem{ID: id}
	err := conn(ctx, r.store.DB()).QueryRowContext(ctx, `
		SELECT name, description, price_minor, picture_uri
		FROM catalog_items
		WHERE id = $1
	`, id).Scan(&item.Name, &item.Description, &item.PriceMinor, &item.PictureURI)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select catalog item: %w", err)
	}
	return &item, nil
}

func (r *catalogRepository) GetBySpec(context.Context, domain.Specification[domain.CatalogItem]) (*domain.CatalogItem, error) {
	return nil, domain.ErrUnsupportedSpecification
}

func (r *catalogRepository) ListBySpec(context.Context, domain.Specification[domain.CatalogItem]) ([]*domain.CatalogItem, error) {
	return nil, domain.ErrUnsupportedSpecification
}

func (r *catalogRepository) Add(ctx context.Context, item *domain.CatalogItem) (*domain.CatalogItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var id int64
	if err := conn(ctx, r.store.DB()).QueryRowContext(ctx, `
		INSERT INTO catalog_items (name, description, price_minor, picture_uri)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, item.Name, item.Description, item.PriceMinor, item.PictureURI).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert catalog item: %w", err)
	}
	item.AssignID(id)
	return item, nil
}

func (r *catalogRepository) Update(ctx context.Context, item *domain.CatalogItem) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := conn(ctx, r.store.DB()).ExecContext(ctx, `
		UPDATE catalog_items
		SET name = $1,
		    description = $2,
		    price_minor = $3,
		    picture_uri = $4
		WHERE id = $5
	`, item.Name, item.Description, item.PriceMinor, item.PictureURI, item.ID)
	if err != nil {
		return fmt.Errorf("update catalog item: %w", err)
	}
	return requireAffected(res)
}

func (r *catalogRepository) Delete(ctx context.Context, item *domain.CatalogItem) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := conn(ctx, r.store.DB()).ExecContext(ctx, `DELETE FROM catalog_items WHERE id = $1`, item.ID)
	if err != nil {
		return fmt.Errorf("delete catalog item: %w", err)
	}
	return requireAffected(res)
}

// requireAffected превращает пустой UPDATE/DELETE в ErrNotFound.
func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.Repository[domain.CatalogItem] = (*catalogRepository)(nil)
