package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

const basketTracerName = "eshop-basket/storage/postgres"

type basketRepository struct {
	store  *Store
	tracer trace.Tracer
}

// NewBasketRepository создаёт PostgreSQL-реализацию репозитория корзин.
func NewBasketRepository(store *Store) domain.Repository[domain.Basket] {
	return &basketRepository{
		store:  store,
		tracer: otel.Tracer(basketTracerName),
	}
}

func (r *basketRepository) GetByID(ctx context.Context, id int64) (_ *domain.Basket, err error) {
	ctx, span := r.tracer.Start(ctx, "basket.get_by_id", trace.WithAttributes(attribute.Int64("basket.id", id)))
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ex := conn(ctx, r.store.DB())
	var (
		buyerID    string
		nextItemID int64
		createdAt  time.Time
		updatedAt  time.Time
	)
	err = ex.QueryRowContext(ctx, `
		SELECT buyer_id, next_item_id, created_at, updated_at
		FROM baskets
		WHERE id = $1
	`, id).Scan(&buyerID, &nextItemID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select basket: %w", err)
	}

	items, err := r.loadItems(ctx, ex, id)
	if err != nil {
		return nil, err
	}
	return domain.RestoreBasket(id, buyerID, nextItemID, items, createdAt.UTC(), updatedAt.UTC()), nil
}

func (r *basketRepository) GetBySpec(ctx context.Context, spec domain.Specification[domain.Basket]) (*domain.Basket, error) {
	baskets, err := r.listBySpec(ctx, spec, 1)
	if err != nil {
		return nil, err
	}
	if len(baskets) == 0 {
		return nil, domain.ErrNotFound
	}
	return baskets[0], nil
}

func (r *basketRepository) ListBySpec(ctx context.Context, spec domain.Specification[domain.Basket]) ([]*domain.Basket, error) {
	return r.listBySpec(ctx, spec, 0)
}

func (r *basketRepository) listBySpec(ctx context.Context, spec domain.Specification[domain.Basket], limit int) (_ []*domain.Basket, err error) {
	byBuyer, ok := spec.(domain.BasketWithItemsSpecification)
	if !ok {
		return nil, domain.ErrUnsupportedSpecification
	}

	ctx, span := r.tracer.Start(ctx, "basket.list_by_buyer", trace.WithAttributes(
		attribute.String("buyer.id", byBuyer.BuyerID),
		attribute.Int("limit", limit),
	))
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ex := conn(ctx, r.store.DB())
	query := `
		SELECT id, buyer_id, next_item_id, created_at, updated_at
		FROM baskets
		WHERE buyer_id = $1
		ORDER BY id DESC
	`
	var rows *sql.Rows
	if limit > 0 {
		rows, err = ex.QueryContext(ctx, query+" LIMIT $2", byBuyer.BuyerID, limit)
	} else {
		rows, err = ex.QueryContext(ctx, query, byBuyer.BuyerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list baskets: %w", err)
	}

	type basketRow struct {
		id         int64
		buyerID    string
		nextItemID int64
		createdAt  time.Time
		updatedAt  time.Time
	}
	headers := make([]basketRow, 0)
	for rows.Next() {
		var row basketRow
		if err := rows.Scan(&row.id, &row.buyerID, &row.nextItemID, &row.createdAt, &row.updatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan basket row: %w", err)
		}
		headers = append(headers, row)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate basket rows: %w", err)
	}
	// Внутри транзакции нельзя открыть второй курсор, пока не закрыт первый.
	_ = rows.Close()

	result := make([]*domain.Basket, 0, len(headers))
	for _, row := range headers {
		items, err := r.loadItems(ctx, ex, row.id)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.RestoreBasket(row.id, row.buyerID, row.nextItemID, items, row.createdAt.UTC(), row.updatedAt.UTC()))
	}
	span.SetAttributes(attribute.Int("basket.count", len(result)))
	return result, nil
}

func (r *basketRepository) Add(ctx context.Context, basket *domain.Basket) (_ *domain.Basket, err error) {
	ctx, span := r.tracer.Start(ctx, "basket.add", trace.WithAttributes(
		attribute.String("buyer.id", basket.BuyerID()),
		attribute.Int("item.count", len(basket.Items())),
	))
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err = r.store.RunInTx(ctx, func(ctx context.Context) error {
		ex := conn(ctx, r.store.DB())

		var id int64
		if err := ex.QueryRowContext(ctx, `
			INSERT INTO baskets (buyer_id, next_item_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4)
			RETURNING id
		`, basket.BuyerID(), basket.NextItemID(), basket.CreatedAt(), basket.UpdatedAt()).Scan(&id); err != nil {
			return fmt.Errorf("insert basket: %w", err)
		}

		if err := r.insertItems(ctx, ex, id, basket.Items()); err != nil {
			return err
		}
		basket.AssignID(id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("basket.id", basket.ID()))
	return basket, nil
}

func (r *basketRepository) Update(ctx context.Context, basket *domain.Basket) (err error) {
	ctx, span := r.tracer.Start(ctx, "basket.update", trace.WithAttributes(
		attribute.Int64("basket.id", basket.ID()),
		attribute.Int("item.count", len(basket.Items())),
	))
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.RunInTx(ctx, func(ctx context.Context) error {
		ex := conn(ctx, r.store.DB())

		res, err := ex.ExecContext(ctx, `
			UPDATE baskets
			SET buyer_id = $1,
			    next_item_id = GREATEST(next_item_id, $2),
			    updated_at = $3
			WHERE id = $4
		`, basket.BuyerID(), basket.NextItemID(), basket.UpdatedAt(), basket.ID())
		if err != nil {
			return fmt.Errorf("update basket: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}

		// Строки корзины перезаписываются целиком.
		if _, err := ex.ExecContext(ctx, `DELETE FROM basket_items WHERE basket_id = $1`, basket.ID()); err != nil {
			return fmt.Errorf("delete basket items: %w", err)
		}
		return r.insertItems(ctx, ex, basket.ID(), basket.Items())
	})
}

func (r *basketRepository) Delete(ctx context.Context, basket *domain.Basket) (err error) {
	ctx, span := r.tracer.Start(ctx, "basket.delete", trace.WithAttributes(attribute.Int64("basket.id", basket.ID())))
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := conn(ctx, r.store.DB()).ExecContext(ctx, `DELETE FROM baskets WHERE id = $1`, basket.ID())
	if err != nil {
		return fmt.Errorf("delete basket: %w", err)
	}
	return requireAffected(res)
}

func (r *basketRepository) insertItems(ctx context.Context, ex executor, basketID int64, items []domain.BasketItem) error {
	for _, item := range items {
		if _, err := ex.ExecContext(ctx, `
			INSERT INTO basket_items (
				basket_id, id, catalog_item_id, unit_price_minor, quantity
			) VALUES ($1,$2,$3,$4,$5)
		`, basketID, item.ID(), item.CatalogItemID(), item.UnitPriceMinor(), item.Quantity()); err != nil {
			return fmt.Errorf("insert basket item: %w", err)
		}
	}
	return nil
}

func (r *basketRepository) loadItems(ctx context.Context, ex executor, basketID int64) ([]domain.BasketItem, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT id, catalog_item_id, unit_price_minor, quantity
		FROM basket_items
		WHERE basket_id = $1
		ORDER BY id ASC
	`, basketID)
	if err != nil {
		return nil, fmt.Errorf("load basket items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.BasketItem, 0)
	for rows.Next() {
		var (
			id, catalogItemID, unitPriceMinor int64
			quantity                          int
		)
		if err := rows.Scan(&id, &catalogItemID, &unitPriceMinor, &quantity); err != nil {
			return nil, fmt.Errorf("scan basket item: %w", err)
		}
		items = append(items, domain.RestoreBasketItem(id, catalogItemID, unitPriceMinor, quantity))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate basket items: %w", err)
	}
	return items, nil
}

// endSpan фиксирует ошибку в span. ErrNotFound ошибкой хранилища не считается.
func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

var _ domain.Repository[domain.Basket] = (*basketRepository)(nil)
