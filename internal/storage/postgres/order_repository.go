package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

const orderColumns = `id, buyer_id, order_date, ship_street, ship_city, ship_state, ship_country, ship_zip_code`

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию репозитория заказов.
func NewOrderRepository(store *Store) domain.Repository[domain.Order] {
	return &orderRepository{store: store}
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ex := conn(ctx, r.store.DB())
	order, err := scanOrder(ex.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, ex, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) GetBySpec(ctx context.Context, spec domain.Specification[domain.Order]) (*domain.Order, error) {
	orders, err := r.listBySpec(ctx, spec, 1)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.ErrNotFound
	}
	return orders[0], nil
}

func (r *orderRepository) ListBySpec(ctx context.Context, spec domain.Specification[domain.Order]) ([]*domain.Order, error) {
	return r.listBySpec(ctx, spec, 0)
}

func (r *orderRepository) listBySpec(ctx context.Context, spec domain.Specification[domain.Order], limit int) ([]*domain.Order, error) {
	byBuyer, ok := spec.(domain.OrdersByBuyerSpecification)
	if !ok {
		return nil, domain.ErrUnsupportedSpecification
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ex := conn(ctx, r.store.DB())
	query := `SELECT ` + orderColumns + ` FROM orders WHERE buyer_id = $1 ORDER BY id DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = ex.QueryContext(ctx, query+" LIMIT $2", byBuyer.BuyerID, limit)
	} else {
		rows, err = ex.QueryContext(ctx, query, byBuyer.BuyerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	_ = rows.Close()

	for _, order := range orders {
		if order.Items, err = r.loadItems(ctx, ex, order.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) Add(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		ex := conn(ctx, r.store.DB())

		var id int64
		if err := ex.QueryRowContext(ctx, `
			INSERT INTO orders (
				buyer_id, order_date, ship_street, ship_city, ship_state, ship_country, ship_zip_code
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`,
			order.BuyerID, order.OrderDate,
			order.ShipTo.Street, order.ShipTo.City, order.ShipTo.State, order.ShipTo.Country, order.ShipTo.ZipCode,
		).Scan(&id); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if err := r.insertItems(ctx, ex, id, order.Items); err != nil {
			return err
		}
		order.AssignID(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.RunInTx(ctx, func(ctx context.Context) error {
		ex := conn(ctx, r.store.DB())

		res, err := ex.ExecContext(ctx, `
			UPDATE orders
			SET buyer_id = $1,
			    order_date = $2,
			    ship_street = $3,
			    ship_city = $4,
			    ship_state = $5,
			    ship_country = $6,
			    ship_zip_code = $7
			WHERE id = $8
		`,
			order.BuyerID, order.OrderDate,
			order.ShipTo.Street, order.ShipTo.City, order.ShipTo.State, order.ShipTo.Country, order.ShipTo.ZipCode,
			order.ID,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}

		if _, err := ex.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		return r.insertItems(ctx, ex, order.ID, order.Items)
	})
}

func (r *orderRepository) Delete(ctx context.Context, order *domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := conn(ctx, r.store.DB()).ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, order.ID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return requireAffected(res)
}

func (r *orderRepository) insertItems(ctx context.Context, ex executor, orderID int64, items []domain.OrderItem) error {
	for idx, item := range items {
		// Позиции заказа нумеруются внутри заказа, если ID не задан.
		itemID := item.ID
		if itemID == 0 {
			itemID = int64(idx + 1)
		}
		if _, err := ex.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, id, catalog_item_id, product_name, picture_uri, unit_price_minor, units
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			orderID, itemID,
			item.ItemOrdered.CatalogItemID, item.ItemOrdered.ProductName, item.ItemOrdered.PictureURI,
			item.UnitPriceMinor, item.Units,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
		items[idx].ID = itemID
	}
	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, ex executor, orderID int64) ([]domain.OrderItem, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT id, catalog_item_id, product_name, picture_uri, unit_price_minor, units
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.ItemOrdered.CatalogItemID,
			&item.ItemOrdered.ProductName,
			&item.ItemOrdered.PictureURI,
			&item.UnitPriceMinor,
			&item.Units,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	if err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.OrderDate,
		&order.ShipTo.Street,
		&order.ShipTo.City,
		&order.ShipTo.State,
		&order.ShipTo.Country,
		&order.ShipTo.ZipCode,
	); err != nil {
		return nil, err
	}
	order.OrderDate = order.OrderDate.UTC()
	return &order, nil
}

var _ domain.Repository[domain.Order] = (*orderRepository)(nil)
