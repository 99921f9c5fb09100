package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	"github.com/vladislavdragonenkov/eshop-basket/internal/metrics"
)

const opCreateOrder = "create_order"

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOutbox включает публикацию события order.created через transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithTransactor сохраняет заказ и outbox-сообщение в одной транзакции.
func WithTransactor(tx domain.Transactor) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithMetrics задаёт метрики сервиса.
func WithMetrics(m *metrics.BasketMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service оформляет заказы из корзин. Корзину сервис не изменяет и не удаляет.
type Service struct {
	baskets domain.Repository[domain.Basket]
	catalog domain.Repository[domain.CatalogItem]
	orders  domain.Repository[domain.Order]
	uris    domain.URIComposer
	outbox  domain.OutboxRepository
	tx      domain.Transactor
	logger  *log.Entry
	metrics *metrics.BasketMetrics
	now     func() time.Time
}

// NewService создаёт сервис заказов.
func NewService(
	baskets domain.Repository[domain.Basket],
	catalog domain.Repository[domain.CatalogItem],
	orders domain.Repository[domain.Order],
	uris domain.URIComposer,
	options ...Option,
) *Service {
	s := &Service{
		baskets: baskets,
		catalog: catalog,
		orders:  orders,
		uris:    uris,
		logger:  log.WithField("component", "order-service"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateOrder оформляет заказ из корзины basketID с доставкой по shipTo.
// Позиции заказа фиксируют название и картинку товара из каталога и цену строки корзины.
// Строки с нулевым количеством в заказ не попадают.
func (s *Service) CreateOrder(ctx context.Context, basketID int64, shipTo domain.Address) (_ *domain.Order, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveOperation(opCreateOrder, started, err)
		if err != nil && !domain.IsValidation(err) && !domain.IsNotFound(err) && !errors.Is(err, domain.ErrBasketEmpty) {
			s.logger.WithError(err).WithField("basket_id", basketID).Error("create order failed")
		}
	}()

	if err := shipTo.Validate(); err != nil {
		return nil, err
	}

	basket, err := s.baskets.GetByID(ctx, basketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBasketNotFound
		}
		return nil, fmt.Errorf("load basket: %w", err)
	}

	items, err := s.snapshotItems(ctx, basket.Items())
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrBasketEmpty
	}

	order := &domain.Order{
		BuyerID:   basket.BuyerID(),
		OrderDate: s.now(),
		ShipTo:    shipTo,
		Items:     items,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	persist := func(ctx context.Context) error {
		if _, err := s.orders.Add(ctx, order); err != nil {
			return fmt.Errorf("add order: %w", err)
		}
		return s.enqueueOrderCreated(ctx, order)
	}
	if s.tx != nil {
		err = s.tx.RunInTx(ctx, persist)
	} else {
		err = persist(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordOrderCreated(order.TotalMinor())
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"basket_id":   basketID,
		"buyer_id":    order.BuyerID,
		"items":       len(order.Items),
		"total_minor": order.TotalMinor(),
	}).Info("order created")
	return order, nil
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// ListBuyerOrders возвращает заказы покупателя, новые первыми.
func (s *Service) ListBuyerOrders(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return nil, domain.ErrBuyerRequired
	}
	orders, err := s.orders.ListBySpec(ctx, domain.OrdersByBuyerSpecification{BuyerID: buyerID})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *Service) snapshotItems(ctx context.Context, lines []domain.BasketItem) ([]domain.OrderItem, error) {
	catalogCache := make(map[int64]*domain.CatalogItem, len(lines))
	items := make([]domain.OrderItem, 0, len(lines))

	for _, line := range lines {
		if line.Quantity() == 0 {
			continue
		}

		product, ok := catalogCache[line.CatalogItemID()]
		if !ok {
			var err error
			product, err = s.catalog.GetByID(ctx, line.CatalogItemID())
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return nil, fmt.Errorf("catalog item %d: %w", line.CatalogItemID(), domain.ErrCatalogItemNotFound)
				}
				return nil, fmt.Errorf("load catalog item %d: %w", line.CatalogItemID(), err)
			}
			catalogCache[line.CatalogItemID()] = product
		}

		pictureURI := product.PictureURI
		if s.uris != nil {
			pictureURI = s.uris.ComposePictureURI(product.PictureURI)
		}

		items = append(items, domain.OrderItem{
			ID: int64(len(items) + 1),
			ItemOrdered: domain.CatalogItemOrdered{
				CatalogItemID: product.ID,
				ProductName:   product.Name,
				PictureURI:    pictureURI,
			},
			UnitPriceMinor: line.UnitPriceMinor(),
			Units:          line.Quantity(),
		})
	}
	return items, nil
}

type orderCreatedItem struct {
	CatalogItemID  int64  `json:"catalog_item_id"`
	ProductName    string `json:"product_name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Units          int    `json:"units"`
}

type orderCreatedPayload struct {
	OrderID    int64              `json:"order_id"`
	BuyerID    string             `json:"buyer_id"`
	OrderDate  time.Time          `json:"order_date"`
	TotalMinor int64              `json:"total_minor"`
	Items      []orderCreatedItem `json:"items"`
}

func (s *Service) enqueueOrderCreated(ctx context.Context, order *domain.Order) error {
	if s.outbox == nil {
		return nil
	}

	payload := orderCreatedPayload{
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		OrderDate:  order.OrderDate,
		TotalMinor: order.TotalMinor(),
		Items:      make([]orderCreatedItem, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderCreatedItem{
			CatalogItemID:  item.ItemOrdered.CatalogItemID,
			ProductName:    item.ItemOrdered.ProductName,
			UnitPriceMinor: item.UnitPriceMinor,
			Units:          item.Units,
		})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order.created payload: %w", err)
	}

	if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     domain.EventTypeOrderCreated,
		Payload:       raw,
	}); err != nil {
		return fmt.Errorf("enqueue order.created: %w", err)
	}
	return nil
}
