package basket

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	"github.com/vladislavdragonenkov/eshop-basket/internal/metrics"
)

const (
	opAddItem        = "add_item"
	opSetQuantities  = "set_quantities"
	opDeleteBasket   = "delete_basket"
	opTransferBasket = "transfer_basket"
	opGetOrCreate    = "get_or_create_basket"
)

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

// WithTransactor включает атомарный перенос корзины.
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

// Service управляет жизненным циклом корзины: загрузка → изменение в памяти → сохранение.
// Сервис не держит блокировок; конкурентные изменения одной корзины разрешает хранилище.
type Service struct {
	baskets domain.Repository[domain.Basket]
	tx      domain.Transactor
	logger  *log.Entry
	metrics *metrics.BasketMetrics
}

// NewService создаёт сервис корзины.
func NewService(baskets domain.Repository[domain.Basket], options ...Option) *Service {
	s := &Service{
		baskets: baskets,
		logger:  log.WithField("component", "basket-service"),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// GetBasket возвращает корзину по идентификатору.
func (s *Service) GetBasket(ctx context.Context, basketID int64) (*domain.Basket, error) {
	basket, err := s.baskets.GetByID(ctx, basketID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrBasketNotFound)
	}
	return basket, nil
}

// GetOrCreateBasketForBuyer возвращает самую свежую корзину покупателя или создаёт пустую.
func (s *Service) GetOrCreateBasketForBuyer(ctx context.Context, buyerID string) (_ *domain.Basket, err error) {
	defer s.observe(opGetOrCreate, time.Now(), &err)

	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return nil, domain.ErrBuyerRequired
	}

	basket, err := s.baskets.GetBySpec(ctx, domain.BasketWithItemsSpecification{BuyerID: buyerID})
	if err == nil {
		return basket, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find basket for buyer: %w", err)
	}

	basket, err = domain.NewBasket(buyerID)
	if err != nil {
		return nil, err
	}
	created, err := s.baskets.Add(ctx, basket)
	if err != nil {
		return nil, fmt.Errorf("add basket: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"basket_id": created.ID(),
		"buyer_id":  buyerID,
	}).Info("basket created")
	return created, nil
}

// CountItems возвращает суммарное количество единиц в корзине покупателя.
// Отсутствие корзины означает ноль.
func (s *Service) CountItems(ctx context.Context, buyerID string) (int, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return 0, domain.ErrBuyerRequired
	}

	basket, err := s.baskets.GetBySpec(ctx, domain.BasketWithItemsSpecification{BuyerID: buyerID})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("find basket for buyer: %w", err)
	}
	return basket.TotalItems(), nil
}

// AddItemToBasket добавляет новую строку в существующую корзину с количеством quantity.
// Значение по умолчанию (DefaultItemQuantity) подставляет вызывающий код.
func (s *Service) AddItemToBasket(ctx context.Context, basketID, catalogItemID, unitPriceMinor int64, quantity int) (_ *domain.Basket, err error) {
	defer s.observe(opAddItem, time.Now(), &err)

	if quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if unitPriceMinor < 0 {
		return nil, domain.ErrInvalidUnitPrice
	}

	basket, err := s.baskets.GetByID(ctx, basketID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrBasketNotFound)
	}

	if err := basket.AddItem(catalogItemID, unitPriceMinor, quantity); err != nil {
		return nil, err
	}
	if err := s.baskets.Update(ctx, basket); err != nil {
		return nil, fmt.Errorf("update basket: %w", err)
	}

	s.metrics.RecordItemAdded()
	s.logger.WithFields(log.Fields{
		"basket_id":       basketID,
		"buyer_id":        basket.BuyerID(),
		"catalog_item_id": catalogItemID,
		"quantity":        quantity,
	}).Debug("item added to basket")
	return basket, nil
}

// SetQuantities выставляет количества строкам корзины по строковому ID строки.
// Ключи без совпадающей строки игнорируются. Строки с нулевым количеством удаляются.
// Корзина сохраняется ровно одним Update.
func (s *Service) SetQuantities(ctx context.Context, basketID int64, quantities map[string]int) (_ *domain.Basket, err error) {
	defer s.observe(opSetQuantities, time.Now(), &err)

	for key, quantity := range quantities {
		if quantity < 0 {
			return nil, fmt.Errorf("item %s: %w", key, domain.ErrInvalidQuantity)
		}
	}

	basket, err := s.baskets.GetByID(ctx, basketID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrBasketNotFound)
	}

	for _, item := range basket.Items() {
		quantity, ok := quantities[strconv.FormatInt(item.ID(), 10)]
		if !ok {
			continue
		}
		if err := basket.SetItemQuantity(item.ID(), quantity); err != nil {
			return nil, err
		}
	}
	basket.RemoveEmptyItems()

	if err := s.baskets.Update(ctx, basket); err != nil {
		return nil, fmt.Errorf("update basket: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"basket_id": basketID,
		"buyer_id":  basket.BuyerID(),
		"items":     len(basket.Items()),
	}).Debug("basket quantities updated")
	return basket, nil
}

// DeleteBasket удаляет корзину. Для отсутствующей корзины возвращает ErrBasketNotFound.
func (s *Service) DeleteBasket(ctx context.Context, basketID int64) (err error) {
	defer s.observe(opDeleteBasket, time.Now(), &err)

	basket, err := s.baskets.GetByID(ctx, basketID)
	if err != nil {
		return notFoundAs(err, domain.ErrBasketNotFound)
	}
	if err := s.baskets.Delete(ctx, basket); err != nil {
		return notFoundAs(err, domain.ErrBasketNotFound)
	}

	s.logger.WithFields(log.Fields{
		"basket_id": basketID,
		"buyer_id":  basket.BuyerID(),
	}).Info("basket deleted")
	return nil
}

// TransferBasket переносит корзину анонимного покупателя на пользователя:
// создаёт новую корзину userID с копиями строк и удаляет исходную.
// Отсутствие исходной корзины не считается ошибкой. Без Transactor перенос не атомарен:
// сбой между Add и Delete оставляет обе корзины.
func (s *Service) TransferBasket(ctx context.Context, anonymousID, userID string) (err error) {
	defer s.observe(opTransferBasket, time.Now(), &err)

	anonymousID = strings.TrimSpace(anonymousID)
	userID = strings.TrimSpace(userID)
	if anonymousID == "" || userID == "" {
		return domain.ErrBuyerRequired
	}
	if anonymousID == userID {
		return nil
	}

	transfer := func(ctx context.Context) error {
		source, err := s.baskets.GetBySpec(ctx, domain.BasketWithItemsSpecification{BuyerID: anonymousID})
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.logger.WithField("buyer_id", anonymousID).Debug("no anonymous basket to transfer")
				return nil
			}
			return fmt.Errorf("find anonymous basket: %w", err)
		}

		target, err := domain.NewBasket(userID)
		if err != nil {
			return err
		}
		for _, item := range source.Items() {
			if err := target.AddItem(item.CatalogItemID(), item.UnitPriceMinor(), item.Quantity()); err != nil {
				return err
			}
		}

		if _, err := s.baskets.Add(ctx, target); err != nil {
			return fmt.Errorf("add user basket: %w", err)
		}
		if err := s.baskets.Delete(ctx, source); err != nil {
			return fmt.Errorf("delete anonymous basket: %w", err)
		}

		s.metrics.RecordBasketTransferred()
		s.logger.WithFields(log.Fields{
			"source_basket_id": source.ID(),
			"target_basket_id": target.ID(),
			"buyer_id":         userID,
			"items":            len(source.Items()),
		}).Info("basket transferred")
		return nil
	}

	if s.tx == nil {
		return transfer(ctx)
	}
	return s.tx.RunInTx(ctx, transfer)
}

func (s *Service) observe(operation string, started time.Time, errp *error) {
	s.metrics.ObserveOperation(operation, started, *errp)
	if *errp != nil && !domain.IsValidation(*errp) && !domain.IsNotFound(*errp) {
		s.logger.WithError(*errp).WithField("operation", operation).Error("basket operation failed")
	}
}

// notFoundAs заменяет ErrNotFound хранилища на доменную ошибку, остальное пробрасывает.
func notFoundAs(err, target error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return target
	}
	return err
}
