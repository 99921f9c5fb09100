// Package httpapi публикует операции корзины и заказов по HTTP/JSON.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	"github.com/vladislavdragonenkov/eshop-basket/internal/metrics"
)

const maxBodyBytes = 1 << 20

// unmatchedRoute — метка route для запросов, не попавших ни в один маршрут.
// Сырой путь запроса в метки не попадает.
const unmatchedRoute = "unmatched"

// BasketService — операции корзины, которые использует API.
type BasketService interface {
	GetBasket(ctx context.Context, basketID int64) (*domain.Basket, error)
	GetOrCreateBasketForBuyer(ctx context.Context, buyerID string) (*domain.Basket, error)
	CountItems(ctx context.Context, buyerID string) (int, error)
	AddItemToBasket(ctx context.Context, basketID, catalogItemID, unitPriceMinor int64, quantity int) (*domain.Basket, error)
	SetQuantities(ctx context.Context, basketID int64, quantities map[string]int) (*domain.Basket, error)
	DeleteBasket(ctx context.Context, basketID int64) error
	TransferBasket(ctx context.Context, anonymousID, userID string) error
}

// OrderService — операции заказов, которые использует API.
type OrderService interface {
	CreateOrder(ctx context.Context, basketID int64, shipTo domain.Address) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID string) ([]*domain.Order, error)
}

// Option настраивает API.
type Option func(*API)

// WithLogger задаёт logger для обработчиков и access-лога.
func WithLogger(logger *log.Entry) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithIdempotency включает обработку заголовка Idempotency-Key на checkout.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(a *API) {
		a.idempotency = repo
		if ttl > 0 {
			a.idempotencyTTL = ttl
		}
	}
}

// WithURIComposer задаёт подстановку базового URL в картинки каталога.
func WithURIComposer(uris domain.URIComposer) Option {
	return func(a *API) {
		a.uris = uris
	}
}

// WithMetrics включает HTTP-метрики.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(a *API) {
		a.metrics = m
	}
}

// API связывает HTTP-маршруты с сервисами корзины и заказов.
type API struct {
	baskets        BasketService
	orders         OrderService
	catalog        domain.Repository[domain.CatalogItem]
	uris           domain.URIComposer
	idempotency    domain.IdempotencyRepository
	idempotencyTTL time.Duration
	metrics        *metrics.HTTPMetrics
	logger         *log.Entry
	now            func() time.Time
}

// NewAPI создаёт HTTP API.
func NewAPI(baskets BasketService, orders OrderService, catalog domain.Repository[domain.CatalogItem], options ...Option) *API {
	a := &API{
		baskets:        baskets,
		orders:         orders,
		catalog:        catalog,
		idempotencyTTL: domain.DefaultIdempotencyTTL,
		logger:         log.WithField("component", "http-api"),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Routes возвращает chi-роутер со всеми маршрутами /api/v1.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/baskets", func(r chi.Router) {
			r.Post("/", a.getOrCreateBasket)
			r.Get("/count", a.countItems)
			r.Post("/transfer", a.transferBasket)

			r.Route("/{basketID}", func(r chi.Router) {
				r.Get("/", a.getBasket)
				r.Delete("/", a.deleteBasket)
				r.Post("/items", a.addItem)
				r.Put("/quantities", a.setQuantities)
				r.Post("/checkout", a.checkout)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", a.listOrders)
			r.Get("/{orderID}", a.getOrder)
		})

		r.Get("/catalog/items/{itemID}", a.getCatalogItem)
	})

	return r
}

// accessLog пишет строку лога и HTTP-метрики на каждый запрос.
func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.metrics.ObserveRequest(r.Method, route, status, started)

		entry := a.logger.WithFields(log.Fields{
			"method":      r.Method,
			"route":       route,
			"status":      status,
			"duration_ms": time.Since(started).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("http request failed")
			return
		}
		entry.Debug("http request served")
	})
}
