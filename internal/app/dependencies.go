package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/metrics"
	"github.com/vladislavdragonenkov/eshop-basket/internal/service/basket"
	"github.com/vladislavdragonenkov/eshop-basket/internal/service/catalog"
	"github.com/vladislavdragonenkov/eshop-basket/internal/service/order"
	"github.com/vladislavdragonenkov/eshop-basket/internal/transport/httpapi"
)

// Services содержит сервисы приложения поверх выбранного хранилища.
type Services struct {
	Baskets *basket.Service
	Orders  *order.Service
	API     *httpapi.API
}

// newServices связывает сервисы корзины, заказов и HTTP API.
// Заказ и outbox-сообщение пишутся через transactor хранилища.
func newServices(deps *runtimeDependencies, cfg Config, basketMetrics *metrics.BasketMetrics, httpMetrics *metrics.HTTPMetrics, logger *log.Entry) *Services {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	uris := catalog.NewURIComposer(cfg.CatalogBaseURL)

	baskets := basket.NewService(deps.baskets,
		basket.WithLogger(logger.WithField("component", "basket-service")),
		basket.WithTransactor(deps.transactor),
		basket.WithMetrics(basketMetrics),
	)
	orders := order.NewService(deps.baskets, deps.catalog, deps.orders, uris,
		order.WithLogger(logger.WithField("component", "order-service")),
		order.WithOutbox(deps.outboxRepo),
		order.WithTransactor(deps.transactor),
		order.WithMetrics(basketMetrics),
	)
	api := httpapi.NewAPI(baskets, orders, deps.catalog,
		httpapi.WithLogger(logger.WithField("component", "http-api")),
		httpapi.WithURIComposer(uris),
		httpapi.WithIdempotency(deps.idempotencyRepo, cfg.IdempotencyTTL),
		httpapi.WithMetrics(httpMetrics),
	)

	return &Services{Baskets: baskets, Orders: orders, API: api}
}
