package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/cache"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/httpapi"
	"github.com/vladislavdragonenkov/marketplace/internal/service/quote"
	"github.com/vladislavdragonenkov/marketplace/internal/service/validation"
)

// services собирает доменные сервисы поверх общего хранилища.
type services struct {
	carts  *cart.Service
	engine *checkout.Engine
	quotes *quote.Service
}

// buildServices связывает корзину, движок оформления и котировки.
// Все сервисы используют один ValidationEngine и одни метрики.
func buildServices(cfg Config, deps *runtimeDependencies, summaryCache cache.SummaryCache, m *metrics.CheckoutMetrics, logger *log.Entry) *services {
	validator := validation.NewEngine(logger.WithField("component", "validation-engine"))

	carts := cart.NewService(deps.uow, validator,
		cart.WithLogger(logger.WithField("component", "cart-service")),
		cart.WithCache(summaryCache),
		cart.WithMetrics(m),
	)
	engine := checkout.NewEngine(deps.uow, validator,
		checkout.WithLogger(logger.WithField("component", "checkout-engine")),
		checkout.WithMetrics(m),
		checkout.WithCurrency(cfg.Currency),
		checkout.WithCartInvalidator(carts),
	)
	quotes := quote.NewService(deps.uow, engine,
		quote.WithLogger(logger.WithField("component", "quote-service")),
		quote.WithMetrics(m),
	)

	return &services{carts: carts, engine: engine, quotes: quotes}
}

// apiServer собирает HTTP API поверх сервисов.
func (s *services) apiServer(cfg Config, deps *runtimeDependencies, logger *log.Entry) *httpapi.Server {
	return httpapi.NewServer(s.carts, s.quotes, s.engine,
		httpapi.WithLogger(logger.WithField("component", "http-api")),
		httpapi.WithIdempotency(deps.idempotencyRepo),
		httpapi.WithRequestTimeout(cfg.RequestTimeout),
	)
}
