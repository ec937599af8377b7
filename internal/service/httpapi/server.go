// Package httpapi публикует корзину, котировки и заказы по HTTP/JSON.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/quote"
	"github.com/vladislavdragonenkov/marketplace/internal/service/validation"
)

// CartService описывает операции корзины, которые нужны API.
type CartService interface {
	GetCart(ctx context.Context, actor domain.Actor) (domain.Cart, error)
	AddItem(ctx context.Context, actor domain.Actor, productID string, quantity int32) (domain.Cart, error)
	UpdateItem(ctx context.Context, actor domain.Actor, itemID string, quantity int32) (domain.Cart, error)
	RemoveItem(ctx context.Context, actor domain.Actor, itemID string) (domain.Cart, error)
	Clear(ctx context.Context, actor domain.Actor) (domain.Cart, error)
	Summarize(ctx context.Context, actor domain.Actor) (domain.CartSummary, error)
	Validate(ctx context.Context, actor domain.Actor) (validation.Result, error)
}

// QuoteService — жизненный цикл котировок.
type QuoteService interface {
	Create(ctx context.Context, actor domain.Actor, draft quote.Draft) (domain.Quote, error)
	Get(ctx context.Context, actor domain.Actor, id string) (domain.Quote, error)
	Update(ctx context.Context, actor domain.Actor, id string, draft quote.Draft) (domain.Quote, error)
	Send(ctx context.Context, actor domain.Actor, id string) (domain.Quote, error)
	MarkViewed(ctx context.Context, actor domain.Actor, id string) (domain.Quote, error)
	Reject(ctx context.Context, actor domain.Actor, id, reason string) (domain.Quote, error)
	Delete(ctx context.Context, actor domain.Actor, id string) error
	Accept(ctx context.Context, actor domain.Actor, id string, delivery domain.DeliveryInfo) (quote.AcceptResult, error)
}

// CheckoutService оформляет корзину и отдаёт созданные заказы.
type CheckoutService interface {
	CheckoutCart(ctx context.Context, actor domain.Actor, delivery domain.DeliveryInfo) (checkout.Result, error)
	Order(ctx context.Context, actor domain.Actor, id string) (domain.Order, error)
	Orders(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error)
}

const (
	defaultRequestTimeout = 30 * time.Second
	maxRequestBodySize    = 1 << 20
)

// Options задаёт необязательные зависимости API.
type Options struct {
	Logger         *log.Entry
	Idempotency    domain.IdempotencyRepository
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Option настраивает Server.
type Option func(*Options)

// WithLogger задает logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithIdempotency включает повтор ответов по заголовку Idempotency-Key.
func WithIdempotency(repo domain.IdempotencyRepository) Option {
	return func(opts *Options) { opts.Idempotency = repo }
}

// WithRequestTimeout ограничивает время обработки запроса.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(opts *Options) { opts.RequestTimeout = timeout }
}

// WithClock подменяет источник времени для TTL ключей идемпотентности.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) { opts.Now = now }
}

// Server обслуживает HTTP API.
type Server struct {
	carts    CartService
	quotes   QuoteService
	checkout CheckoutService
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry
	timeout  time.Duration
	now      func() time.Time
}

// NewServer собирает обработчики поверх сервисов.
func NewServer(carts CartService, quotes QuoteService, checkout CheckoutService, options ...Option) *Server {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "http-api")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Server{
		carts:    carts,
		quotes:   quotes,
		checkout: checkout,
		idemRepo: opts.Idempotency,
		logger:   opts.Logger,
		timeout:  opts.RequestTimeout,
		now:      opts.Now,
	}
}

// Routes возвращает роутер со всеми маршрутами /v1.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireActor)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.getCart)
			r.Delete("/", s.clearCart)
			r.Get("/summary", s.getCartSummary)
			r.Post("/validate", s.validateCart)
			r.Post("/checkout", s.checkoutCart)
			r.Post("/items", s.addCartItem)
			r.Patch("/items/{itemID}", s.updateCartItem)
			r.Delete("/items/{itemID}", s.removeCartItem)
		})

		r.Route("/quotes", func(r chi.Router) {
			r.Post("/", s.createQuote)
			r.Route("/{quoteID}", func(r chi.Router) {
				r.Get("/", s.getQuote)
				r.Patch("/", s.updateQuote)
				r.Delete("/", s.deleteQuote)
				r.Post("/send", s.sendQuote)
				r.Post("/view", s.viewQuote)
				r.Post("/accept", s.acceptQuote)
				r.Post("/reject", s.rejectQuote)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.listOrders)
			r.Get("/{orderID}", s.getOrder)
		})
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		entry := s.logger.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	})
}
