package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/audit"
	"github.com/vladislavdragonenkov/marketplace/internal/service/notification"
	"github.com/vladislavdragonenkov/marketplace/internal/service/numbering"
	"github.com/vladislavdragonenkov/marketplace/internal/service/validation"
)

// DefaultCurrency — валюта заказов, если не задана другая.
const DefaultCurrency = "MYR"

// CartInvalidator сбрасывает кэш сводки корзины после оформления.
type CartInvalidator interface {
	Invalidate(ctx context.Context, actor domain.Actor)
}

// Summary суммирует все созданные заказы.
type Summary struct {
	OrderCount int
	TotalMinor int64
}

// Result — созданные заказы, по одному на поставщика, в порядке групп.
type Result struct {
	Orders  []domain.Order
	Summary Summary
}

// Options задаёт необязательные зависимости движка.
type Options struct {
	Logger      *log.Entry
	Metrics     *metrics.CheckoutMetrics
	Now         func() time.Time
	Currency    string
	Retry       RetryConfig
	Invalidator CartInvalidator
}

// Option настраивает Engine.
type Option func(*Options)

// WithLogger задает logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithMetrics задает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(opts *Options) { opts.Metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) { opts.Now = now }
}

// WithCurrency задает валюту заказов (ISO 4217).
func WithCurrency(code string) Option {
	return func(opts *Options) { opts.Currency = code }
}

// WithRetry задает повторы при конфликте транзакций.
func WithRetry(cfg RetryConfig) Option {
	return func(opts *Options) { opts.Retry = cfg }
}

// WithCartInvalidator задает сброс кэша корзины.
func WithCartInvalidator(inv CartInvalidator) Option {
	return func(opts *Options) { opts.Invalidator = inv }
}

// Engine разбивает набор позиций на заказы по поставщикам.
// Один и тот же движок оформляет корзины и принятые котировки.
type Engine struct {
	uow         domain.UnitOfWork
	validator   *validation.Engine
	numbers     *numbering.Generator
	audit       *audit.Recorder
	notifier    *notification.Emitter
	metrics     *metrics.CheckoutMetrics
	invalidator CartInvalidator
	logger      *log.Entry
	now         func() time.Time
	currency    string
	retry       RetryConfig
}

// NewEngine создаёт движок оформления.
func NewEngine(uow domain.UnitOfWork, validator *validation.Engine, options ...Option) *Engine {
	opts := Options{Retry: DefaultRetryConfig()}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "checkout-engine")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Currency == "" {
		opts.Currency = DefaultCurrency
	}
	if validator == nil {
		validator = validation.NewEngine(opts.Logger)
	}

	return &Engine{
		uow:         uow,
		validator:   validator,
		numbers:     numbering.NewGenerator(opts.Now),
		audit:       audit.NewRecorder(opts.Now),
		notifier:    notification.NewEmitter(opts.Now),
		metrics:     opts.Metrics,
		invalidator: opts.Invalidator,
		logger:      opts.Logger,
		now:         opts.Now,
		currency:    opts.Currency,
		retry:       opts.Retry,
	}
}

// CheckoutCart оформляет корзину актора. Пустая корзина отклоняется
// до открытия транзакции записи.
func (e *Engine) CheckoutCart(ctx context.Context, actor domain.Actor, delivery domain.DeliveryInfo) (result Result, err error) {
	if err := actor.Validate(); err != nil {
		return Result{}, err
	}
	done := e.Observe(string(domain.SourceCart))
	defer func() { done(err, len(result.Orders)) }()

	err = e.uow.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		c, err := repos.Carts.Get(ctx, actor.OrganizationID, actor.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrEmptySource
		}
		if err != nil {
			return err
		}
		if len(c.Items) == 0 {
			return domain.ErrEmptySource
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	err = e.Transact(ctx, "checkout cart", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		result, err = e.Run(ctx, repos, NewCartSource(actor), delivery)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if e.invalidator != nil {
		e.invalidator.Invalidate(ctx, actor)
	}
	e.logger.WithFields(log.Fields{
		"organization_id": actor.OrganizationID,
		"buyer_id":        actor.UserID,
		"orders":          result.Summary.OrderCount,
		"total":           domain.FormatMinor(result.Summary.TotalMinor),
	}).Info("cart checked out")
	return result, nil
}

// Transact выполняет fn в транзакции записи, повторяя её при ErrConcurrency.
func (e *Engine) Transact(ctx context.Context, operation string, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return withRetry(ctx, e.retry, e.logger, operation, func() error {
		return e.uow.Write(ctx, fn)
	})
}

// Run — оформление внутри транзакции вызывающего. При любой ошибке вызывающий
// обязан откатить транзакцию: частично созданные заказы не должны остаться.
func (e *Engine) Run(ctx context.Context, repos domain.Repositories, source Source, delivery domain.DeliveryInfo) (Result, error) {
	items, err := source.Load(ctx, repos)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, domain.ErrEmptySource
	}

	groups, unresolved := domain.GroupByVendor(items)
	if len(unresolved) > 0 {
		// Позиция без поставщика сама по себе — проблема; подробности даст проверка каталога.
		res, err := e.validator.Validate(ctx, repos.Catalog, unresolved[:1], validation.Options{Mode: validation.ModeFailFast})
		if err != nil {
			return Result{}, err
		}
		if !res.Valid {
			return Result{}, res.Err()
		}
		item := unresolved[0]
		return Result{}, &domain.IssuesError{Issues: []domain.Issue{{
			ItemID:      item.ItemID,
			ProductID:   item.ProductID,
			ProductName: item.Name,
			Kind:        domain.IssueVendorUnresolved,
			Details:     "item has no vendor",
		}}}
	}

	opts := validation.Options{Mode: validation.ModeFailFast, CheckPrice: source.CheckPrice()}
	for _, group := range groups {
		res, err := e.validator.Validate(ctx, repos.Catalog, group.Items, opts)
		if err != nil {
			return Result{}, err
		}
		if !res.Valid {
			return Result{}, res.Err()
		}
	}

	if err := e.decrementStock(ctx, repos, groups); err != nil {
		return Result{}, err
	}

	buyer := source.Buyer()
	ref := source.Ref()
	now := e.now().UTC()

	result := Result{Orders: make([]domain.Order, 0, len(groups))}
	for _, group := range groups {
		order, err := e.placeOrder(ctx, repos, buyer, ref, group, delivery, now)
		if err != nil {
			return Result{}, err
		}
		result.Orders = append(result.Orders, order)
		result.Summary.OrderCount++
		result.Summary.TotalMinor += order.TotalMinor
	}

	if err := source.Complete(ctx, repos, now); err != nil {
		return Result{}, fmt.Errorf("complete %s %s: %w", ref.Kind, ref.ID, err)
	}

	if err := e.record(ctx, repos, buyer, ref, result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// decrementStock списывает остатки по всем группам. Товары обходятся
// в порядке ID, чтобы параллельные оформления блокировали строки одинаково.
func (e *Engine) decrementStock(ctx context.Context, repos domain.Repositories, groups []domain.VendorGroup) error {
	quantities := make(map[string]int64)
	items := make(map[string]domain.LineItem)
	for _, group := range groups {
		for _, item := range group.Items {
			if item.ProductID == "" {
				continue
			}
			quantities[item.ProductID] += int64(item.Quantity)
			if _, ok := items[item.ProductID]; !ok {
				items[item.ProductID] = item
			}
		}
	}

	for _, productID := range slices.Sorted(maps.Keys(quantities)) {
		err := repos.Inventory.Decrement(ctx, productID, quantities[productID])
		var stockErr *domain.StockError
		if errors.As(err, &stockErr) {
			item := items[productID]
			return &domain.IssuesError{Issues: []domain.Issue{{
				ItemID:      item.ItemID,
				ProductID:   productID,
				ProductName: stockErr.ProductName,
				VendorID:    item.VendorID,
				Kind:        domain.IssueInsufficientStock,
				Details:     fmt.Sprintf("requested %d, available %d", quantities[productID], stockErr.Available),
				Requested:   quantities[productID],
				Available:   stockErr.Available,
			}}}
		}
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
	}
	return nil
}

func (e *Engine) placeOrder(
	ctx context.Context,
	repos domain.Repositories,
	buyer domain.Actor,
	ref domain.SourceRef,
	group domain.VendorGroup,
	delivery domain.DeliveryInfo,
	now time.Time,
) (domain.Order, error) {
	number, err := e.numbers.NextOrderNumber(ctx, repos.Sequences)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:             uuid.NewString(),
		Number:         number,
		OrganizationID: buyer.OrganizationID,
		BuyerID:        buyer.UserID,
		VendorID:       group.VendorID,
		Source:         ref,
		Status:         domain.OrderStatusPlaced,
		Currency:       e.currency,
		Items:          make([]domain.OrderItem, 0, len(group.Items)),
		SubtotalMinor:  group.Totals.SubtotalMinor,
		TaxMinor:       group.Totals.TaxMinor,
		TotalMinor:     group.Totals.TotalMinor,
		Delivery:       delivery,
		CreatedAt:      now,
	}
	for _, item := range group.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:             uuid.NewString(),
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceMinor: item.UnitPriceMinor,
			LineTotalMinor: item.LineTotalMinor(),
		})
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("%w: order %s: %w", domain.ErrInternal, number, errors.Join(errs...))
	}

	if err := repos.Orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order %s: %w", number, err)
	}

	payload, err := json.Marshal(kafka.NewOrderPlacedEvent(order))
	if err != nil {
		return domain.Order{}, fmt.Errorf("marshal order event: %w", err)
	}
	if _, err := repos.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: kafka.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     string(kafka.EventTypeOrderPlaced),
		Payload:       payload,
	}); err != nil {
		return domain.Order{}, fmt.Errorf("enqueue order event: %w", err)
	}
	return order, nil
}

type checkoutAudit struct {
	OrderCount   int      `json:"orderCount"`
	TotalAmount  string   `json:"totalAmount"`
	OrderNumbers []string `json:"orderNumbers"`
}

func (e *Engine) record(ctx context.Context, repos domain.Repositories, buyer domain.Actor, ref domain.SourceRef, result Result) error {
	numbers := make([]string, 0, len(result.Orders))
	for _, order := range result.Orders {
		numbers = append(numbers, order.Number)
	}

	resource := domain.ResourceCart
	if ref.Kind == domain.SourceQuote {
		resource = domain.ResourceQuote
	}
	if _, err := e.audit.Record(ctx, repos, audit.Entry{
		Actor:      buyer,
		Action:     domain.AuditActionCheckoutCompleted,
		Resource:   resource,
		ResourceID: ref.ID,
		After: checkoutAudit{
			OrderCount:   result.Summary.OrderCount,
			TotalAmount:  domain.FormatMinor(result.Summary.TotalMinor),
			OrderNumbers: numbers,
		},
	}); err != nil {
		return err
	}

	for _, order := range result.Orders {
		if _, err := e.notifier.Emit(ctx, repos, domain.Notification{
			OrganizationID: order.OrganizationID,
			RecipientID:    order.BuyerID,
			Title:          "Order placed",
			Message:        fmt.Sprintf("Order %s placed, total %s %s", order.Number, domain.FormatMinor(order.TotalMinor), order.Currency),
			ResourceType:   domain.ResourceOrder,
			ResourceID:     order.ID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Observe отмечает начало оформления в метриках и возвращает функцию завершения.
func (e *Engine) Observe(source string) func(err error, orders int) {
	finish := e.metrics.CheckoutStarted(source)
	return func(err error, orders int) {
		switch {
		case err == nil:
			finish(metrics.ResultSuccess, orders)
		case domain.IsUserFacing(err):
			var issues *domain.IssuesError
			if errors.As(err, &issues) {
				for _, issue := range issues.Issues {
					e.metrics.RecordIssue(string(issue.Kind))
				}
			}
			finish(metrics.ResultRejected, 0)
		default:
			e.logger.WithField("source", source).WithError(err).Error("checkout failed")
			finish(metrics.ResultError, 0)
		}
	}
}
