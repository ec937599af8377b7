package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/audit"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/notification"
	"github.com/vladislavdragonenkov/marketplace/internal/service/numbering"
)

// SystemActorID — автор записей аудита, сделанных фоновыми задачами.
const SystemActorID = "system"

// ItemInput — позиция котировки в запросе на создание или изменение.
type ItemInput struct {
	Name           string
	Quantity       int32
	UnitPriceMinor int64
	ProductID      string
	VendorID       string
}

// Draft содержит изменяемые поля котировки.
type Draft struct {
	RecipientID string
	Title       string
	Notes       string
	ValidUntil  *time.Time
	Items       []ItemInput
}

// Options задаёт необязательные зависимости сервиса.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.CheckoutMetrics
	Now     func() time.Time
}

// Option настраивает Service.
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

// Service ведёт жизненный цикл котировок. Автор создаёт, меняет, отправляет
// и удаляет котировку; получатель просматривает, принимает и отклоняет её.
// Остальным пользователям организации котировка не видна.
type Service struct {
	uow      domain.UnitOfWork
	engine   *checkout.Engine
	numbers  *numbering.Generator
	audit    *audit.Recorder
	notifier *notification.Emitter
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис котировок. engine оформляет принятые котировки.
func NewService(uow domain.UnitOfWork, engine *checkout.Engine, options ...Option) *Service {
	var opts Options
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "quote-service")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		uow:      uow,
		engine:   engine,
		numbers:  numbering.NewGenerator(opts.Now),
		audit:    audit.NewRecorder(opts.Now),
		notifier: notification.NewEmitter(opts.Now),
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Create сохраняет новую котировку в статусе draft.
func (s *Service) Create(ctx context.Context, actor domain.Actor, draft Draft) (domain.Quote, error) {
	if err := actor.Validate(); err != nil {
		return domain.Quote{}, err
	}
	items, err := buildItems(draft.Items)
	if err != nil {
		return domain.Quote{}, err
	}

	now := s.now().UTC()
	q := domain.Quote{
		ID:             uuid.NewString(),
		OrganizationID: actor.OrganizationID,
		AuthorID:       actor.UserID,
		RecipientID:    strings.TrimSpace(draft.RecipientID),
		Title:          strings.TrimSpace(draft.Title),
		Notes:          draft.Notes,
		Status:         domain.QuoteStatusDraft,
		ValidUntil:     draft.ValidUntil,
		Items:          items,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	q.Recalculate()

	err = s.uow.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		number, err := s.numbers.NextQuoteNumber(ctx, repos.Sequences)
		if err != nil {
			return err
		}
		q.Number = number
		if err := repos.Quotes.Create(ctx, q); err != nil {
			return fmt.Errorf("create quote: %w", err)
		}
		_, err = s.audit.Record(ctx, repos, audit.Entry{
			Actor:      actor,
			Action:     domain.AuditActionQuoteCreated,
			Resource:   domain.ResourceQuote,
			ResourceID: q.ID,
			After:      snapshotOf(q),
		})
		return err
	})
	if err != nil {
		return domain.Quote{}, err
	}
	s.metrics.RecordQuoteTransition(string(q.Status))
	return q, nil
}

// Get возвращает котировку автору или получателю.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id string) (domain.Quote, error) {
	if err := actor.Validate(); err != nil {
		return domain.Quote{}, err
	}
	var q domain.Quote
	err := s.uow.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		q, err = load(ctx, repos, actor, id)
		return err
	})
	return q, err
}

// Update заменяет поля и позиции черновика и пересчитывает суммы.
// Отправленную котировку менять нельзя.
func (s *Service) Update(ctx context.Context, actor domain.Actor, id string, draft Draft) (domain.Quote, error) {
	items, err := buildItems(draft.Items)
	if err != nil {
		return domain.Quote{}, err
	}
	return s.mutate(ctx, actor, id, roleAuthor, domain.AuditActionQuoteUpdated, func(ctx context.Context, _ domain.Repositories, q *domain.Quote) error {
		if q.Status != domain.QuoteStatusDraft {
			return domain.Statef("quote %s is %s, only drafts can be edited", q.Number, q.Status)
		}
		q.RecipientID = strings.TrimSpace(draft.RecipientID)
		q.Title = strings.TrimSpace(draft.Title)
		q.Notes = draft.Notes
		q.ValidUntil = draft.ValidUntil
		q.Items = items
		q.Recalculate()
		q.UpdatedAt = s.now().UTC()
		return nil
	})
}

// Send отправляет черновик получателю.
func (s *Service) Send(ctx context.Context, actor domain.Actor, id string) (domain.Quote, error) {
	return s.mutate(ctx, actor, id, roleAuthor, domain.AuditActionQuoteSent, func(ctx context.Context, repos domain.Repositories, q *domain.Quote) error {
		if len(q.Items) == 0 {
			return domain.Validationf("quote %s has no items", q.Number)
		}
		if q.RecipientID == "" {
			return domain.Validationf("quote %s has no recipient", q.Number)
		}
		now := s.now().UTC()
		if q.ExpiredAt(now) {
			return domain.Validationf("quote %s valid until date is in the past", q.Number)
		}
		if err := q.Transition(domain.QuoteStatusSent, now); err != nil {
			return err
		}
		q.SentAt = &now

		_, err := s.notifier.Emit(ctx, repos, domain.Notification{
			OrganizationID: q.OrganizationID,
			RecipientID:    q.RecipientID,
			Title:          "New quote",
			Message:        fmt.Sprintf("Quote %s for %s is waiting for your review", q.Number, domain.FormatMinor(q.TotalMinor)),
			ResourceType:   domain.ResourceQuote,
			ResourceID:     q.ID,
		})
		return err
	})
}

// MarkViewed отмечает, что получатель открыл котировку. Повторный просмотр ничего не меняет.
func (s *Service) MarkViewed(ctx context.Context, actor domain.Actor, id string) (domain.Quote, error) {
	return s.mutate(ctx, actor, id, roleRecipient, domain.AuditActionQuoteViewed, func(_ context.Context, _ domain.Repositories, q *domain.Quote) error {
		if q.Status == domain.QuoteStatusViewed {
			return errUnchanged
		}
		now := s.now().UTC()
		if err := q.Transition(domain.QuoteStatusViewed, now); err != nil {
			return err
		}
		q.ViewedAt = &now
		return nil
	})
}

// Reject отклоняет котировку; автор получает уведомление.
func (s *Service) Reject(ctx context.Context, actor domain.Actor, id, reason string) (domain.Quote, error) {
	return s.mutate(ctx, actor, id, roleRecipient, domain.AuditActionQuoteRejected, func(ctx context.Context, repos domain.Repositories, q *domain.Quote) error {
		if err := q.Transition(domain.QuoteStatusRejected, s.now().UTC()); err != nil {
			return err
		}
		q.RejectionReason = strings.TrimSpace(reason)

		message := fmt.Sprintf("Quote %s was rejected", q.Number)
		if q.RejectionReason != "" {
			message += ": " + q.RejectionReason
		}
		_, err := s.notifier.Emit(ctx, repos, domain.Notification{
			OrganizationID: q.OrganizationID,
			RecipientID:    q.AuthorID,
			Title:          "Quote rejected",
			Message:        message,
			ResourceType:   domain.ResourceQuote,
			ResourceID:     q.ID,
		})
		return err
	})
}

// Delete удаляет черновик.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	return s.uow.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		q, err := load(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		if err := authorize(q, actor, roleAuthor); err != nil {
			return err
		}
		if q.Status != domain.QuoteStatusDraft {
			return domain.Statef("quote %s is %s, only drafts can be deleted", q.Number, q.Status)
		}
		if err := repos.Quotes.Delete(ctx, q.OrganizationID, q.ID); err != nil {
			return fmt.Errorf("delete quote: %w", err)
		}
		_, err = s.audit.Record(ctx, repos, audit.Entry{
			Actor:      actor,
			Action:     domain.AuditActionQuoteDeleted,
			Resource:   domain.ResourceQuote,
			ResourceID: q.ID,
			Before:     snapshotOf(q),
		})
		return err
	})
}

// AcceptResult возвращает Accept.
type AcceptResult struct {
	Quote    domain.Quote
	Checkout checkout.Result
}

// Accept принимает котировку и в той же транзакции создаёт заказы.
// Срок действия проверяется после блокировки строки котировки: просроченная
// котировка сохраняется как expired, а вызов завершается ErrState.
func (s *Service) Accept(ctx context.Context, actor domain.Actor, id string, delivery domain.DeliveryInfo) (result AcceptResult, err error) {
	if err := actor.Validate(); err != nil {
		return AcceptResult{}, err
	}
	done := s.engine.Observe(string(domain.SourceQuote))
	defer func() { done(err, len(result.Checkout.Orders)) }()

	var expired bool
	err = s.engine.Transact(ctx, "accept quote", func(ctx context.Context, repos domain.Repositories) error {
		expired = false
		q, err := load(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		if err := authorize(q, actor, roleRecipient); err != nil {
			return err
		}
		if !q.Status.CanTransitionTo(domain.QuoteStatusAccepted) {
			return domain.Statef("quote %s is %s and cannot be accepted", q.Number, q.Status)
		}

		now := s.now().UTC()
		if q.ExpiredAt(now) {
			expired = true
			result.Quote, err = s.expire(ctx, repos, actor, q, now)
			return err
		}

		before := snapshotOf(q)
		res, err := s.engine.Run(ctx, repos, checkout.NewQuoteSource(&q, actor), delivery)
		if err != nil {
			return err
		}
		result = AcceptResult{Quote: q, Checkout: res}

		if _, err := s.audit.Record(ctx, repos, audit.Entry{
			Actor:      actor,
			Action:     domain.AuditActionQuoteAccepted,
			Resource:   domain.ResourceQuote,
			ResourceID: q.ID,
			Before:     before,
			After:      snapshotOf(q),
		}); err != nil {
			return err
		}
		_, err = s.notifier.Emit(ctx, repos, domain.Notification{
			OrganizationID: q.OrganizationID,
			RecipientID:    q.AuthorID,
			Title:          "Quote accepted",
			Message:        fmt.Sprintf("Quote %s was accepted, %d order(s) created", q.Number, res.Summary.OrderCount),
			ResourceType:   domain.ResourceQuote,
			ResourceID:     q.ID,
		})
		return err
	})
	if err != nil {
		return AcceptResult{}, err
	}
	if expired {
		s.metrics.RecordQuoteTransition(string(domain.QuoteStatusExpired))
		return AcceptResult{}, domain.Statef("quote %s expired", result.Quote.Number)
	}

	s.metrics.RecordQuoteTransition(string(domain.QuoteStatusAccepted))
	s.metrics.RecordQuoteTransition(string(result.Quote.Status))
	s.logger.WithFields(log.Fields{
		"quote_id": result.Quote.ID,
		"number":   result.Quote.Number,
		"orders":   result.Checkout.Summary.OrderCount,
	}).Info("quote accepted")
	return result, nil
}

// ExpireOverdue переводит в expired до limit котировок с истёкшим сроком.
func (s *Service) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	var expired int
	err := s.uow.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		expired = 0
		now := s.now().UTC()
		quotes, err := repos.Quotes.ListExpirable(ctx, now, limit)
		if err != nil {
			return fmt.Errorf("list expirable quotes: %w", err)
		}
		for _, q := range quotes {
			system := domain.Actor{OrganizationID: q.OrganizationID, UserID: SystemActorID}
			if _, err := s.expire(ctx, repos, system, q, now); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for range expired {
		s.metrics.RecordQuoteTransition(string(domain.QuoteStatusExpired))
	}
	return expired, nil
}

func (s *Service) expire(ctx context.Context, repos domain.Repositories, actor domain.Actor, q domain.Quote, now time.Time) (domain.Quote, error) {
	before := snapshotOf(q)
	if err := q.Transition(domain.QuoteStatusExpired, now); err != nil {
		return domain.Quote{}, err
	}
	if err := repos.Quotes.Update(ctx, q); err != nil {
		return domain.Quote{}, fmt.Errorf("update quote: %w", err)
	}
	_, err := s.audit.Record(ctx, repos, audit.Entry{
		Actor:      actor,
		Action:     domain.AuditActionQuoteExpired,
		Resource:   domain.ResourceQuote,
		ResourceID: q.ID,
		Before:     before,
		After:      snapshotOf(q),
	})
	return q, err
}

// errUnchanged прерывает mutate без записи: состояние уже такое, как просили.
var errUnchanged = errors.New("quote unchanged")

func (s *Service) mutate(
	ctx context.Context,
	actor domain.Actor,
	id string,
	role role,
	action string,
	fn func(ctx context.Context, repos domain.Repositories, q *domain.Quote) error,
) (domain.Quote, error) {
	if err := actor.Validate(); err != nil {
		return domain.Quote{}, err
	}

	var (
		q         domain.Quote
		unchanged bool
	)
	err := s.uow.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		q, err = load(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		if err := authorize(q, actor, role); err != nil {
			return err
		}

		before := snapshotOf(q)
		if err := fn(ctx, repos, &q); err != nil {
			if errors.Is(err, errUnchanged) {
				unchanged = true
				return nil
			}
			return err
		}
		if err := repos.Quotes.Update(ctx, q); err != nil {
			return fmt.Errorf("update quote: %w", err)
		}
		_, err = s.audit.Record(ctx, repos, audit.Entry{
			Actor:      actor,
			Action:     action,
			Resource:   domain.ResourceQuote,
			ResourceID: q.ID,
			Before:     before,
			After:      snapshotOf(q),
		})
		return err
	})
	if err != nil {
		return domain.Quote{}, err
	}
	if !unchanged && action != domain.AuditActionQuoteUpdated {
		s.metrics.RecordQuoteTransition(string(q.Status))
	}
	return q, nil
}

type role int

const (
	roleAuthor role = iota
	roleRecipient
)

func (r role) String() string {
	if r == roleRecipient {
		return "recipient"
	}
	return "author"
}

// load читает котировку, видимую актору: чужие котировки неотличимы от отсутствующих.
func load(ctx context.Context, repos domain.Repositories, actor domain.Actor, id string) (domain.Quote, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Quote{}, domain.Validationf("quote id is required")
	}
	q, err := repos.Quotes.Get(ctx, actor.OrganizationID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Quote{}, domain.NotFoundf("quote %s", id)
	}
	if err != nil {
		return domain.Quote{}, fmt.Errorf("load quote: %w", err)
	}
	if q.AuthorID != actor.UserID && q.RecipientID != actor.UserID {
		return domain.Quote{}, domain.NotFoundf("quote %s", id)
	}
	return q, nil
}

func authorize(q domain.Quote, actor domain.Actor, r role) error {
	owner := q.AuthorID
	if r == roleRecipient {
		owner = q.RecipientID
	}
	if owner != actor.UserID {
		return domain.Statef("quote %s: action allowed only for its %s", q.Number, r)
	}
	return nil
}

func buildItems(inputs []ItemInput) ([]domain.QuoteItem, error) {
	if len(inputs) > domain.MaxLineItems {
		return nil, domain.Validationf("quote has %d items, limit is %d", len(inputs), domain.MaxLineItems)
	}
	items := make([]domain.QuoteItem, 0, len(inputs))
	var errs []error
	for i, in := range inputs {
		item := domain.QuoteItem{
			ID:             uuid.NewString(),
			Position:       i + 1,
			Name:           strings.TrimSpace(in.Name),
			Quantity:       in.Quantity,
			UnitPriceMinor: in.UnitPriceMinor,
			ProductID:      strings.TrimSpace(in.ProductID),
			VendorID:       strings.TrimSpace(in.VendorID),
		}
		errs = append(errs, item.Validate()...)
		items = append(items, item)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

type snapshot struct {
	Status      domain.QuoteStatus `json:"status"`
	RecipientID string             `json:"recipientId,omitempty"`
	ItemCount   int                `json:"itemCount"`
	TotalAmount string             `json:"totalAmount"`
	ValidUntil  *time.Time         `json:"validUntil,omitempty"`
}

func snapshotOf(q domain.Quote) snapshot {
	return snapshot{
		Status:      q.Status,
		RecipientID: q.RecipientID,
		ItemCount:   len(q.Items),
		TotalAmount: domain.FormatMinor(q.TotalMinor),
		ValidUntil:  q.ValidUntil,
	}
}
