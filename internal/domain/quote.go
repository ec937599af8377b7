package domain

import (
	"strings"
	"time"
)

// QuoteStatus описывает жизненный цикл котировки.
type QuoteStatus string

const (
	// Черновик: автор свободно меняет позиции.
	QuoteStatusDraft QuoteStatus = "draft"
	QuoteStatusSent   QuoteStatus = "sent"
	QuoteStatusViewed QuoteStatus = "viewed"
	// Промежуточное состояние внутри транзакции оформления, наружу не видно.
	QuoteStatusAccepted  QuoteStatus = "accepted"
	QuoteStatusConverted QuoteStatus = "converted"
	QuoteStatusRejected  QuoteStatus = "rejected"
	QuoteStatusExpired   QuoteStatus = "expired"
)

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusDraft:    {QuoteStatusSent},
	QuoteStatusSent:     {QuoteStatusViewed, QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusExpired},
	QuoteStatusViewed:   {QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusExpired},
	QuoteStatusAccepted: {QuoteStatusConverted},
}

// Valid проверяет, что статус известен.
func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteStatusDraft, QuoteStatusSent, QuoteStatusViewed, QuoteStatusAccepted,
		QuoteStatusConverted, QuoteStatusRejected, QuoteStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransitionTo сообщает, разрешён ли переход в next.
func (s QuoteStatus) CanTransitionTo(next QuoteStatus) bool {
	for _, allowed := range quoteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal сообщает, что из статуса нет переходов.
func (s QuoteStatus) Terminal() bool {
	return len(quoteTransitions[s]) == 0
}

// Quote — коммерческое предложение с собственным жизненным циклом.
type Quote struct {
	ID              string
	Number          string
	OrganizationID  string
	AuthorID        string
	RecipientID     string
	Title           string
	Notes           string
	Status          QuoteStatus
	ValidUntil      *time.Time
	Items           []QuoteItem
	SubtotalMinor   int64
	TaxMinor        int64
	TotalMinor      int64
	RejectionReason string
	SentAt          *time.Time
	ViewedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// QuoteItem может ссылаться на товар каталога или быть
// произвольной; для произвольной позиции продавец указывается явно через VendorID.
type QuoteItem struct {
	ID             string
	Position       int
	Name           string
	Quantity       int32
	UnitPriceMinor int64
	ProductID      string
	VendorID       string
}

// Transition переводит котировку в next или возвращает ErrState.
func (q *Quote) Transition(next QuoteStatus, at time.Time) error {
	if !q.Status.CanTransitionTo(next) {
		return Statef("quote %s cannot move from %s to %s", q.Number, q.Status, next)
	}
	q.Status = next
	q.UpdatedAt = at
	return nil
}

// ExpiredAt сообщает, истёк ли срок действия к моменту now.
func (q *Quote) ExpiredAt(now time.Time) bool {
	return q.ValidUntil != nil && q.ValidUntil.Before(now)
}

// Recalculate пересчитывает суммы по позициям.
func (q *Quote) Recalculate() {
	lines := make([]PriceLine, 0, len(q.Items))
	for _, item := range q.Items {
		lines = append(lines, PriceLine{UnitPriceMinor: item.UnitPriceMinor, Quantity: item.Quantity})
	}
	totals := CalculateTotals(lines)
	q.SubtotalMinor = totals.SubtotalMinor
	q.TaxMinor = totals.TaxMinor
	q.TotalMinor = totals.TotalMinor
}

// Totals возвращает сохранённый расчёт котировки.
func (q *Quote) Totals() Totals {
	return Totals{SubtotalMinor: q.SubtotalMinor, TaxMinor: q.TaxMinor, TotalMinor: q.TotalMinor}
}

// Validate проверяет позиции котировки и возвращает все найденные замечания.
func (item QuoteItem) Validate() []error {
	var errs []error
	if strings.TrimSpace(item.Name) == "" {
		errs = append(errs, Validationf("item %d: name is required", item.Position))
	}
	if item.Quantity < 1 {
		errs = append(errs, Validationf("item %d: quantity must be at least 1", item.Position))
	}
	if item.Quantity > MaxItemQuantity {
		errs = append(errs, Validationf("item %d: quantity must not exceed %d", item.Position, MaxItemQuantity))
	}
	if item.UnitPriceMinor < 0 {
		errs = append(errs, Validationf("item %d: unit price must be non-negative", item.Position))
	}
	if item.UnitPriceMinor > MaxUnitPriceMinor {
		errs = append(errs, Validationf("item %d: unit price must not exceed %s", item.Position, FormatMinor(MaxUnitPriceMinor)))
	}
	return errs
}
