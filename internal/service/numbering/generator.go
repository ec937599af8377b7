package numbering

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Области нумерации: у заказов и котировок независимые счётчики.
const (
	ScopeOrder = "order"
	ScopeQuote = "quote"
)

const (
	orderPrefix = "ORD"
	quotePrefix = "QUO"
)

// Generator формирует номера вида ORD-2024-000001.
// Значения выдаёт SequenceAllocator в транзакции вызывающего, поэтому номер,
// выданный откатившейся транзакции, не считается потреблённым.
type Generator struct {
	now func() time.Time
}

// NewGenerator создаёт генератор; now можно подменить в тестах.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// NextOrderNumber выдаёт следующий номер заказа.
func (g *Generator) NextOrderNumber(ctx context.Context, seq domain.SequenceAllocator) (string, error) {
	return g.next(ctx, seq, ScopeOrder, orderPrefix)
}

// NextQuoteNumber выдаёт следующий номер котировки.
func (g *Generator) NextQuoteNumber(ctx context.Context, seq domain.SequenceAllocator) (string, error) {
	return g.next(ctx, seq, ScopeQuote, quotePrefix)
}

func (g *Generator) next(ctx context.Context, seq domain.SequenceAllocator, scope, prefix string) (string, error) {
	year := g.now().UTC().Year()
	value, err := seq.Next(ctx, scope, year)
	if err != nil {
		return "", fmt.Errorf("allocate %s number: %w", scope, err)
	}
	return Format(prefix, year, value), nil
}

// Format печатает номер; последовательность дополняется нулями до 6 цифр.
func Format(prefix string, year int, value int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, value)
}
