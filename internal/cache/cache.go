package cache

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// ErrCacheMiss возвращается, когда записи в кэше нет.
var ErrCacheMiss = errors.New("cache miss")

// SummaryCache хранит рассчитанную сводку корзины актора.
type SummaryCache interface {
	Get(ctx context.Context, actor domain.Actor) (domain.CartSummary, error)
	Set(ctx context.Context, actor domain.Actor, summary domain.CartSummary) error
	Delete(ctx context.Context, actor domain.Actor) error
}

// Noop ничего не хранит; используется, когда Redis не настроен.
type Noop struct{}

func (Noop) Get(context.Context, domain.Actor) (domain.CartSummary, error) {
	return domain.CartSummary{}, ErrCacheMiss
}

func (Noop) Set(context.Context, domain.Actor, domain.CartSummary) error { return nil }

func (Noop) Delete(context.Context, domain.Actor) error { return nil }

var _ SummaryCache = Noop{}
