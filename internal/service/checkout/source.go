package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
)

// Source — источник позиций для оформления: корзина или принятая котировка.
type Source interface {
	// Ref идентифицирует источник; валиден после Load.
	Ref() domain.SourceRef
	// От имени Buyer создаются заказы.
	Buyer() domain.Actor
	// Load читает позиции в транзакции оформления (строка источника блокируется).
	Load(ctx context.Context, repos domain.Repositories) ([]domain.LineItem, error)
	// CheckPrice включает сверку цен с каталогом.
	CheckPrice() bool
	// Complete закрывает источник после создания заказов: очищает корзину
	// или переводит котировку в converted.
	Complete(ctx context.Context, repos domain.Repositories, at time.Time) error
}

// CartSource оформляет корзину актора.
type CartSource struct {
	actor  domain.Actor
	cartID string
}

// NewCartSource создаёт источник из корзины актора.
func NewCartSource(actor domain.Actor) *CartSource {
	return &CartSource{actor: actor}
}

func (s *CartSource) Ref() domain.SourceRef {
	return domain.SourceRef{Kind: domain.SourceCart, ID: s.cartID}
}

func (s *CartSource) Buyer() domain.Actor { return s.actor }

func (s *CartSource) CheckPrice() bool { return true }

func (s *CartSource) Load(ctx context.Context, repos domain.Repositories) ([]domain.LineItem, error) {
	c, err := repos.Carts.Get(ctx, s.actor.OrganizationID, s.actor.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrEmptySource
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	s.cartID = c.ID
	items, err := cart.LineItems(ctx, repos.Catalog, c)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	return items, nil
}

func (s *CartSource) Complete(ctx context.Context, repos domain.Repositories, at time.Time) error {
	return repos.Carts.Clear(ctx, s.cartID, at)
}

// QuoteSource оформляет принятую котировку. Цена котировки обязывающая,
// поэтому с каталогом она не сверяется.
type QuoteSource struct {
	quote *domain.Quote
	buyer domain.Actor
}

// NewQuoteSource создаёт источник из котировки, уже прочитанной и заблокированной вызывающим.
func NewQuoteSource(quote *domain.Quote, buyer domain.Actor) *QuoteSource {
	return &QuoteSource{quote: quote, buyer: buyer}
}

func (s *QuoteSource) Ref() domain.SourceRef {
	return domain.SourceRef{Kind: domain.SourceQuote, ID: s.quote.ID}
}

func (s *QuoteSource) Buyer() domain.Actor { return s.buyer }

func (s *QuoteSource) CheckPrice() bool { return false }

func (s *QuoteSource) Load(ctx context.Context, repos domain.Repositories) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, len(s.quote.Items))
	for _, item := range s.quote.Items {
		line := domain.LineItem{
			ItemID:         item.ID,
			ProductID:      item.ProductID,
			VendorID:       item.VendorID,
			Name:           item.Name,
			UnitPriceMinor: item.UnitPriceMinor,
			Quantity:       item.Quantity,
		}
		if item.ProductID != "" {
			product, err := repos.Catalog.GetProduct(ctx, item.ProductID)
			switch {
			case err == nil:
				if product.VendorID != "" {
					line.VendorID = product.VendorID
				}
			case errors.Is(err, domain.ErrNotFound):
				// Останется без поставщика или с явно указанным; проверка решит.
			default:
				return nil, fmt.Errorf("load quote product %s: %w", item.ProductID, err)
			}
		}
		items = append(items, line)
	}
	return items, nil
}

func (s *QuoteSource) Complete(ctx context.Context, repos domain.Repositories, at time.Time) error {
	if err := s.quote.Transition(domain.QuoteStatusAccepted, at); err != nil {
		return err
	}
	if err := s.quote.Transition(domain.QuoteStatusConverted, at); err != nil {
		return err
	}
	return repos.Quotes.Update(ctx, *s.quote)
}
