package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type quoteRepository struct {
	st *state
}

func (r *quoteRepository) Create(_ context.Context, quote domain.Quote) error {
	if err := r.st.checkWritable(); err != nil {
		return err
	}
	if _, exists := r.st.quotes[quote.ID]; exists {
		return domain.ErrConcurrency
	}
	for _, existing := range r.st.quotes {
		if existing.Number == quote.Number {
			return domain.ErrConcurrency
		}
	}
	r.st.quotes[quote.ID] = cloneQuote(quote)
	return nil
}

func (r *quoteRepository) Get(_ context.Context, organizationID, id string) (domain.Quote, error) {
	quote, ok := r.st.quotes[id]
	if !ok || quote.OrganizationID != organizationID {
		return domain.Quote{}, domain.NotFoundf("quote %s", id)
	}
	return cloneQuote(quote), nil
}

func (r *quoteRepository) Update(_ context.Context, quote domain.Quote) error {
	if err := r.st.checkWritable(); err != nil {
		return err
	}
	existing, ok := r.st.quotes[quote.ID]
	if !ok || existing.OrganizationID != quote.OrganizationID {
		return domain.NotFoundf("quote %s", quote.ID)
	}
	r.st.quotes[quote.ID] = cloneQuote(quote)
	return nil
}

func (r *quoteRepository) Delete(_ context.Context, organizationID, id string) error {
	if err := r.st.checkWritable(); err != nil {
		return err
	}
	existing, ok := r.st.quotes[id]
	if !ok || existing.OrganizationID != organizationID {
		return domain.NotFoundf("quote %s", id)
	}
	delete(r.st.quotes, id)
	return nil
}

func (r *quoteRepository) ListExpirable(_ context.Context, now time.Time, limit int) ([]domain.Quote, error) {
	result := make([]domain.Quote, 0)
	for _, quote := range r.st.quotes {
		if quote.Status != domain.QuoteStatusSent && quote.Status != domain.QuoteStatusViewed {
			continue
		}
		if !quote.ExpiredAt(now) {
			continue
		}
		result = append(result, cloneQuote(quote))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ValidUntil.Before(*result[j].ValidUntil)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
