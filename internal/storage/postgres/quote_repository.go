package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const quoteColumns = `id, number, organization_id, author_id, recipient_id, title, notes, status,
	valid_until, subtotal_minor, tax_minor, total_minor, rejection_reason, sent_at, viewed_at,
	created_at, updated_at`

type quoteRepository struct {
	scope
}

func (r *quoteRepository) Create(ctx context.Context, q domain.Quote) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO quotes (`+quoteColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		q.ID, q.Number, q.OrganizationID, q.AuthorID, q.RecipientID, q.Title, q.Notes, string(q.Status),
		nullTime(q.ValidUntil), q.SubtotalMinor, q.TaxMinor, q.TotalMinor, q.RejectionReason,
		nullTime(q.SentAt), nullTime(q.ViewedAt), q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: quote number %s already used", domain.ErrConcurrency, q.Number)
		}
		return mapError(fmt.Errorf("insert quote: %w", err))
	}
	return r.insertItems(ctx, q)
}

func (r *quoteRepository) Get(ctx context.Context, organizationID, id string) (domain.Quote, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+quoteColumns+`
		FROM quotes
		WHERE organization_id = $1 AND id = $2`+r.lock("FOR UPDATE"), organizationID, id)
	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quote{}, domain.NotFoundf("quote %s", id)
	}
	if err != nil {
		return domain.Quote{}, mapError(fmt.Errorf("select quote: %w", err))
	}
	if q.Items, err = r.loadItems(ctx, q.ID); err != nil {
		return domain.Quote{}, err
	}
	return q, nil
}

func (r *quoteRepository) Update(ctx context.Context, q domain.Quote) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE quotes SET
			recipient_id = $3,
			title = $4,
			notes = $5,
			status = $6,
			valid_until = $7,
			subtotal_minor = $8,
			tax_minor = $9,
			total_minor = $10,
			rejection_reason = $11,
			sent_at = $12,
			viewed_at = $13,
			updated_at = $14
		WHERE organization_id = $1 AND id = $2
	`,
		q.OrganizationID, q.ID, q.RecipientID, q.Title, q.Notes, string(q.Status), nullTime(q.ValidUntil),
		q.SubtotalMinor, q.TaxMinor, q.TotalMinor, q.RejectionReason, nullTime(q.SentAt), nullTime(q.ViewedAt),
		q.UpdatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("update quote: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("quote %s", q.ID)
	}

	if _, err := r.q.ExecContext(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, q.ID); err != nil {
		return fmt.Errorf("delete quote items: %w", err)
	}
	return r.insertItems(ctx, q)
}

func (r *quoteRepository) Delete(ctx context.Context, organizationID, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM quotes WHERE organization_id = $1 AND id = $2`, organizationID, id)
	if err != nil {
		return fmt.Errorf("delete quote: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("quote %s", id)
	}
	return nil
}

// ListExpirable в транзакции записи пропускает строки, занятые параллельным принятием.
func (r *quoteRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Quote, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+quoteColumns+`
		FROM quotes
		WHERE status IN ('sent', 'viewed') AND valid_until < $1
		ORDER BY valid_until ASC, id ASC
		LIMIT $2`+r.lock("FOR UPDATE SKIP LOCKED"), now, limit)
	if err != nil {
		return nil, mapError(fmt.Errorf("select expirable quotes: %w", err))
	}

	var quotes []domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	rows.Close()

	for i := range quotes {
		if quotes[i].Items, err = r.loadItems(ctx, quotes[i].ID); err != nil {
			return nil, err
		}
	}
	return quotes, nil
}

func (r *quoteRepository) insertItems(ctx context.Context, q domain.Quote) error {
	for _, item := range q.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO quote_items (id, quote_id, position, name, quantity, unit_price_minor, product_id, vendor_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, q.ID, item.Position, item.Name, item.Quantity, item.UnitPriceMinor, item.ProductID, item.VendorID); err != nil {
			return fmt.Errorf("insert quote item: %w", err)
		}
	}
	return nil
}

func (r *quoteRepository) loadItems(ctx context.Context, quoteID string) ([]domain.QuoteItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, position, name, quantity, unit_price_minor, product_id, vendor_id
		FROM quote_items
		WHERE quote_id = $1
		ORDER BY position ASC
	`, quoteID)
	if err != nil {
		return nil, fmt.Errorf("select quote items: %w", err)
	}
	defer rows.Close()

	var items []domain.QuoteItem
	for rows.Next() {
		var item domain.QuoteItem
		if err := rows.Scan(&item.ID, &item.Position, &item.Name, &item.Quantity, &item.UnitPriceMinor, &item.ProductID, &item.VendorID); err != nil {
			return nil, fmt.Errorf("scan quote item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuote(row rowScanner) (domain.Quote, error) {
	var (
		q                          domain.Quote
		status                     string
		validUntil, sentAt, viewed sql.NullTime
	)
	if err := row.Scan(
		&q.ID, &q.Number, &q.OrganizationID, &q.AuthorID, &q.RecipientID, &q.Title, &q.Notes, &status,
		&validUntil, &q.SubtotalMinor, &q.TaxMinor, &q.TotalMinor, &q.RejectionReason, &sentAt, &viewed,
		&q.CreatedAt, &q.UpdatedAt,
	); err != nil {
		return domain.Quote{}, err
	}
	q.Status = domain.QuoteStatus(status)
	q.ValidUntil = timePtr(validUntil)
	q.SentAt = timePtr(sentAt)
	q.ViewedAt = timePtr(viewed)
	return q, nil
}

var _ domain.QuoteRepository = (*quoteRepository)(nil)
