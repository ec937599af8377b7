package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type cartRepository struct {
	scope
}

func (r *cartRepository) Get(ctx context.Context, organizationID, userID string) (domain.Cart, error) {
	var c domain.Cart
	err := r.q.QueryRowContext(ctx, `
		SELECT id, organization_id, user_id, created_at, updated_at
		FROM carts
		WHERE organization_id = $1 AND user_id = $2`+r.lock("FOR UPDATE"),
		organizationID, userID,
	).Scan(&c.ID, &c.OrganizationID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, domain.NotFoundf("cart of user %s", userID)
	}
	if err != nil {
		return domain.Cart{}, mapError(fmt.Errorf("select cart: %w", err))
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, quantity, unit_price_minor, created_at, updated_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at ASC, id ASC
	`, c.ID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item := domain.CartItem{CartID: c.ID}
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.UnitPriceMinor, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		c.Items = append(c.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart items: %w", err)
	}
	return c, nil
}

// Create ничего не делает, если у пары уже есть корзина.
func (r *cartRepository) Create(ctx context.Context, c domain.Cart) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, organization_id, user_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (organization_id, user_id) DO NOTHING
	`, c.ID, c.OrganizationID, c.UserID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return mapError(fmt.Errorf("insert cart: %w", err))
	}
	return nil
}

func (r *cartRepository) SaveItem(ctx context.Context, item domain.CartItem) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, unit_price_minor, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			unit_price_minor = EXCLUDED.unit_price_minor,
			updated_at = EXCLUDED.updated_at
	`, item.ID, item.CartID, item.ProductID, item.Quantity, item.UnitPriceMinor, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: product %s already in cart", domain.ErrConcurrency, item.ProductID)
		}
		return mapError(fmt.Errorf("upsert cart item: %w", err))
	}
	return r.touch(ctx, item.CartID, item.UpdatedAt)
}

func (r *cartRepository) DeleteItem(ctx context.Context, cartID, itemID string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`, cartID, itemID)
	if err != nil {
		return false, fmt.Errorf("delete cart item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *cartRepository) Clear(ctx context.Context, cartID string, at time.Time) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return r.touch(ctx, cartID, at)
}

func (r *cartRepository) touch(ctx context.Context, cartID string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, at)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("cart %s", cartID)
	}
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
