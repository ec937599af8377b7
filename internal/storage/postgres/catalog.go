package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type catalogReader struct {
	scope
}

// GetProduct внутри транзакции записи берёт FOR SHARE: остаток и цена
// не меняются до коммита оформления.
func (r *catalogReader) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var (
		p        domain.Product
		vendorID sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, vendor_id, name, price_minor, active, track_stock, stock
		FROM products
		WHERE id = $1`+r.lock("FOR SHARE"), id).Scan(
		&p.ID, &vendorID, &p.Name, &p.PriceMinor, &p.Active, &p.TrackStock, &p.Stock,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.NotFoundf("product %s", id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	p.VendorID = vendorID.String
	return p, nil
}

func (r *catalogReader) GetVendor(ctx context.Context, id string) (domain.Vendor, error) {
	var v domain.Vendor
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, active
		FROM vendors
		WHERE id = $1`+r.lock("FOR SHARE"), id).Scan(&v.ID, &v.Name, &v.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Vendor{}, domain.NotFoundf("vendor %s", id)
	}
	if err != nil {
		return domain.Vendor{}, fmt.Errorf("select vendor: %w", err)
	}
	return v, nil
}

type inventoryRepository struct {
	scope
}

// Decrement списывает остаток условным UPDATE: строка блокируется до коммита,
// а параллельное оформление того же товара либо ждёт, либо получает
// deadlock/serialization failure и повторяется целиком.
func (r *inventoryRepository) Decrement(ctx context.Context, productID string, quantity int64) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE products SET stock = stock - $2
		WHERE id = $1 AND track_stock AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return mapError(fmt.Errorf("decrement stock of %s: %w", productID, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock of %s: %w", productID, err)
	}
	if affected == 1 {
		return nil
	}

	var (
		name       string
		trackStock bool
		stock      int32
	)
	err = r.q.QueryRowContext(ctx, `SELECT name, track_stock, stock FROM products WHERE id = $1`, productID).
		Scan(&name, &trackStock, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf("product %s", productID)
	}
	if err != nil {
		return mapError(fmt.Errorf("select stock of %s: %w", productID, err))
	}
	if !trackStock {
		return nil
	}
	requested := int32(math.MaxInt32)
	if quantity < math.MaxInt32 {
		requested = int32(quantity)
	}
	return &domain.StockError{ProductID: productID, ProductName: name, Available: stock, Requested: requested}
}

// UpsertVendor пишет поставщика в каталог. Используется для наполнения стенда.
func (s *Store) UpsertVendor(ctx context.Context, v domain.Vendor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors (id, name, active) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active
	`, v.ID, v.Name, v.Active)
	if err != nil {
		return fmt.Errorf("upsert vendor: %w", err)
	}
	return nil
}

// UpsertProduct пишет товар в каталог.
func (s *Store) UpsertProduct(ctx context.Context, p domain.Product) error {
	vendorID := sql.NullString{String: p.VendorID, Valid: p.VendorID != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, vendor_id, name, price_minor, active, track_stock, stock)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			vendor_id = EXCLUDED.vendor_id,
			name = EXCLUDED.name,
			price_minor = EXCLUDED.price_minor,
			active = EXCLUDED.active,
			track_stock = EXCLUDED.track_stock,
			stock = EXCLUDED.stock
	`, p.ID, vendorID, p.Name, p.PriceMinor, p.Active, p.TrackStock, p.Stock)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

type sequenceAllocator struct {
	scope
}

// Next увеличивает счётчик одной строкой; строка остаётся заблокированной
// до конца транзакции, поэтому параллельные оформления получают разные номера.
func (a *sequenceAllocator) Next(ctx context.Context, scope string, year int) (int64, error) {
	var value int64
	err := a.q.QueryRowContext(ctx, `
		INSERT INTO sequences (scope, year, value) VALUES ($1, $2, 1)
		ON CONFLICT (scope, year) DO UPDATE SET value = sequences.value + 1
		RETURNING value
	`, scope, year).Scan(&value)
	if err != nil {
		return 0, mapError(fmt.Errorf("next %s sequence: %w", scope, err))
	}
	return value, nil
}
