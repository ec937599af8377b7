package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const orderColumns = `id, number, organization_id, buyer_id, vendor_id, source_kind, source_id, status,
	currency, subtotal_minor, tax_minor, total_minor, delivery_address, contact_name, contact_phone,
	delivery_notes, requested_date, created_at`

type orderRepository struct {
	scope
}

// Create вставляет заказ с позициями. Повтор номера означает гонку нумерации.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`,
		order.ID, order.Number, order.OrganizationID, order.BuyerID, order.VendorID,
		string(order.Source.Kind), order.Source.ID, string(order.Status), order.Currency,
		order.SubtotalMinor, order.TaxMinor, order.TotalMinor,
		order.Delivery.Address, order.Delivery.ContactName, order.Delivery.ContactPhone, order.Delivery.Notes,
		nullTime(order.Delivery.RequestedDate), order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: order number %s already used", domain.ErrConcurrency, order.Number)
		}
		return mapError(fmt.Errorf("insert order: %w", err))
	}

	for i, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, product_id, name, quantity, unit_price_minor, line_total_minor
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			item.ID, order.ID, i+1, item.ProductID, item.Name, item.Quantity, item.UnitPriceMinor, item.LineTotalMinor,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, organizationID, id string) (domain.Order, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE organization_id = $1 AND id = $2
	`, organizationID, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.NotFoundf("order %s", id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) ListByBuyer(ctx context.Context, organizationID, buyerID string, limit int) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE organization_id = $1 AND buyer_id = $2
		ORDER BY created_at DESC, number DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+" LIMIT $3", organizationID, buyerID, limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query, organizationID, buyerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	for i := range orders {
		if orders[i].Items, err = r.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, name, quantity, unit_price_minor, line_total_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPriceMinor, &item.LineTotalMinor); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		sourceKind    string
		status        string
		requestedDate sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.Number, &order.OrganizationID, &order.BuyerID, &order.VendorID,
		&sourceKind, &order.Source.ID, &status, &order.Currency,
		&order.SubtotalMinor, &order.TaxMinor, &order.TotalMinor,
		&order.Delivery.Address, &order.Delivery.ContactName, &order.Delivery.ContactPhone, &order.Delivery.Notes,
		&requestedDate, &order.CreatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Source.Kind = domain.SourceKind(sourceKind)
	order.Status = domain.OrderStatus(status)
	order.Delivery.RequestedDate = timePtr(requestedDate)
	order.CreatedAt = order.CreatedAt.UTC()
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
