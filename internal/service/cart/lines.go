package cart

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// LineItems превращает позиции корзины в позиции к оформлению. Поставщик и имя
// берутся из текущего каталога; цена остаётся зафиксированной в корзине.
// Товар, исчезнувший из каталога, остаётся без поставщика.
func LineItems(ctx context.Context, catalog domain.CatalogReader, cart domain.Cart) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		line := domain.LineItem{
			ItemID:         item.ID,
			ProductID:      item.ProductID,
			UnitPriceMinor: item.UnitPriceMinor,
			Quantity:       item.Quantity,
		}
		product, err := catalog.GetProduct(ctx, item.ProductID)
		switch {
		case err == nil:
			line.VendorID = product.VendorID
			line.Name = product.Name
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
		items = append(items, line)
	}
	return items, nil
}

// Summarize строит сводку корзины по уже подготовленным позициям.
func Summarize(cart domain.Cart, items []domain.LineItem) domain.CartSummary {
	groups, unresolved := domain.GroupByVendor(items)
	var quantity int64
	for _, item := range items {
		quantity += int64(item.Quantity)
	}
	return domain.CartSummary{
		CartID:     cart.ID,
		ItemCount:  len(items),
		Quantity:   quantity,
		Totals:     domain.CalculateTotals(domain.PriceLines(items)),
		Groups:     groups,
		Unresolved: unresolved,
	}
}
