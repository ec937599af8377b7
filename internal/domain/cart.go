package domain

import "time"

// MaxItemQuantity ограничивает количество в одной позиции.
const MaxItemQuantity = 100000

// Cart — корзина пользователя в организации. На пару (user, organization) не больше одной.
type Cart struct {
	ID             string
	OrganizationID string
	UserID         string
	Items          []CartItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CartItem — позиция корзины. UnitPriceMinor снят с каталога в момент добавления
// и может расходиться с текущей ценой; расхождение ловит валидация при оформлении.
type CartItem struct {
	ID             string
	CartID         string
	ProductID      string
	Quantity       int32
	UnitPriceMinor int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ItemByID ищет позицию по идентификатору.
func (c *Cart) ItemByID(itemID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return CartItem{}, false
}

// ItemByProduct ищет позицию с тем же товаром.
func (c *Cart) ItemByProduct(productID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// ValidateQuantity проверяет количество позиции.
func ValidateQuantity(qty int32) error {
	if qty < 1 {
		return Validationf("quantity must be at least 1")
	}
	if qty > MaxItemQuantity {
		return Validationf("quantity must not exceed %d", MaxItemQuantity)
	}
	return nil
}

// CartSummary — расчёт корзины и её разбиение по поставщикам. Группы строятся
// той же GroupByVendor, что и при оформлении.
type CartSummary struct {
	CartID     string
	ItemCount  int
	Quantity   int64
	Totals     Totals
	Groups     []VendorGroup
	Unresolved []LineItem
}
