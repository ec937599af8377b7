package domain

import (
	"fmt"
	"time"
)

// OrderStatus описывает статус заказа. В ядре заказ только создаётся.
type OrderStatus string

const (
	OrderStatusPlaced OrderStatus = "placed"
)

// SourceKind указывает, откуда пришли позиции заказа.
type SourceKind string

const (
	SourceCart  SourceKind = "cart"
	SourceQuote SourceKind = "quote"
)

// SourceRef ссылается на корзину или котировку, из которой создан заказ.
type SourceRef struct {
	Kind SourceKind
	ID   string
}

// DeliveryInfo покупатель указывает при оформлении.
type DeliveryInfo struct {
	Address       string
	ContactName   string
	ContactPhone  string
	Notes         string
	RequestedDate *time.Time
}

// OrderItem копируется из источника в момент оформления.
type OrderItem struct {
	ID             string
	ProductID      string
	Name           string
	Quantity       int32
	UnitPriceMinor int64
	LineTotalMinor int64
}

// Order — заказ одному поставщику. После создания не изменяется.
type Order struct {
	ID             string
	Number         string
	OrganizationID string
	BuyerID        string
	VendorID       string
	Source         SourceRef
	Status         OrderStatus
	Currency       string
	Items          []OrderItem
	SubtotalMinor  int64
	TaxMinor       int64
	TotalMinor     int64
	Delivery       DeliveryInfo
	CreatedAt      time.Time
}

// ValidateInvariants проверяет инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.Number == "" {
		errs = append(errs, Validationf("order number is required"))
	}
	if o.VendorID == "" {
		errs = append(errs, ErrVendorUnresolved)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrEmptySource)
	}

	if len(o.Items) > MaxLineItems {
		errs = append(errs, Validationf("order has %d items, limit is %d", len(o.Items), MaxLineItems))
	}

	lines := make([]PriceLine, 0, len(o.Items))
	for _, item := range o.Items {
		line := PriceLine{UnitPriceMinor: item.UnitPriceMinor, Quantity: item.Quantity}
		if err := ValidatePriceLine(line); err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", item.ID, err))
			continue
		}
		if item.LineTotalMinor != item.UnitPriceMinor*int64(item.Quantity) {
			errs = append(errs, Validationf("item %s: line total mismatch", item.ID))
		}
		lines = append(lines, line)
	}
	// Суммы заказа должны совпадать с пересчётом по позициям.
	if CalculateTotals(lines) != (Totals{SubtotalMinor: o.SubtotalMinor, TaxMinor: o.TaxMinor, TotalMinor: o.TotalMinor}) {
		errs = append(errs, Validationf("order totals do not match items"))
	}

	return errs
}
