package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// helper для создания заказа поставщику с двумя позициями.
func makeOrder() domain.Order {
	items := []domain.OrderItem{
		{ID: "item-1", ProductID: "p-1", Name: "Drafting table", Quantity: 2, UnitPriceMinor: 10000, LineTotalMinor: 20000},
		{ID: "item-2", ProductID: "p-2", Name: "Lamp", Quantity: 1, UnitPriceMinor: 5000, LineTotalMinor: 5000},
	}
	return domain.Order{
		ID:             "order-1",
		Number:         "ORD-2024-000001",
		OrganizationID: "org-1",
		BuyerID:        "user-1",
		VendorID:       "vendor-1",
		Source:         domain.SourceRef{Kind: domain.SourceCart, ID: "cart-1"},
		Status:         domain.OrderStatusPlaced,
		Currency:       "MYR",
		Items:          items,
		SubtotalMinor:  25000,
		TaxMinor:       1500,
		TotalMinor:     26500,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{name: "no number", mut: func(o *domain.Order) { o.Number = "" }},
		{name: "no vendor", mut: func(o *domain.Order) { o.VendorID = "" }},
		{name: "no items", mut: func(o *domain.Order) {
			o.Items = nil
			o.SubtotalMinor, o.TaxMinor, o.TotalMinor = 0, 0, 0
		}},
		{name: "zero quantity", mut: func(o *domain.Order) { o.Items[0].Quantity = 0 }},
		{name: "line total mismatch", mut: func(o *domain.Order) { o.Items[1].LineTotalMinor = 4999 }},
		{name: "tax mismatch", mut: func(o *domain.Order) { o.TaxMinor++ }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			if errs := order.ValidateInvariants(); len(errs) == 0 {
				t.Fatalf("expected validation errors")
			}
		})
	}
}
