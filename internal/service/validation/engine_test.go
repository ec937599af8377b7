package validation_test

import (
	"context"
	"math"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/validation"
)

type stubCatalog struct {
	products map[string]domain.Product
	vendors  map[string]domain.Vendor
	err      error
	calls    int
}

func (c *stubCatalog) GetProduct(_ context.Context, id string) (domain.Product, error) {
	c.calls++
	if c.err != nil {
		return domain.Product{}, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (c *stubCatalog) GetVendor(_ context.Context, id string) (domain.Vendor, error) {
	v, ok := c.vendors[id]
	if !ok {
		return domain.Vendor{}, domain.ErrNotFound
	}
	return v, nil
}

func newCatalog() *stubCatalog {
	return &stubCatalog{
		products: map[string]domain.Product{
			"chair":   {ID: "chair", VendorID: "acme", Name: "Chair", PriceMinor: 10000, Active: true, TrackStock: true, Stock: 5},
			"desk":    {ID: "desk", VendorID: "acme", Name: "Desk", PriceMinor: 50000, Active: true},
			"retired": {ID: "retired", VendorID: "acme", Name: "Old lamp", PriceMinor: 100, Active: false},
			"closed":  {ID: "closed", VendorID: "gone", Name: "Bench", PriceMinor: 100, Active: true},
		},
		vendors: map[string]domain.Vendor{
			"acme": {ID: "acme", Name: "Acme", Active: true},
			"gone": {ID: "gone", Name: "Gone Ltd", Active: false},
		},
	}
}

func TestValidate_AllValid(t *testing.T) {
	engine := validation.NewEngine(nil)
	items := []domain.LineItem{
		{ItemID: "1", ProductID: "chair", UnitPriceMinor: 10000, Quantity: 2},
		{ItemID: "2", ProductID: "desk", UnitPriceMinor: 50000, Quantity: 1},
	}

	result, err := engine.Validate(context.Background(), newCatalog(), items, validation.Options{CheckPrice: true})
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Empty(t, result.Issues)
	require.NoError(t, result.Err())
}

func TestValidate_CollectAllIssueKinds(t *testing.T) {
	engine := validation.NewEngine(nil)
	items := []domain.LineItem{
		{ItemID: "missing", ProductID: "nope", Quantity: 1},
		{ItemID: "retired", ProductID: "retired", UnitPriceMinor: 100, Quantity: 1},
		{ItemID: "closed", ProductID: "closed", UnitPriceMinor: 100, Quantity: 1},
		{ItemID: "stock", ProductID: "chair", UnitPriceMinor: 10000, Quantity: 6},
		{ItemID: "drift", ProductID: "desk", UnitPriceMinor: 45000, Quantity: 1},
		{ItemID: "adhoc", Name: "Consulting", UnitPriceMinor: 100, Quantity: 1},
	}

	result, err := engine.Validate(context.Background(), newCatalog(), items, validation.Options{Mode: validation.ModeCollectAll, CheckPrice: true})
	require.NoError(t, err)
	require.False(t, result.Valid)

	got := make(map[string]domain.IssueKind)
	for _, issue := range result.Issues {
		got[issue.ItemID] = issue.Kind
	}
	require.Equal(t, map[string]domain.IssueKind{
		"missing": domain.IssueProductUnavailable,
		"retired": domain.IssueProductUnavailable,
		"closed":  domain.IssueVendorInactive,
		"stock":   domain.IssueInsufficientStock,
		"drift":   domain.IssuePriceDrift,
		"adhoc":   domain.IssueVendorUnresolved,
	}, got)

	for _, issue := range result.Issues {
		switch issue.Kind {
		case domain.IssueInsufficientStock:
			require.Equal(t, int64(6), issue.Requested)
			require.Equal(t, int32(5), issue.Available)
			require.Equal(t, "Chair", issue.ProductName)
		case domain.IssuePriceDrift:
			require.Equal(t, int64(45000), issue.RecordedPriceMinor)
			require.Equal(t, int64(50000), issue.CurrentPriceMinor)
		}
	}

	err = result.Err()
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.ErrorIs(t, err, domain.ErrPriceDrift)
}

func TestValidate_FailFastStopsAtFirst(t *testing.T) {
	engine := validation.NewEngine(nil)
	items := []domain.LineItem{
		{ItemID: "1", ProductID: "desk", UnitPriceMinor: 50000, Quantity: 1},
		{ItemID: "2", ProductID: "retired", Quantity: 1},
		{ItemID: "3", ProductID: "nope", Quantity: 1},
	}

	result, err := engine.Validate(context.Background(), newCatalog(), items, validation.Options{Mode: validation.ModeFailFast})
	require.NoError(t, err)
	require.Len(t, result.Issues, 1)
	require.Equal(t, "2", result.Issues[0].ItemID)
}

func TestValidate_StockSummedPerProduct(t *testing.T) {
	engine := validation.NewEngine(nil)
	items := []domain.LineItem{
		{ItemID: "1", ProductID: "chair", UnitPriceMinor: 10000, Quantity: 3},
		{ItemID: "2", ProductID: "chair", UnitPriceMinor: 10000, Quantity: 3},
	}

	result, err := engine.Validate(context.Background(), newCatalog(), items, validation.Options{})
	require.NoError(t, err)
	require.Len(t, result.Issues, 2)
	require.Equal(t, domain.IssueInsufficientStock, result.Issues[0].Kind)
	require.Equal(t, int64(6), result.Issues[0].Requested)
}

func TestValidate_StockSumDoesNotWrap(t *testing.T) {
	engine := validation.NewEngine(nil)
	items := []domain.LineItem{
		{ItemID: "1", ProductID: "chair", UnitPriceMinor: 10000, Quantity: math.MaxInt32},
		{ItemID: "2", ProductID: "chair", UnitPriceMinor: 10000, Quantity: math.MaxInt32},
	}

	result, err := engine.Validate(context.Background(), newCatalog(), items, validation.Options{Mode: validation.ModeFailFast})
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, domain.IssueInsufficientStock, result.Issues[0].Kind)
	require.Equal(t, int64(2*math.MaxInt32), result.Issues[0].Requested)
}

func TestValidate_PriceIgnoredWithoutCheckPrice(t *testing.T) {
	engine := validation.NewEngine(nil)
	items := []domain.LineItem{{ItemID: "1", ProductID: "desk", UnitPriceMinor: 1, Quantity: 1}}

	result, err := engine.Validate(context.Background(), newCatalog(), items, validation.Options{})
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestValidate_AdHocItemWithVendor(t *testing.T) {
	engine := validation.NewEngine(nil)
	items := []domain.LineItem{
		{ItemID: "1", VendorID: "acme", Name: "Site survey", UnitPriceMinor: 150000, Quantity: 1},
		{ItemID: "2", VendorID: "gone", Name: "Delivery", UnitPriceMinor: 100, Quantity: 1},
	}

	result, err := engine.Validate(context.Background(), newCatalog(), items, validation.Options{})
	require.NoError(t, err)
	require.Len(t, result.Issues, 1)
	require.Equal(t, domain.IssueVendorInactive, result.Issues[0].Kind)
	require.Equal(t, "2", result.Issues[0].ItemID)
}

func TestValidate_CatalogFailure(t *testing.T) {
	catalog := newCatalog()
	catalog.err = errors.New("connection reset")
	engine := validation.NewEngine(nil)

	_, err := engine.Validate(context.Background(), catalog, []domain.LineItem{{ItemID: "1", ProductID: "desk", Quantity: 1}}, validation.Options{})
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrValidation)
}

func TestValidate_CachesCatalogReads(t *testing.T) {
	catalog := newCatalog()
	engine := validation.NewEngine(nil)
	items := []domain.LineItem{
		{ItemID: "1", ProductID: "desk", UnitPriceMinor: 50000, Quantity: 1},
		{ItemID: "2", ProductID: "desk", UnitPriceMinor: 50000, Quantity: 1},
	}

	_, err := engine.Validate(context.Background(), catalog, items, validation.Options{})
	require.NoError(t, err)
	require.Equal(t, 1, catalog.calls)
}
