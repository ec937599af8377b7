package validation

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Mode задаёт, собирать ли все проблемы или остановиться на первой.
type Mode int

const (
	// ModeCollectAll проверяет все позиции (просмотр корзины).
	ModeCollectAll Mode = iota
	// ModeFailFast останавливается на первой проблеме (оформление).
	ModeFailFast
)

func (m Mode) String() string {
	if m == ModeFailFast {
		return "fail_fast"
	}
	return "collect_all"
}

// Options настраивает один прогон проверки.
type Options struct {
	Mode Mode
	// CheckPrice включает сравнение записанной цены с ценой каталога.
	// Для котировок цена обязывающая и не сверяется.
	CheckPrice bool
}

// Result — итог проверки. Valid == (len(Issues) == 0).
type Result struct {
	Valid  bool
	Issues []domain.Issue
}

// Err возвращает *domain.IssuesError, если есть проблемы.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &domain.IssuesError{Issues: r.Issues}
}

// Engine проверяет, что позиции можно купить на записанных условиях.
type Engine struct {
	logger *log.Entry
}

// NewEngine создаёт движок проверки.
func NewEngine(logger *log.Entry) *Engine {
	if logger == nil {
		logger = log.WithField("component", "validation")
	}
	return &Engine{logger: logger}
}

// Validate проверяет позиции по порядку: товар доступен, поставщик активен,
// хватает остатка, цена не изменилась. На каждую позицию — не больше одной проблемы.
// Ошибка возвращается только при сбое чтения каталога.
func (e *Engine) Validate(ctx context.Context, catalog domain.CatalogReader, items []domain.LineItem, opts Options) (Result, error) {
	l := lookup{
		catalog:  catalog,
		products: make(map[string]*domain.Product),
		vendors:  make(map[string]*domain.Vendor),
	}

	// Одинаковые товары в наборе сверяются с остатком суммарно.
	requested := make(map[string]int64)
	for _, item := range items {
		if item.ProductID != "" {
			requested[item.ProductID] += int64(item.Quantity)
		}
	}

	result := Result{Valid: true}
	for _, item := range items {
		issue, err := e.check(ctx, &l, item, requested, opts)
		if err != nil {
			return Result{}, err
		}
		if issue == nil {
			continue
		}
		result.Valid = false
		result.Issues = append(result.Issues, *issue)
		if opts.Mode == ModeFailFast {
			break
		}
	}

	if !result.Valid {
		e.logger.WithFields(log.Fields{
			"mode":   opts.Mode.String(),
			"issues": len(result.Issues),
		}).Debug("validation found issues")
	}
	return result, nil
}

func (e *Engine) check(ctx context.Context, l *lookup, item domain.LineItem, requested map[string]int64, opts Options) (*domain.Issue, error) {
	issue := func(kind domain.IssueKind, details string) *domain.Issue {
		return &domain.Issue{
			ItemID:      item.ItemID,
			ProductID:   item.ProductID,
			ProductName: item.Name,
			VendorID:    item.VendorID,
			Kind:        kind,
			Details:     details,
		}
	}

	// Произвольная позиция котировки: проверяется только поставщик.
	if item.ProductID == "" {
		if item.VendorID == "" {
			return issue(domain.IssueVendorUnresolved, "item has no vendor"), nil
		}
		return e.checkVendor(ctx, l, item.VendorID, issue)
	}

	product, err := l.product(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.Active {
		return issue(domain.IssueProductUnavailable, "product is no longer available"), nil
	}
	if item.Name == "" {
		item.Name = product.Name
	}

	vendorID := product.VendorID
	if vendorID == "" {
		vendorID = item.VendorID
	}
	if vendorID == "" {
		return issue(domain.IssueVendorUnresolved, "product has no vendor"), nil
	}
	item.VendorID = vendorID
	if found, err := e.checkVendor(ctx, l, vendorID, issue); found != nil || err != nil {
		return found, err
	}

	if product.TrackStock && requested[product.ID] > int64(product.Stock) {
		found := issue(domain.IssueInsufficientStock,
			fmt.Sprintf("requested %d, available %d", requested[product.ID], product.Stock))
		found.Requested = requested[product.ID]
		found.Available = product.Stock
		return found, nil
	}

	if opts.CheckPrice && item.UnitPriceMinor != product.PriceMinor {
		found := issue(domain.IssuePriceDrift, fmt.Sprintf("price changed from %s to %s",
			domain.FormatMinor(item.UnitPriceMinor), domain.FormatMinor(product.PriceMinor)))
		found.RecordedPriceMinor = item.UnitPriceMinor
		found.CurrentPriceMinor = product.PriceMinor
		return found, nil
	}

	return nil, nil
}

func (e *Engine) checkVendor(ctx context.Context, l *lookup, vendorID string, issue func(domain.IssueKind, string) *domain.Issue) (*domain.Issue, error) {
	vendor, err := l.vendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if vendor == nil || !vendor.Active {
		return issue(domain.IssueVendorInactive, "vendor is not active"), nil
	}
	return nil, nil
}

// lookup кэширует чтения каталога в пределах одной проверки.
type lookup struct {
	catalog  domain.CatalogReader
	products map[string]*domain.Product
	vendors  map[string]*domain.Vendor
}

func (l *lookup) product(ctx context.Context, id string) (*domain.Product, error) {
	if p, ok := l.products[id]; ok {
		return p, nil
	}
	p, err := l.catalog.GetProduct(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		l.products[id] = nil
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load product %s: %w", id, err)
	}
	l.products[id] = &p
	return &p, nil
}

func (l *lookup) vendor(ctx context.Context, id string) (*domain.Vendor, error) {
	if v, ok := l.vendors[id]; ok {
		return v, nil
	}
	v, err := l.catalog.GetVendor(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		l.vendors[id] = nil
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load vendor %s: %w", id, err)
	}
	l.vendors[id] = &v
	return &v, nil
}
