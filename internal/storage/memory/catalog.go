package memory

import (
	"context"
	"fmt"
	"math"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type catalogReader struct {
	st *state
}

func (r *catalogReader) GetProduct(_ context.Context, id string) (domain.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return domain.Product{}, domain.NotFoundf("product %s", id)
	}
	return p, nil
}

func (r *catalogReader) GetVendor(_ context.Context, id string) (domain.Vendor, error) {
	v, ok := r.st.vendors[id]
	if !ok {
		return domain.Vendor{}, domain.NotFoundf("vendor %s", id)
	}
	return v, nil
}

type inventoryRepository struct {
	st *state
}

func (r *inventoryRepository) Decrement(_ context.Context, productID string, quantity int64) error {
	if err := r.st.checkWritable(); err != nil {
		return err
	}
	p, ok := r.st.products[productID]
	if !ok {
		return domain.NotFoundf("product %s", productID)
	}
	if !p.TrackStock {
		return nil
	}
	if quantity > int64(p.Stock) {
		return &domain.StockError{ProductID: p.ID, ProductName: p.Name, Available: p.Stock, Requested: clampInt32(quantity)}
	}
	p.Stock -= int32(quantity)
	r.st.products[productID] = p
	return nil
}

func clampInt32(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(v)
}

// sequenceAllocator ведёт счётчики в том же состоянии, что и заказы,
// поэтому значение из откатившейся транзакции не расходуется.
type sequenceAllocator struct {
	st *state
}

func (a *sequenceAllocator) Next(_ context.Context, scope string, year int) (int64, error) {
	if err := a.st.checkWritable(); err != nil {
		return 0, err
	}
	key := sequenceKey(scope, year)
	a.st.sequences[key]++
	return a.st.sequences[key], nil
}

func sequenceKey(scope string, year int) string {
	return fmt.Sprintf("%s:%d", scope, year)
}
