package memory

import (
	"context"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type orderRepository struct {
	st *state
}

// Create сохраняет заказ. Занятый номер — ErrConcurrency, как уникальный индекс в PostgreSQL.
func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	if err := r.st.checkWritable(); err != nil {
		return err
	}
	if _, exists := r.st.orders[order.ID]; exists {
		return domain.ErrConcurrency
	}
	if _, taken := r.st.orderNumbers[order.Number]; taken {
		return domain.ErrConcurrency
	}
	r.st.orders[order.ID] = cloneOrder(order)
	r.st.orderIDs = append(r.st.orderIDs, order.ID)
	r.st.orderNumbers[order.Number] = order.ID
	return nil
}

func (r *orderRepository) Get(_ context.Context, organizationID, id string) (domain.Order, error) {
	order, ok := r.st.orders[id]
	if !ok || order.OrganizationID != organizationID {
		return domain.Order{}, domain.NotFoundf("order %s", id)
	}
	return cloneOrder(order), nil
}

// ListByBuyer возвращает заказы покупателя, новые первыми.
func (r *orderRepository) ListByBuyer(_ context.Context, organizationID, buyerID string, limit int) ([]domain.Order, error) {
	result := make([]domain.Order, 0)
	for i := len(r.st.orderIDs) - 1; i >= 0; i-- {
		order := r.st.orders[r.st.orderIDs[i]]
		if order.OrganizationID != organizationID || order.BuyerID != buyerID {
			continue
		}
		result = append(result, cloneOrder(order))
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
