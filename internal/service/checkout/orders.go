package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultOrderListLimit = 50
	maxOrderListLimit     = 200
)

// Order возвращает заказ покупателя. Чужой заказ неотличим от отсутствующего.
func (e *Engine) Order(ctx context.Context, actor domain.Actor, id string) (domain.Order, error) {
	if err := actor.Validate(); err != nil {
		return domain.Order{}, err
	}
	if strings.TrimSpace(id) == "" {
		return domain.Order{}, domain.Validationf("order id is required")
	}

	var order domain.Order
	err := e.uow.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		found, err := repos.Orders.Get(ctx, actor.OrganizationID, id)
		if err != nil {
			return err
		}
		if found.BuyerID != actor.UserID {
			return domain.NotFoundf("order %s", id)
		}
		order = found
		return nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// Orders возвращает заказы покупателя, новые первыми. limit <= 0 означает значение по умолчанию.
func (e *Engine) Orders(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultOrderListLimit
	case limit > maxOrderListLimit:
		limit = maxOrderListLimit
	}

	var orders []domain.Order
	err := e.uow.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		orders, err = repos.Orders.ListByBuyer(ctx, actor.OrganizationID, actor.UserID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
