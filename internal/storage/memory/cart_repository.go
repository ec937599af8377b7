package memory

import (
	"context"
	"slices"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type cartRepository struct {
	st *state
}

func (r *cartRepository) Get(_ context.Context, organizationID, userID string) (domain.Cart, error) {
	id, ok := r.st.cartByOwner[ownerKey{organizationID: organizationID, userID: userID}]
	if !ok {
		return domain.Cart{}, domain.NotFoundf("cart of user %s", userID)
	}
	return cloneCart(r.st.carts[id]), nil
}

// Create ничего не делает, если у пары уже есть корзина.
func (r *cartRepository) Create(_ context.Context, cart domain.Cart) error {
	if err := r.st.checkWritable(); err != nil {
		return err
	}
	key := ownerKey{organizationID: cart.OrganizationID, userID: cart.UserID}
	if _, exists := r.st.cartByOwner[key]; exists {
		return nil
	}
	cart.Items = nil
	r.st.carts[cart.ID] = cart
	r.st.cartByOwner[key] = cart.ID
	return nil
}

func (r *cartRepository) SaveItem(_ context.Context, item domain.CartItem) error {
	if err := r.st.checkWritable(); err != nil {
		return err
	}
	cart, ok := r.st.carts[item.CartID]
	if !ok {
		return domain.NotFoundf("cart %s", item.CartID)
	}

	items := slices.Clone(cart.Items)
	idx := slices.IndexFunc(items, func(existing domain.CartItem) bool { return existing.ID == item.ID })
	if idx >= 0 {
		items[idx] = item
	} else {
		items = append(items, item)
	}
	cart.Items = items
	cart.UpdatedAt = item.UpdatedAt
	r.st.carts[cart.ID] = cart
	return nil
}

func (r *cartRepository) DeleteItem(_ context.Context, cartID, itemID string) (bool, error) {
	if err := r.st.checkWritable(); err != nil {
		return false, err
	}
	cart, ok := r.st.carts[cartID]
	if !ok {
		return false, nil
	}
	idx := slices.IndexFunc(cart.Items, func(existing domain.CartItem) bool { return existing.ID == itemID })
	if idx < 0 {
		return false, nil
	}
	cart.Items = slices.Delete(slices.Clone(cart.Items), idx, idx+1)
	r.st.carts[cartID] = cart
	return true, nil
}

func (r *cartRepository) Clear(_ context.Context, cartID string, at time.Time) error {
	if err := r.st.checkWritable(); err != nil {
		return err
	}
	cart, ok := r.st.carts[cartID]
	if !ok {
		return domain.NotFoundf("cart %s", cartID)
	}
	cart.Items = nil
	cart.UpdatedAt = at
	r.st.carts[cartID] = cart
	return nil
}
