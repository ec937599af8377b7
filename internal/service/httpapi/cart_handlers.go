package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.carts.GetCart(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, "get_cart", err)
		return
	}
	respondJSON(w, http.StatusOK, cartToDTO(cart))
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req AddCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "add_cart_item", err)
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		s.fail(w, r, "add_cart_item", domain.Validationf("product_id is required"))
		return
	}
	if err := domain.ValidateQuantity(req.Quantity); err != nil {
		s.fail(w, r, "add_cart_item", err)
		return
	}

	cart, err := s.carts.AddItem(r.Context(), actorFrom(r.Context()), productID, req.Quantity)
	if err != nil {
		s.fail(w, r, "add_cart_item", err)
		return
	}
	respondJSON(w, http.StatusCreated, cartToDTO(cart))
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "update_cart_item", err)
		return
	}
	if err := domain.ValidateQuantity(req.Quantity); err != nil {
		s.fail(w, r, "update_cart_item", err)
		return
	}

	cart, err := s.carts.UpdateItem(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		s.fail(w, r, "update_cart_item", err)
		return
	}
	respondJSON(w, http.StatusOK, cartToDTO(cart))
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	cart, err := s.carts.RemoveItem(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "itemID"))
	if err != nil {
		s.fail(w, r, "remove_cart_item", err)
		return
	}
	respondJSON(w, http.StatusOK, cartToDTO(cart))
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.carts.Clear(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, "clear_cart", err)
		return
	}
	respondJSON(w, http.StatusOK, cartToDTO(cart))
}

func (s *Server) getCartSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.carts.Summarize(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, "cart_summary", err)
		return
	}
	respondJSON(w, http.StatusOK, summaryToDTO(summary))
}

// validateCart всегда отвечает 200: проблемы позиций — это результат, а не ошибка запроса.
func (s *Server) validateCart(w http.ResponseWriter, r *http.Request) {
	result, err := s.carts.Validate(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, "validate_cart", err)
		return
	}
	respondJSON(w, http.StatusOK, validationToDTO(result))
}

func (s *Server) checkoutCart(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, "checkout_cart", err)
		return
	}
	var req CheckoutRequest
	if err := decodeOptionalJSON(body, &req); err != nil {
		s.fail(w, r, "checkout_cart", err)
		return
	}

	s.withIdempotency(w, r, "checkout_cart", body, func(ctx context.Context) outcome {
		result, err := s.checkout.CheckoutCart(ctx, actorFrom(ctx), req.Delivery.toDomain())
		if err != nil {
			return outcome{err: err}
		}
		return outcome{status: http.StatusCreated, payload: checkoutToDTO(result)}
	})
}
