package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.fail(w, r, "list_orders", domain.Validationf("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	orders, err := s.checkout.Orders(r.Context(), actorFrom(r.Context()), limit)
	if err != nil {
		s.fail(w, r, "list_orders", err)
		return
	}
	respondJSON(w, http.StatusOK, OrdersResponse{Orders: ordersToDTO(orders)})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.checkout.Order(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		s.fail(w, r, "get_order", err)
		return
	}
	respondJSON(w, http.StatusOK, orderToDTO(order))
}
