package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) createQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "create_quote", err)
		return
	}
	draft, err := req.toDraft()
	if err != nil {
		s.fail(w, r, "create_quote", err)
		return
	}

	q, err := s.quotes.Create(r.Context(), actorFrom(r.Context()), draft)
	if err != nil {
		s.fail(w, r, "create_quote", err)
		return
	}
	respondJSON(w, http.StatusCreated, quoteToDTO(q))
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotes.Get(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "quoteID"))
	if err != nil {
		s.fail(w, r, "get_quote", err)
		return
	}
	respondJSON(w, http.StatusOK, quoteToDTO(q))
}

func (s *Server) updateQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "update_quote", err)
		return
	}
	draft, err := req.toDraft()
	if err != nil {
		s.fail(w, r, "update_quote", err)
		return
	}

	q, err := s.quotes.Update(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "quoteID"), draft)
	if err != nil {
		s.fail(w, r, "update_quote", err)
		return
	}
	respondJSON(w, http.StatusOK, quoteToDTO(q))
}

func (s *Server) deleteQuote(w http.ResponseWriter, r *http.Request) {
	if err := s.quotes.Delete(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "quoteID")); err != nil {
		s.fail(w, r, "delete_quote", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sendQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotes.Send(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "quoteID"))
	if err != nil {
		s.fail(w, r, "send_quote", err)
		return
	}
	respondJSON(w, http.StatusOK, quoteToDTO(q))
}

func (s *Server) viewQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotes.MarkViewed(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "quoteID"))
	if err != nil {
		s.fail(w, r, "view_quote", err)
		return
	}
	respondJSON(w, http.StatusOK, quoteToDTO(q))
}

func (s *Server) rejectQuote(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, "reject_quote", err)
		return
	}
	var req RejectQuoteRequest
	if err := decodeOptionalJSON(body, &req); err != nil {
		s.fail(w, r, "reject_quote", err)
		return
	}

	q, err := s.quotes.Reject(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "quoteID"), req.Reason)
	if err != nil {
		s.fail(w, r, "reject_quote", err)
		return
	}
	respondJSON(w, http.StatusOK, quoteToDTO(q))
}

func (s *Server) acceptQuote(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, "accept_quote", err)
		return
	}
	var req CheckoutRequest
	if err := decodeOptionalJSON(body, &req); err != nil {
		s.fail(w, r, "accept_quote", err)
		return
	}
	id := chi.URLParam(r, "quoteID")

	s.withIdempotency(w, r, "accept_quote", body, func(ctx context.Context) outcome {
		result, err := s.quotes.Accept(ctx, actorFrom(ctx), id, req.Delivery.toDomain())
		if err != nil {
			return outcome{err: err}
		}
		return outcome{status: http.StatusCreated, payload: AcceptQuoteResponse{
			Quote:    quoteToDTO(result.Quote),
			Checkout: checkoutToDTO(result.Checkout),
		}}
	})
}
