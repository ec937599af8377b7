package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// ErrorResponse описывает тело ответа об ошибке.
type ErrorResponse struct {
	Error   string     `json:"error"`
	Code    string     `json:"code,omitempty"`
	Details string     `json:"details,omitempty"`
	Issues  []IssueDTO `json:"issues,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: http.StatusText(status), Code: code, Details: message})
}

// errorPayload переводит ошибку сервиса в HTTP-статус и тело ответа.
// Внутренние ошибки не раскрываются: детали остаются только в логе.
func errorPayload(err error) (int, ErrorResponse) {
	var (
		issuesErr *domain.IssuesError
		stockErr  *domain.StockError
	)

	switch {
	case errors.As(err, &issuesErr):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error:   http.StatusText(http.StatusUnprocessableEntity),
			Code:    "validation_issues",
			Details: "some items cannot be purchased on the recorded terms",
			Issues:  issuesToDTO(issuesErr.Issues),
		}
	case errors.As(err, &stockErr):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error:   http.StatusText(http.StatusUnprocessableEntity),
			Code:    "insufficient_stock",
			Details: stockErr.Error(),
		}
	case errors.Is(err, domain.ErrEmptySource):
		return unprocessable("empty_source", err)
	case errors.Is(err, domain.ErrInsufficientStock):
		return unprocessable("insufficient_stock", err)
	case errors.Is(err, domain.ErrProductUnavailable):
		return unprocessable(string(domain.IssueProductUnavailable), err)
	case errors.Is(err, domain.ErrVendorInactive):
		return unprocessable(string(domain.IssueVendorInactive), err)
	case errors.Is(err, domain.ErrVendorUnresolved):
		return unprocessable(string(domain.IssueVendorUnresolved), err)
	case errors.Is(err, domain.ErrPriceDrift):
		return unprocessable(string(domain.IssuePriceDrift), err)
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: http.StatusText(http.StatusBadRequest), Code: "invalid_request", Details: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: http.StatusText(http.StatusNotFound), Code: "not_found", Details: err.Error()}
	case errors.Is(err, domain.ErrState):
		return http.StatusConflict, ErrorResponse{Error: http.StatusText(http.StatusConflict), Code: "illegal_state", Details: err.Error()}
	case errors.Is(err, domain.ErrConcurrency):
		return http.StatusConflict, ErrorResponse{Error: http.StatusText(http.StatusConflict), Code: "concurrent_modification", Details: "concurrent modification, retry the request"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: http.StatusText(http.StatusInternalServerError), Code: "internal"}
	}
}

func unprocessable(code string, err error) (int, ErrorResponse) {
	return http.StatusUnprocessableEntity, ErrorResponse{
		Error:   http.StatusText(http.StatusUnprocessableEntity),
		Code:    code,
		Details: err.Error(),
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, payload := errorPayload(err)
	s.logFailure(r, op, status, err)
	respondJSON(w, status, payload)
}

func (s *Server) logFailure(r *http.Request, op string, status int, err error) {
	entry := s.logger.WithError(err).WithField("operation", op).WithField("request_id", middleware.GetReqID(r.Context()))
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
		return
	}
	entry.Debug("request rejected")
}

// decodeJSON читает и строго разбирает тело запроса.
func decodeJSON(r *http.Request, dst any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.Validationf("request body is required")
	}
	return decodeBytes(body, dst)
}

// decodeOptionalJSON допускает пустое тело.
func decodeOptionalJSON(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return decodeBytes(body, dst)
}

// decodeBytes отклоняет неизвестные поля и хвост после JSON-объекта.
func decodeBytes(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validationf("invalid JSON body: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.Validationf("request body must contain a single JSON object")
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.Validationf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}
