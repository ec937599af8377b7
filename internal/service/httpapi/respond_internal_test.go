package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestErrorPayload(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "validation", err: domain.Validationf("title is required"), status: http.StatusBadRequest, code: "invalid_request"},
		{name: "not found", err: domain.NotFoundf("quote q-1"), status: http.StatusNotFound, code: "not_found"},
		{name: "state", err: domain.Statef("quote is converted"), status: http.StatusConflict, code: "illegal_state"},
		{name: "concurrency", err: fmt.Errorf("checkout: %w", domain.ErrConcurrency), status: http.StatusConflict, code: "concurrent_modification"},
		{name: "empty source", err: domain.ErrEmptySource, status: http.StatusUnprocessableEntity, code: "empty_source"},
		{name: "stock", err: &domain.StockError{ProductName: "Chair", Available: 1, Requested: 2}, status: http.StatusUnprocessableEntity, code: "insufficient_stock"},
		{name: "product unavailable", err: fmt.Errorf("%w: Chair", domain.ErrProductUnavailable), status: http.StatusUnprocessableEntity, code: "product_unavailable"},
		{name: "vendor inactive", err: fmt.Errorf("%w: Vendor A", domain.ErrVendorInactive), status: http.StatusUnprocessableEntity, code: "vendor_inactive"},
		{name: "internal", err: errors.New("pq: connection refused"), status: http.StatusInternalServerError, code: "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := errorPayload(tt.err)
			require.Equal(t, tt.status, status)
			require.Equal(t, tt.code, payload.Code)
		})
	}
}

func TestErrorPayload_IssuesWinOverValidation(t *testing.T) {
	err := fmt.Errorf("checkout: %w", &domain.IssuesError{Issues: []domain.Issue{
		{ItemID: "i-1", Kind: domain.IssuePriceDrift, RecordedPriceMinor: 10000, CurrentPriceMinor: 12000},
		{ItemID: "i-2", Kind: domain.IssueInsufficientStock, Requested: 5, Available: 2},
	}})

	status, payload := errorPayload(err)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "validation_issues", payload.Code)
	require.Len(t, payload.Issues, 2)
	require.Equal(t, "120.00", payload.Issues[0].CurrentPrice)
	require.Empty(t, payload.Issues[1].CurrentPrice)
	require.Equal(t, int32(2), payload.Issues[1].Available)
}

func TestErrorPayload_InternalHidesDetails(t *testing.T) {
	_, payload := errorPayload(errors.New("dial tcp 10.0.0.1:5432: secret host"))
	require.Empty(t, payload.Details)
}

func TestBuildIdempotencyRequestHash(t *testing.T) {
	a := buildIdempotencyRequestHash(http.MethodPost, "/v1/cart/checkout", []byte(`{"a":1}`))
	require.Len(t, a, 64)
	require.Equal(t, a, buildIdempotencyRequestHash(http.MethodPost, "/v1/cart/checkout", []byte(`{"a":1}`)))
	require.NotEqual(t, a, buildIdempotencyRequestHash(http.MethodPost, "/v1/cart/checkout", []byte(`{"a":2}`)))
	require.NotEqual(t, a, buildIdempotencyRequestHash(http.MethodPost, "/v1/quotes/q/accept", []byte(`{"a":1}`)))
}
