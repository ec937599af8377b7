package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/httpapi"
	"github.com/vladislavdragonenkov/marketplace/internal/service/quote"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	buyer  = domain.Actor{OrganizationID: "org-1", UserID: "buyer-1"}
	seller = domain.Actor{OrganizationID: "org-1", UserID: "seller-1"}
)

type fixture struct {
	store   *memory.Store
	idem    domain.IdempotencyRepository
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.PutVendor(domain.Vendor{ID: "vendor-a", Name: "Vendor A", Active: true})
	store.PutVendor(domain.Vendor{ID: "vendor-b", Name: "Vendor B", Active: true})
	store.PutProduct(domain.Product{ID: "chair", VendorID: "vendor-a", Name: "Chair", PriceMinor: 10000, Active: true, TrackStock: true, Stock: 5})
	store.PutProduct(domain.Product{ID: "stool", VendorID: "vendor-a", Name: "Stool", PriceMinor: 10000, Active: true})
	store.PutProduct(domain.Product{ID: "lamp", VendorID: "vendor-b", Name: "Lamp", PriceMinor: 5000, Active: true})

	logger := log.New()
	logger.SetOutput(io.Discard)
	entry := log.NewEntry(logger)

	carts := cart.NewService(store, nil, cart.WithLogger(entry))
	engine := checkout.NewEngine(store, nil, checkout.WithLogger(entry), checkout.WithCartInvalidator(carts))
	quotes := quote.NewService(store, engine, quote.WithLogger(entry))
	idem := memory.NewIdempotencyRepository()

	server := httpapi.NewServer(carts, quotes, engine, httpapi.WithLogger(entry), httpapi.WithIdempotency(idem))
	return &fixture{store: store, idem: idem, handler: server.Routes()}
}

type call struct {
	method  string
	path    string
	body    any
	actor   domain.Actor
	headers map[string]string
}

func (f *fixture) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	switch v := c.body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.actor.OrganizationID != "" {
		req.Header.Set(httpapi.HeaderOrganizationID, c.actor.OrganizationID)
	}
	if c.actor.UserID != "" {
		req.Header.Set(httpapi.HeaderUserID, c.actor.UserID)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) addItem(t *testing.T, actor domain.Actor, productID string, qty int32) httpapi.CartDTO {
	t.Helper()
	rec := f.do(t, call{
		method: http.MethodPost,
		path:   "/v1/cart/items",
		body:   httpapi.AddCartItemRequest{ProductID: productID, Quantity: qty},
		actor:  actor,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[httpapi.CartDTO](t, rec)
}

func TestRoutes_RequireActorHeaders(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		actor domain.Actor
	}{
		{name: "no headers"},
		{name: "organization only", actor: domain.Actor{OrganizationID: "org-1"}},
		{name: "user only", actor: domain.Actor{UserID: "buyer-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, call{method: http.MethodGet, path: "/v1/cart", actor: tt.actor})
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, "unauthorized", decode[httpapi.ErrorResponse](t, rec).Code)
		})
	}
}

func TestRoutes_UnknownRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, call{method: http.MethodGet, path: "/v2/cart", actor: buyer})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, call{method: http.MethodPut, path: "/v1/cart", actor: buyer})
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
