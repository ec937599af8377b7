package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/httpapi"
)

// statusError: ответ API вне 2xx.
type statusError struct {
	method string
	status int
	code   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: status %d (%s)", e.method, e.status, e.code)
}

// apiClient ходит в HTTP API маркетплейса.
type apiClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	col     *collector
}

type apiCall struct {
	method  string
	name    string
	path    string
	actor   domain.Actor
	headers map[string]string
	body    any
}

// do выполняет вызов, учитывает его в collector и декодирует 2xx-ответ в out.
func (c *apiClient) do(ctx context.Context, call apiCall, out any) (http.Header, error) {
	var body io.Reader
	if call.body != nil {
		raw, err := json.Marshal(call.body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", call.name, err)
		}
		body = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, call.method, c.baseURL+call.path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", call.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpapi.HeaderOrganizationID, call.actor.OrganizationID)
	req.Header.Set(httpapi.HeaderUserID, call.actor.UserID)
	for k, v := range call.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(call.name, time.Since(start), 0)
		return nil, fmt.Errorf("%s: %w", call.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.col.record(call.name, time.Since(start), resp.StatusCode)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", call.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr httpapi.ErrorResponse
		_ = json.Unmarshal(raw, &apiErr)
		return resp.Header, &statusError{method: call.name, status: resp.StatusCode, code: apiErr.Code}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.Header, fmt.Errorf("%s: decode response: %w", call.name, err)
		}
	}
	return resp.Header, nil
}

// runScenario выполняет один сценарий и учитывает его общую длительность.
func runScenario(ctx context.Context, client *apiClient, cfg config, index int, runID string) error {
	start := time.Now()
	status := http.StatusOK
	err := dispatchScenario(ctx, client, cfg, index, runID)
	if err != nil {
		status = 0
		var se *statusError
		if errors.As(err, &se) {
			status = se.status
		}
		if status >= 200 && status < 300 {
			// Ответ 2xx, но проверка сценария не прошла.
			status = http.StatusExpectationFailed
		}
	}
	client.col.record(scenarioMethod, time.Since(start), status)
	return err
}

func dispatchScenario(ctx context.Context, client *apiClient, cfg config, index int, runID string) error {
	buyer := domain.Actor{
		OrganizationID: cfg.organization,
		UserID:         fmt.Sprintf("%s-%s-%d", cfg.buyerTag, runID, index),
	}
	key := fmt.Sprintf("lt-%s-%s-%d", cfg.mode, runID, index)

	switch cfg.mode {
	case modeQuote:
		return quoteScenario(ctx, client, cfg, index, buyer, key)
	default:
		return checkoutScenario(ctx, client, cfg, index, buyer, key)
	}
}

func checkoutScenario(ctx context.Context, client *apiClient, cfg config, index int, buyer domain.Actor, key string) error {
	for _, productID := range pickProducts(cfg.products, index) {
		_, err := client.do(ctx, apiCall{
			method: http.MethodPost,
			name:   "AddCartItem",
			path:   "/v1/cart/items",
			actor:  buyer,
			body:   httpapi.AddCartItemRequest{ProductID: productID, Quantity: int32(1 + index%3)},
		}, nil)
		if err != nil {
			return err
		}
	}

	checkout := apiCall{
		method:  http.MethodPost,
		name:    "Checkout",
		path:    "/v1/cart/checkout",
		actor:   buyer,
		headers: map[string]string{httpapi.HeaderIdempotencyKey: key},
		body:    httpapi.CheckoutRequest{Delivery: fakeDelivery(index)},
	}
	var first httpapi.CheckoutResponse
	if _, err := client.do(ctx, checkout, &first); err != nil {
		return err
	}
	if len(first.Orders) == 0 {
		return errors.New("checkout returned no orders")
	}
	client.col.addOrderNumbers(orderNumbers(first.Orders)...)

	if cfg.mode != modeCheckoutReplay {
		return nil
	}

	checkout.name = "CheckoutReplay"
	var replay httpapi.CheckoutResponse
	header, err := client.do(ctx, checkout, &replay)
	if err != nil {
		return err
	}
	if header.Get(httpapi.HeaderIdempotentReplay) != "true" {
		return errors.New("replayed checkout was executed again")
	}
	if strings.Join(orderNumbers(replay.Orders), ",") != strings.Join(orderNumbers(first.Orders), ",") {
		return errors.New("replayed checkout returned different orders")
	}
	return nil
}

func quoteScenario(ctx context.Context, client *apiClient, cfg config, index int, buyer domain.Actor, key string) error {
	seller := domain.Actor{OrganizationID: cfg.organization, UserID: cfg.seller}
	validUntil := time.Now().UTC().Add(24 * time.Hour)

	items := make([]httpapi.QuoteItemRequest, 0, len(cfg.products))
	for i, productID := range pickProducts(cfg.products, index) {
		items = append(items, httpapi.QuoteItemRequest{
			Name:      productID,
			ProductID: productID,
			Quantity:  int32(1 + i),
			UnitPrice: fmt.Sprintf("%d.%02d", 10+index%90, index%100),
		})
	}

	var q httpapi.QuoteDTO
	if _, err := client.do(ctx, apiCall{
		method: http.MethodPost,
		name:   "CreateQuote",
		path:   "/v1/quotes",
		actor:  seller,
		body: httpapi.QuoteRequest{
			RecipientID: buyer.UserID,
			Title:       fmt.Sprintf("Load quote %d", index),
			ValidUntil:  &validUntil,
			Items:       items,
		},
	}, &q); err != nil {
		return err
	}

	if _, err := client.do(ctx, apiCall{
		method: http.MethodPost,
		name:   "SendQuote",
		path:   "/v1/quotes/" + q.ID + "/send",
		actor:  seller,
	}, nil); err != nil {
		return err
	}

	var accepted httpapi.AcceptQuoteResponse
	if _, err := client.do(ctx, apiCall{
		method:  http.MethodPost,
		name:    "AcceptQuote",
		path:    "/v1/quotes/" + q.ID + "/accept",
		actor:   buyer,
		headers: map[string]string{httpapi.HeaderIdempotencyKey: key},
		body:    httpapi.CheckoutRequest{Delivery: fakeDelivery(index)},
	}, &accepted); err != nil {
		return err
	}
	if accepted.Quote.Status != string(domain.QuoteStatusConverted) {
		return fmt.Errorf("accepted quote ended in status %s", accepted.Quote.Status)
	}
	client.col.addOrderNumbers(orderNumbers(accepted.Checkout.Orders)...)
	return nil
}

// pickProducts выбирает от одного до трёх товаров, смещаясь по индексу сценария,
// чтобы корзины попадали к разным продавцам.
func pickProducts(products []string, index int) []string {
	if len(products) == 0 {
		return nil
	}
	n := 1 + index%3
	if n > len(products) {
		n = len(products)
	}
	picked := make([]string, 0, n)
	for i := 0; i < n; i++ {
		picked = append(picked, products[(index+i)%len(products)])
	}
	return picked
}

// fakeDelivery генерирует воспроизводимые данные доставки для сценария.
func fakeDelivery(index int) httpapi.DeliveryDTO {
	faker := gofakeit.New(uint64(index) + 1)
	return httpapi.DeliveryDTO{
		Address:      faker.Street() + ", " + faker.City(),
		ContactName:  faker.Name(),
		ContactPhone: faker.Phone(),
	}
}

func orderNumbers(orders []httpapi.OrderDTO) []string {
	numbers := make([]string, 0, len(orders))
	for _, o := range orders {
		numbers = append(numbers, o.Number)
	}
	return numbers
}
