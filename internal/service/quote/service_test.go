package quote_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/quote"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	author    = domain.Actor{OrganizationID: "org-1", UserID: "seller"}
	recipient = domain.Actor{OrganizationID: "org-1", UserID: "buyer"}
	outsider  = domain.Actor{OrganizationID: "org-1", UserID: "someone-else"}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) (*quote.Service, *memory.Store, *testClock) {
	t.Helper()
	store := memory.NewStore()
	store.PutVendor(domain.Vendor{ID: "vendor-a", Name: "Vendor A", Active: true})
	store.PutVendor(domain.Vendor{ID: "vendor-b", Name: "Vendor B", Active: true})
	store.PutProduct(domain.Product{ID: "chair", VendorID: "vendor-a", Name: "Chair", PriceMinor: 10000, Active: true, TrackStock: true, Stock: 10})

	clock := &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	engine := checkout.NewEngine(store, nil, checkout.WithClock(clock.Now))
	return quote.NewService(store, engine, quote.WithClock(clock.Now)), store, clock
}

func draft(clock *testClock) quote.Draft {
	validUntil := clock.Now().Add(48 * time.Hour)
	return quote.Draft{
		RecipientID: recipient.UserID,
		Title:       "Office refit",
		ValidUntil:  &validUntil,
		Items: []quote.ItemInput{
			{Name: "Chair", Quantity: 2, UnitPriceMinor: 9500, ProductID: "chair"},
			{Name: "Installation", Quantity: 1, UnitPriceMinor: 5000, VendorID: "vendor-b"},
		},
	}
}

func sentQuote(t *testing.T, svc *quote.Service, clock *testClock) domain.Quote {
	t.Helper()
	ctx := context.Background()
	q, err := svc.Create(ctx, author, draft(clock))
	require.NoError(t, err)
	q, err = svc.Send(ctx, author, q.ID)
	require.NoError(t, err)
	return q
}

func TestCreate_NumbersAndTotals(t *testing.T) {
	svc, _, clock := newFixture(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, author, draft(clock))
	require.NoError(t, err)
	require.Equal(t, "QUO-2025-000001", first.Number)
	require.Equal(t, domain.QuoteStatusDraft, first.Status)
	require.Equal(t, int64(24000), first.SubtotalMinor)
	require.Equal(t, int64(1440), first.TaxMinor)
	require.Equal(t, int64(25440), first.TotalMinor)
	require.Equal(t, 1, first.Items[0].Position)

	second, err := svc.Create(ctx, author, quote.Draft{})
	require.NoError(t, err)
	require.Equal(t, "QUO-2025-000002", second.Number)
}

func TestCreate_RejectsInvalidItems(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.Create(context.Background(), author, quote.Draft{Items: []quote.ItemInput{
		{Name: "", Quantity: 1, UnitPriceMinor: 100},
		{Name: "Bolt", Quantity: 0, UnitPriceMinor: -1},
	}})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Contains(t, err.Error(), "item 1: name is required")
	require.Contains(t, err.Error(), "item 2: unit price must be non-negative")
}

func TestCreate_RejectsTooManyItems(t *testing.T) {
	svc, _, _ := newFixture(t)

	items := make([]quote.ItemInput, domain.MaxLineItems+1)
	for i := range items {
		items[i] = quote.ItemInput{Name: "Panel", Quantity: domain.MaxItemQuantity, UnitPriceMinor: domain.MaxUnitPriceMinor, VendorID: "vendor-b"}
	}
	_, err := svc.Create(context.Background(), author, quote.Draft{Items: items})
	require.ErrorIs(t, err, domain.ErrValidation)

	q, err := svc.Create(context.Background(), author, quote.Draft{Items: items[:domain.MaxLineItems]})
	require.NoError(t, err)
	require.Equal(t, domain.MaxUnitPriceMinor*domain.MaxItemQuantity*domain.MaxLineItems, q.SubtotalMinor)
	require.Equal(t, q.SubtotalMinor+q.TaxMinor, q.TotalMinor)
}

func TestUpdate_OnlyDraft(t *testing.T) {
	svc, _, clock := newFixture(t)
	ctx := context.Background()

	q, err := svc.Create(ctx, author, draft(clock))
	require.NoError(t, err)

	edit := draft(clock)
	edit.Items = edit.Items[:1]
	q, err = svc.Update(ctx, author, q.ID, edit)
	require.NoError(t, err)
	require.Len(t, q.Items, 1)
	require.Equal(t, int64(20140), q.TotalMinor)

	_, err = svc.Send(ctx, author, q.ID)
	require.NoError(t, err)

	_, err = svc.Update(ctx, author, q.ID, draft(clock))
	require.ErrorIs(t, err, domain.ErrState)
}

func TestSend_RequiresItemsAndRecipient(t *testing.T) {
	svc, store, clock := newFixture(t)
	ctx := context.Background()

	empty, err := svc.Create(ctx, author, quote.Draft{RecipientID: recipient.UserID})
	require.NoError(t, err)
	_, err = svc.Send(ctx, author, empty.ID)
	require.ErrorIs(t, err, domain.ErrValidation)

	noRecipient := draft(clock)
	noRecipient.RecipientID = ""
	q, err := svc.Create(ctx, author, noRecipient)
	require.NoError(t, err)
	_, err = svc.Send(ctx, author, q.ID)
	require.ErrorIs(t, err, domain.ErrValidation)

	sent := sentQuote(t, svc, clock)
	require.Equal(t, domain.QuoteStatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	err = store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		notes, err := repos.Notifications.ListByRecipient(ctx, recipient.OrganizationID, recipient.UserID, 10)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		require.Equal(t, sent.ID, notes[0].ResourceID)
		return nil
	})
	require.NoError(t, err)
}

func TestVisibilityAndRoles(t *testing.T) {
	svc, _, clock := newFixture(t)
	ctx := context.Background()
	q := sentQuote(t, svc, clock)

	_, err := svc.Get(ctx, outsider, q.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(ctx, domain.Actor{OrganizationID: "org-2", UserID: recipient.UserID}, q.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := svc.Get(ctx, recipient, q.ID)
	require.NoError(t, err)
	require.Equal(t, q.Number, got.Number)

	_, err = svc.Accept(ctx, author, q.ID, domain.DeliveryInfo{})
	require.ErrorIs(t, err, domain.ErrState)

	_, err = svc.Send(ctx, recipient, q.ID)
	require.ErrorIs(t, err, domain.ErrState)
}

func TestMarkViewed_Idempotent(t *testing.T) {
	svc, store, clock := newFixture(t)
	ctx := context.Background()
	q := sentQuote(t, svc, clock)

	viewed, err := svc.MarkViewed(ctx, recipient, q.ID)
	require.NoError(t, err)
	require.Equal(t, domain.QuoteStatusViewed, viewed.Status)
	require.NotNil(t, viewed.ViewedAt)

	again, err := svc.MarkViewed(ctx, recipient, q.ID)
	require.NoError(t, err)
	require.Equal(t, viewed.ViewedAt, again.ViewedAt)

	err = store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		entries, err := repos.Audit.List(ctx, q.OrganizationID, domain.ResourceQuote, q.ID)
		require.NoError(t, err)
		var views int
		for _, e := range entries {
			if e.Action == domain.AuditActionQuoteViewed {
				views++
			}
		}
		require.Equal(t, 1, views)
		return nil
	})
	require.NoError(t, err)
}

func TestAccept_CreatesOrdersPerVendor(t *testing.T) {
	svc, store, clock := newFixture(t)
	ctx := context.Background()
	q := sentQuote(t, svc, clock)

	_, err := svc.MarkViewed(ctx, recipient, q.ID)
	require.NoError(t, err)

	res, err := svc.Accept(ctx, recipient, q.ID, domain.DeliveryInfo{Address: "Lot 7"})
	require.NoError(t, err)
	require.Equal(t, domain.QuoteStatusConverted, res.Quote.Status)
	require.Len(t, res.Checkout.Orders, 2)
	require.Equal(t, q.TotalMinor, res.Checkout.Summary.TotalMinor)
	for _, order := range res.Checkout.Orders {
		require.Equal(t, domain.SourceRef{Kind: domain.SourceQuote, ID: q.ID}, order.Source)
		require.Equal(t, recipient.UserID, order.BuyerID)
	}

	err = store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		stored, err := repos.Quotes.Get(ctx, q.OrganizationID, q.ID)
		require.NoError(t, err)
		require.Equal(t, domain.QuoteStatusConverted, stored.Status)

		notes, err := repos.Notifications.ListByRecipient(ctx, author.OrganizationID, author.UserID, 10)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		require.Equal(t, "Quote accepted", notes[0].Title)
		return nil
	})
	require.NoError(t, err)

	_, err = svc.Accept(ctx, recipient, q.ID, domain.DeliveryInfo{})
	require.ErrorIs(t, err, domain.ErrState)
}

func TestAccept_ExpiredQuote(t *testing.T) {
	svc, store, clock := newFixture(t)
	ctx := context.Background()
	q := sentQuote(t, svc, clock)

	clock.Advance(72 * time.Hour)

	_, err := svc.Accept(ctx, recipient, q.ID, domain.DeliveryInfo{})
	require.ErrorIs(t, err, domain.ErrState)
	require.Contains(t, err.Error(), "expired")

	got, err := svc.Get(ctx, recipient, q.ID)
	require.NoError(t, err)
	require.Equal(t, domain.QuoteStatusExpired, got.Status)

	err = store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		orders, err := repos.Orders.ListByBuyer(ctx, recipient.OrganizationID, recipient.UserID, 10)
		require.NoError(t, err)
		require.Empty(t, orders)
		return nil
	})
	require.NoError(t, err)
}

func TestAccept_ClosedStatesCreateNoOrders(t *testing.T) {
	tests := []struct {
		name   string
		status domain.QuoteStatus
		setup  func(t *testing.T, svc *quote.Service, clock *testClock) domain.Quote
	}{
		{
			name:   "draft",
			status: domain.QuoteStatusDraft,
			setup: func(t *testing.T, svc *quote.Service, clock *testClock) domain.Quote {
				q, err := svc.Create(context.Background(), author, draft(clock))
				require.NoError(t, err)
				return q
			},
		},
		{
			name:   "rejected",
			status: domain.QuoteStatusRejected,
			setup: func(t *testing.T, svc *quote.Service, clock *testClock) domain.Quote {
				q, err := svc.Reject(context.Background(), recipient, sentQuote(t, svc, clock).ID, "no budget")
				require.NoError(t, err)
				return q
			},
		},
		{
			name:   "expired",
			status: domain.QuoteStatusExpired,
			setup: func(t *testing.T, svc *quote.Service, clock *testClock) domain.Quote {
				q := sentQuote(t, svc, clock)
				clock.Advance(72 * time.Hour)
				n, err := svc.ExpireOverdue(context.Background(), 10)
				require.NoError(t, err)
				require.Equal(t, 1, n)
				return q
			},
		},
		{
			name:   "converted",
			status: domain.QuoteStatusConverted,
			setup: func(t *testing.T, svc *quote.Service, clock *testClock) domain.Quote {
				q := sentQuote(t, svc, clock)
				_, err := svc.Accept(context.Background(), recipient, q.ID, domain.DeliveryInfo{})
				require.NoError(t, err)
				return q
			},
		},
	}

	countOrders := func(t *testing.T, store *memory.Store) (int, int32) {
		t.Helper()
		var (
			orders int
			stock  int32
		)
		err := store.Read(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
			list, err := repos.Orders.ListByBuyer(ctx, recipient.OrganizationID, recipient.UserID, 100)
			if err != nil {
				return err
			}
			orders = len(list)
			chair, err := repos.Catalog.GetProduct(ctx, "chair")
			stock = chair.Stock
			return err
		})
		require.NoError(t, err)
		return orders, stock
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, clock := newFixture(t)
			ctx := context.Background()
			q := tc.setup(t, svc, clock)
			ordersBefore, stockBefore := countOrders(t, store)

			_, err := svc.Accept(ctx, recipient, q.ID, domain.DeliveryInfo{Address: "Lot 7"})
			require.ErrorIs(t, err, domain.ErrState)

			ordersAfter, stockAfter := countOrders(t, store)
			require.Equal(t, ordersBefore, ordersAfter)
			require.Equal(t, stockBefore, stockAfter)

			got, err := svc.Get(ctx, author, q.ID)
			require.NoError(t, err)
			require.Equal(t, tc.status, got.Status)
		})
	}
}

func TestAccept_StockIssueKeepsQuoteOpen(t *testing.T) {
	svc, store, clock := newFixture(t)
	ctx := context.Background()
	q := sentQuote(t, svc, clock)

	store.PutProduct(domain.Product{ID: "chair", VendorID: "vendor-a", Name: "Chair", PriceMinor: 10000, Active: true, TrackStock: true, Stock: 1})

	_, err := svc.Accept(ctx, recipient, q.ID, domain.DeliveryInfo{})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	got, err := svc.Get(ctx, recipient, q.ID)
	require.NoError(t, err)
	require.Equal(t, domain.QuoteStatusSent, got.Status)
}

func TestReject(t *testing.T) {
	svc, store, clock := newFixture(t)
	ctx := context.Background()
	q := sentQuote(t, svc, clock)

	rejected, err := svc.Reject(ctx, recipient, q.ID, "  too expensive ")
	require.NoError(t, err)
	require.Equal(t, domain.QuoteStatusRejected, rejected.Status)
	require.Equal(t, "too expensive", rejected.RejectionReason)

	_, err = svc.Accept(ctx, recipient, q.ID, domain.DeliveryInfo{})
	require.ErrorIs(t, err, domain.ErrState)

	err = store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		notes, err := repos.Notifications.ListByRecipient(ctx, author.OrganizationID, author.UserID, 10)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		require.Contains(t, notes[0].Message, "too expensive")
		return nil
	})
	require.NoError(t, err)
}

func TestDelete_OnlyDraft(t *testing.T) {
	svc, _, clock := newFixture(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, author, draft(clock))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, author, d.ID))
	_, err = svc.Get(ctx, author, d.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	sent := sentQuote(t, svc, clock)
	require.ErrorIs(t, svc.Delete(ctx, author, sent.ID), domain.ErrState)
}

func TestExpireOverdue(t *testing.T) {
	svc, _, clock := newFixture(t)
	ctx := context.Background()

	overdue := sentQuote(t, svc, clock)
	viewed := sentQuote(t, svc, clock)
	_, err := svc.MarkViewed(ctx, recipient, viewed.ID)
	require.NoError(t, err)
	open, err := svc.Create(ctx, author, draft(clock))
	require.NoError(t, err)

	clock.Advance(72 * time.Hour)

	n, err := svc.ExpireOverdue(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, id := range []string{overdue.ID, viewed.ID} {
		got, err := svc.Get(ctx, recipient, id)
		require.NoError(t, err)
		require.Equal(t, domain.QuoteStatusExpired, got.Status)
	}
	got, err := svc.Get(ctx, author, open.ID)
	require.NoError(t, err)
	require.Equal(t, domain.QuoteStatusDraft, got.Status)

	n, err = svc.ExpireOverdue(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, n)
}
