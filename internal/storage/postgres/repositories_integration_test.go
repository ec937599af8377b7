package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func seedCatalog(t *testing.T, store *Store) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.UpsertVendor(ctx, domain.Vendor{ID: "vendor-a", Name: "Vendor A", Active: true}))
	require.NoError(t, store.UpsertProduct(ctx, domain.Product{
		ID: "prod-1", VendorID: "vendor-a", Name: "Cement", PriceMinor: 10000, Active: true, TrackStock: true, Stock: 5,
	}))
	require.NoError(t, store.UpsertProduct(ctx, domain.Product{
		ID: "prod-orphan", Name: "Loose item", PriceMinor: 500, Active: true,
	}))
}

func TestStore_PostgresCatalogReader(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalog(t, store)
	ctx := context.Background()

	err := store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		p, err := repos.Catalog.GetProduct(ctx, "prod-1")
		require.NoError(t, err)
		require.Equal(t, "vendor-a", p.VendorID)
		require.Equal(t, int32(5), p.Stock)
		require.True(t, p.TrackStock)

		orphan, err := repos.Catalog.GetProduct(ctx, "prod-orphan")
		require.NoError(t, err)
		require.Empty(t, orphan.VendorID)

		_, err = repos.Catalog.GetProduct(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrNotFound)

		v, err := repos.Catalog.GetVendor(ctx, "vendor-a")
		require.NoError(t, err)
		require.True(t, v.Active)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_PostgresWriteRollsBack(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	boom := errors.New("boom")
	err := store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		require.NoError(t, repos.Carts.Create(ctx, domain.Cart{
			ID: "cart-1", OrganizationID: "org-1", UserID: "user-1", CreatedAt: now, UpdatedAt: now,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		_, err := repos.Carts.Get(ctx, "org-1", "user-1")
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.Panics(t, func() {
		_ = store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
			_ = repos.Carts.Create(ctx, domain.Cart{
				ID: "cart-2", OrganizationID: "org-1", UserID: "user-1", CreatedAt: now, UpdatedAt: now,
			})
			panic("unexpected")
		})
	})
	err = store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		_, err := repos.Carts.Get(ctx, "org-1", "user-1")
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_PostgresCartLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		cart := domain.Cart{ID: "cart-1", OrganizationID: "org-1", UserID: "user-1", CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repos.Carts.Create(ctx, cart))
		// Вторая корзина той же пары не создаётся.
		require.NoError(t, repos.Carts.Create(ctx, domain.Cart{
			ID: "cart-dup", OrganizationID: "org-1", UserID: "user-1", CreatedAt: now, UpdatedAt: now,
		}))
		require.NoError(t, repos.Carts.SaveItem(ctx, domain.CartItem{
			ID: "item-1", CartID: cart.ID, ProductID: "prod-1", Quantity: 2, UnitPriceMinor: 10000,
			CreatedAt: now, UpdatedAt: now,
		}))
		return nil
	})
	require.NoError(t, err)

	err = store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := repos.Carts.Get(ctx, "org-1", "user-1")
		require.NoError(t, err)
		require.Equal(t, "cart-1", cart.ID)
		require.Len(t, cart.Items, 1)

		item := cart.Items[0]
		item.Quantity = 4
		require.NoError(t, repos.Carts.SaveItem(ctx, item))

		removed, err := repos.Carts.DeleteItem(ctx, cart.ID, "missing")
		require.NoError(t, err)
		require.False(t, removed)
		return nil
	})
	require.NoError(t, err)

	err = store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := repos.Carts.Get(ctx, "org-1", "user-1")
		require.NoError(t, err)
		require.Equal(t, int32(4), cart.Items[0].Quantity)
		return repos.Carts.Clear(ctx, cart.ID, now.Add(time.Minute))
	})
	require.NoError(t, err)

	err = store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := repos.Carts.Get(ctx, "org-1", "user-1")
		require.NoError(t, err)
		require.Empty(t, cart.Items)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_PostgresQuoteRoundTripAndExpirable(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	yesterday := now.Add(-24 * time.Hour)

	q := domain.Quote{
		ID:             "quote-1",
		Number:         "QUO-2026-000001",
		OrganizationID: "org-1",
		AuthorID:       "author",
		RecipientID:    "buyer",
		Title:          "Facade works",
		Status:         domain.QuoteStatusSent,
		ValidUntil:     &yesterday,
		Items: []domain.QuoteItem{
			{ID: "qi-1", Position: 1, Name: "Glass panel", Quantity: 3, UnitPriceMinor: 25000, VendorID: "vendor-a"},
			{ID: "qi-2", Position: 2, Name: "Installation", Quantity: 1, UnitPriceMinor: 40000, VendorID: "vendor-a"},
		},
		SentAt:    &now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.Recalculate()

	require.NoError(t, store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Quotes.Create(ctx, q)
	}))

	err := store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		got, err := repos.Quotes.Get(ctx, "org-1", "quote-1")
		require.NoError(t, err)
		require.Equal(t, q.TotalMinor, got.TotalMinor)
		require.Len(t, got.Items, 2)
		require.Equal(t, "Glass panel", got.Items[0].Name)
		require.NotNil(t, got.ValidUntil)

		expirable, err := repos.Quotes.ListExpirable(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, expirable, 1)

		got.Items = got.Items[:1]
		got.Recalculate()
		require.NoError(t, got.Transition(domain.QuoteStatusExpired, now))
		return repos.Quotes.Update(ctx, got)
	})
	require.NoError(t, err)

	err = store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		got, err := repos.Quotes.Get(ctx, "org-1", "quote-1")
		require.NoError(t, err)
		require.Equal(t, domain.QuoteStatusExpired, got.Status)
		require.Len(t, got.Items, 1)

		_, err = repos.Quotes.Get(ctx, "other-org", "quote-1")
		require.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_PostgresOrdersRejectDuplicateNumber(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	order := domain.Order{
		ID:             uuid.NewString(),
		Number:         "ORD-2026-000001",
		OrganizationID: "org-1",
		BuyerID:        "buyer",
		VendorID:       "vendor-a",
		Source:         domain.SourceRef{Kind: domain.SourceCart, ID: "cart-1"},
		Status:         domain.OrderStatusPlaced,
		Currency:       "MYR",
		Items: []domain.OrderItem{
			{ID: uuid.NewString(), ProductID: "prod-1", Name: "Cement", Quantity: 2, UnitPriceMinor: 10000, LineTotalMinor: 20000},
		},
		SubtotalMinor: 20000,
		TaxMinor:      1200,
		TotalMinor:    21200,
		Delivery:      domain.DeliveryInfo{Address: "Jalan 1", RequestedDate: &now},
		CreatedAt:     now,
	}
	require.NoError(t, store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Orders.Create(ctx, order)
	}))

	dup := order
	dup.ID = uuid.NewString()
	dup.Items = []domain.OrderItem{{ID: uuid.NewString(), Name: "x", Quantity: 1, UnitPriceMinor: 1, LineTotalMinor: 1}}
	err := store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Orders.Create(ctx, dup)
	})
	require.ErrorIs(t, err, domain.ErrConcurrency)

	err = store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		got, err := repos.Orders.Get(ctx, "org-1", order.ID)
		require.NoError(t, err)
		require.Equal(t, order.Number, got.Number)
		require.Equal(t, order.Items, got.Items)
		require.Equal(t, "Jalan 1", got.Delivery.Address)

		list, err := repos.Orders.ListByBuyer(ctx, "org-1", "buyer", 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_PostgresSequencesUniqueUnderConcurrency(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		values = make(map[int64]struct{}, workers)
		errs   []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var value int64
			err := store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
				var err error
				value, err = repos.Sequences.Next(ctx, "order", 2026)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			values[value] = struct{}{}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, values, workers)
	for i := int64(1); i <= workers; i++ {
		_, ok := values[i]
		require.True(t, ok, fmt.Sprintf("missing sequence value %d", i))
	}
}

func TestStore_PostgresAuditAndNotifications(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		require.NoError(t, repos.Audit.Append(ctx, domain.AuditLogEntry{
			ID: uuid.NewString(), OrganizationID: "org-1", ActorID: "buyer", Action: domain.AuditActionCheckoutCompleted,
			Resource: domain.ResourceCart, ResourceID: "cart-1", After: []byte(`{"orderCount":2}`), CreatedAt: now,
		}))
		return repos.Notifications.Append(ctx, domain.Notification{
			ID: uuid.NewString(), OrganizationID: "org-1", RecipientID: "buyer", Title: "Order placed",
			Message: "Order ORD-2026-000001 placed", ResourceType: domain.ResourceOrder, ResourceID: "order-1", CreatedAt: now,
		})
	})
	require.NoError(t, err)

	err = store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		entries, err := repos.Audit.List(ctx, "org-1", domain.ResourceCart, "")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Empty(t, entries[0].Before)
		require.JSONEq(t, `{"orderCount":2}`, string(entries[0].After))

		notes, err := repos.Notifications.ListByRecipient(ctx, "org-1", "buyer", 10)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		require.Equal(t, "order-1", notes[0].ResourceID)
		return nil
	})
	require.NoError(t, err)
}

func TestParseIsolation(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "read_committed", "repeatable_read", "serializable"} {
		if _, err := ParseIsolation(raw); err != nil {
			t.Fatalf("ParseIsolation(%q): %v", raw, err)
		}
	}
	if _, err := ParseIsolation("chaos"); err == nil {
		t.Fatal("expected error for unknown isolation level")
	}
}
