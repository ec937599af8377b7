package memory

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Outbox()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.ResourceOrder,
		AggregateID:   "order-1",
		EventType:     "checkout.completed",
		Payload:       []byte(`{"orders":1}`),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}
	second, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.ResourceQuote})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("expected messages in enqueue order, got %+v", pending)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	saved, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.ResourceOrder})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := repo.MarkSent(ctx, saved.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, saved.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(pending))
	}

	if err := repo.MarkSent(ctx, "missing"); err != domain.ErrOutboxPublish {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}
}

func TestOutboxRepository_RolledBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_ = store.Write(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Outbox.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.ResourceOrder}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		return domain.ErrConcurrency
	})

	stats, err := store.Outbox().Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("expected rolled back message, got %d pending", stats.PendingCount)
	}
}
