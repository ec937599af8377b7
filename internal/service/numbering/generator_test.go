package numbering_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/service/numbering"
)

type counter struct {
	values map[string]int64
	err    error
}

func (c *counter) Next(_ context.Context, scope string, year int) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	key := scope + "/" + time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")
	c.values[key]++
	return c.values[key], nil
}

func TestGenerator(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	gen := numbering.NewGenerator(func() time.Time { return now })
	seq := &counter{values: make(map[string]int64)}
	ctx := context.Background()

	tests := []struct {
		name string
		next func() (string, error)
		want string
	}{
		{name: "first order", next: func() (string, error) { return gen.NextOrderNumber(ctx, seq) }, want: "ORD-2024-000001"},
		{name: "second order", next: func() (string, error) { return gen.NextOrderNumber(ctx, seq) }, want: "ORD-2024-000002"},
		{name: "quotes count separately", next: func() (string, error) { return gen.NextQuoteNumber(ctx, seq) }, want: "QUO-2024-000001"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.next()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGenerator_AllocatorError(t *testing.T) {
	gen := numbering.NewGenerator(nil)
	boom := errors.New("boom")

	_, err := gen.NextOrderNumber(context.Background(), &counter{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped allocator error, got %v", err)
	}
}

func TestFormat(t *testing.T) {
	if got := numbering.Format("ORD", 2025, 1234567); got != "ORD-2025-1234567" {
		t.Fatalf("unexpected format %q", got)
	}
}
