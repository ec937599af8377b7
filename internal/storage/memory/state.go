package memory

import (
	"maps"
	"slices"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type ownerKey struct {
	organizationID string
	userID         string
}

// state — полный набор данных хранилища. Опубликованный state не изменяется.
type state struct {
	products map[string]domain.Product
	vendors  map[string]domain.Vendor

	carts       map[string]domain.Cart
	cartByOwner map[ownerKey]string

	quotes map[string]domain.Quote

	orders       map[string]domain.Order
	orderIDs     []string
	orderNumbers map[string]string

	sequences map[string]int64

	audit         []domain.AuditLogEntry
	notifications []domain.Notification

	outbox      map[string]outboxRecord
	outboxOrder []string

	// readonly запрещает запись через репозитории (для UnitOfWork.Read).
	readonly bool
}

func newState() *state {
	return &state{
		products:     make(map[string]domain.Product),
		vendors:      make(map[string]domain.Vendor),
		carts:        make(map[string]domain.Cart),
		cartByOwner:  make(map[ownerKey]string),
		quotes:       make(map[string]domain.Quote),
		orders:       make(map[string]domain.Order),
		orderNumbers: make(map[string]string),
		sequences:    make(map[string]int64),
		outbox:       make(map[string]outboxRecord),
	}
}

// clone делает копию, достаточную для изоляции: вложенные срезы позиций
// копируются при записи в репозиториях, а не здесь.
func (s *state) clone() *state {
	return &state{
		products:      maps.Clone(s.products),
		vendors:       maps.Clone(s.vendors),
		carts:         maps.Clone(s.carts),
		cartByOwner:   maps.Clone(s.cartByOwner),
		quotes:        maps.Clone(s.quotes),
		orders:        maps.Clone(s.orders),
		orderIDs:      slices.Clone(s.orderIDs),
		orderNumbers:  maps.Clone(s.orderNumbers),
		sequences:     maps.Clone(s.sequences),
		audit:         slices.Clone(s.audit),
		notifications: slices.Clone(s.notifications),
		outbox:        maps.Clone(s.outbox),
		outboxOrder:   slices.Clone(s.outboxOrder),
	}
}

func (s *state) readOnly() *state {
	view := *s
	view.readonly = true
	return &view
}

func (s *state) checkWritable() error {
	if s.readonly {
		return domain.Validationf("write attempted outside of a write transaction")
	}
	return nil
}

func newRepositories(st *state) domain.Repositories {
	return domain.Repositories{
		Carts:         &cartRepository{st: st},
		Quotes:        &quoteRepository{st: st},
		Orders:        &orderRepository{st: st},
		Catalog:       &catalogReader{st: st},
		Inventory:     &inventoryRepository{st: st},
		Sequences:     &sequenceAllocator{st: st},
		Audit:         &auditRepository{st: st},
		Notifications: &notificationRepository{st: st},
		Outbox:        &outboxRepository{st: st},
	}
}

func cloneCart(c domain.Cart) domain.Cart {
	c.Items = slices.Clone(c.Items)
	return c
}

func cloneQuote(q domain.Quote) domain.Quote {
	q.Items = slices.Clone(q.Items)
	q.ValidUntil = cloneTime(q.ValidUntil)
	q.SentAt = cloneTime(q.SentAt)
	q.ViewedAt = cloneTime(q.ViewedAt)
	return q
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	o.Delivery.RequestedDate = cloneTime(o.Delivery.RequestedDate)
	return o
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
