package domain

import (
	"context"
	"time"
)

// CatalogReader даёт живое состояние каталога.
type CatalogReader interface {
	// GetProduct возвращает товар или ErrNotFound.
	GetProduct(ctx context.Context, id string) (Product, error)
	// GetVendor возвращает поставщика или ErrNotFound.
	GetVendor(ctx context.Context, id string) (Vendor, error)
}

// InventoryRepository списывает остатки при оформлении.
type InventoryRepository interface {
	// Decrement уменьшает остаток товара на quantity в текущей транзакции.
	// Товар без учёта остатка не меняется. Нехватка — *StockError,
	// неизвестный товар — ErrNotFound.
	Decrement(ctx context.Context, productID string, quantity int64) error
}

// CartRepository хранит корзины и их позиции.
type CartRepository interface {
	// Get возвращает корзину пары (organization, user) или ErrNotFound.
	// Внутри транзакции записи строка корзины блокируется.
	Get(ctx context.Context, organizationID, userID string) (Cart, error)
	// Create сохраняет новую пустую корзину.
	Create(ctx context.Context, cart Cart) error
	// SaveItem вставляет или обновляет позицию.
	SaveItem(ctx context.Context, item CartItem) error
	// DeleteItem удаляет позицию; false, если её не было.
	DeleteItem(ctx context.Context, cartID, itemID string) (bool, error)
	// Clear удаляет все позиции корзины.
	Clear(ctx context.Context, cartID string, at time.Time) error
}

// QuoteRepository хранит котировки.
type QuoteRepository interface {
	Create(ctx context.Context, quote Quote) error
	// Get возвращает котировку организации или ErrNotFound. В транзакции записи строка блокируется.
	Get(ctx context.Context, organizationID, id string) (Quote, error)
	// Update сохраняет шапку, статус, суммы и заменяет позиции целиком.
	Update(ctx context.Context, quote Quote) error
	Delete(ctx context.Context, organizationID, id string) error
	// ListExpirable возвращает sent/viewed котировки с истёкшим сроком.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]Quote, error)
}

// OrderRepository хранит созданные заказы. Обновления не предусмотрены.
type OrderRepository interface {
	// Create сохраняет заказ с позициями. Повтор номера — ErrConcurrency.
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, organizationID, id string) (Order, error)
	ListByBuyer(ctx context.Context, organizationID, buyerID string, limit int) ([]Order, error)
}

// SequenceAllocator выдаёт номера атомарным инкрементом счётчика (scope, year).
type SequenceAllocator interface {
	Next(ctx context.Context, scope string, year int) (int64, error)
}

// AuditRepository хранит журнал аудита; записи только добавляются.
type AuditRepository interface {
	Append(ctx context.Context, entry AuditLogEntry) error
	List(ctx context.Context, organizationID, resource, resourceID string) ([]AuditLogEntry, error)
}

// NotificationRepository хранит уведомления для внешней доставки.
type NotificationRepository interface {
	Append(ctx context.Context, n Notification) error
	ListByRecipient(ctx context.Context, organizationID, recipientID string, limit int) ([]Notification, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	Delete(ctx context.Context, key string) error
	// DeleteExpired удаляет до limit записей с ttl <= before и возвращает удалённые ключи.
	DeleteExpired(ctx context.Context, before time.Time, limit int) ([]ExpiredIdempotencyKey, error)
}

// Repositories — набор репозиториев, привязанных к одной транзакции (или к чтению без неё).
type Repositories struct {
	Carts         CartRepository
	Quotes        QuoteRepository
	Orders        OrderRepository
	Catalog       CatalogReader
	Inventory     InventoryRepository
	Sequences     SequenceAllocator
	Audit         AuditRepository
	Notifications NotificationRepository
	Outbox        OutboxRepository
}

// UnitOfWork задаёт границу транзакции.
type UnitOfWork interface {
	// Read выполняет fn без транзакции записи. fn не должна ничего изменять.
	Read(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// Write выполняет fn в одной транзакции: при ошибке или панике всё откатывается.
	Write(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
