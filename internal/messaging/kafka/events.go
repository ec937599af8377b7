package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// Аудит: action записи журнала, например checkout.completed или quote.sent.
	EventTypeAuditRecorded EventType = "audit.recorded"

	// Уведомления
	EventTypeNotificationCreated EventType = "notification.created"

	// Заказы
	EventTypeOrderPlaced EventType = "order.placed"
)

// Типы агрегатов outbox. По ним выбирается topic.
const (
	AggregateAudit        = "audit"
	AggregateNotification = "notification"
	AggregateOrder        = "order"
)

// Topics для Kafka
const (
	TopicAuditEvents     = "marketplace.audit.events"
	TopicNotifications   = "marketplace.notifications"
	TopicOrderEvents     = "marketplace.order.events"
	TopicDeadLetterQueue = "marketplace.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// TopicForAggregate возвращает topic для типа агрегата outbox.
func TopicForAggregate(aggregateType string) string {
	switch aggregateType {
	case AggregateAudit:
		return TopicAuditEvents
	case AggregateNotification:
		return TopicNotifications
	case AggregateOrder:
		return TopicOrderEvents
	default:
		return ""
	}
}

// AuditEvent уходит во внешнее хранилище журнала аудита.
type AuditEvent struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	ActorID        string          `json:"actor_id"`
	Action         string          `json:"action"`
	Resource       string          `json:"resource"`
	ResourceID     string          `json:"resource_id"`
	Before         json.RawMessage `json:"before,omitempty"`
	After          json.RawMessage `json:"after,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// NotificationEvent читает сервис доставки уведомлений (email/push).
type NotificationEvent struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	RecipientID    string    `json:"recipient_id"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	ResourceType   string    `json:"resource_type"`
	ResourceID     string    `json:"resource_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// OrderPlacedEvent сообщает поставщику о новом заказе.
type OrderPlacedEvent struct {
	EventType      EventType `json:"event_type"`
	OrderID        string    `json:"order_id"`
	Number         string    `json:"number"`
	OrganizationID string    `json:"organization_id"`
	BuyerID        string    `json:"buyer_id"`
	VendorID       string    `json:"vendor_id"`
	SourceKind     string    `json:"source_kind"`
	SourceID       string    `json:"source_id"`
	Currency       string    `json:"currency"`
	SubtotalMinor  int64     `json:"subtotal_minor"`
	TaxMinor       int64     `json:"tax_minor"`
	TotalMinor     int64     `json:"total_minor"`
	ItemCount      int       `json:"item_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewOrderPlacedEvent создаёт событие о созданном заказе.
func NewOrderPlacedEvent(order domain.Order) *OrderPlacedEvent {
	return &OrderPlacedEvent{
		EventType:      EventTypeOrderPlaced,
		OrderID:        order.ID,
		Number:         order.Number,
		OrganizationID: order.OrganizationID,
		BuyerID:        order.BuyerID,
		VendorID:       order.VendorID,
		SourceKind:     string(order.Source.Kind),
		SourceID:       order.Source.ID,
		Currency:       order.Currency,
		SubtotalMinor:  order.SubtotalMinor,
		TaxMinor:       order.TaxMinor,
		TotalMinor:     order.TotalMinor,
		ItemCount:      len(order.Items),
		Timestamp:      order.CreatedAt,
	}
}

// NewAuditEvent переносит запись журнала в событие.
func NewAuditEvent(entry domain.AuditLogEntry) *AuditEvent {
	return &AuditEvent{
		ID:             entry.ID,
		OrganizationID: entry.OrganizationID,
		ActorID:        entry.ActorID,
		Action:         entry.Action,
		Resource:       entry.Resource,
		ResourceID:     entry.ResourceID,
		Before:         entry.Before,
		After:          entry.After,
		Timestamp:      entry.CreatedAt,
	}
}

// NewNotificationEvent переносит уведомление в событие.
func NewNotificationEvent(n domain.Notification) *NotificationEvent {
	return &NotificationEvent{
		ID:             n.ID,
		OrganizationID: n.OrganizationID,
		RecipientID:    n.RecipientID,
		Title:          n.Title,
		Message:        n.Message,
		ResourceType:   n.ResourceType,
		ResourceID:     n.ResourceID,
		Timestamp:      n.CreatedAt,
	}
}

// DeadLetter — сообщение outbox, которое не удалось опубликовать после всех попыток.
// Пишется в TopicDeadLetterQueue; cmd/dlq-reprocess возвращает его в исходный topic.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	OriginalTopic  string          `json:"original_topic"`
	Attempts       int             `json:"attempts"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}
