package domain

import (
	"encoding/json"
	"time"
)

// AuditLogEntry не изменяется после записи.
type AuditLogEntry struct {
	ID             string
	OrganizationID string
	ActorID        string
	Action         string
	Resource       string
	ResourceID     string
	Before         json.RawMessage
	After          json.RawMessage
	CreatedAt      time.Time
}

// Notification — уведомление получателю; доставка (email/push) вне ядра.
type Notification struct {
	ID             string
	OrganizationID string
	RecipientID    string
	Title          string
	Message        string
	ResourceType   string
	ResourceID     string
	CreatedAt      time.Time
}

// Действия журнала аудита.
const (
	AuditActionCheckoutCompleted = "checkout.completed"
	AuditActionQuoteCreated      = "quote.created"
	AuditActionQuoteUpdated      = "quote.updated"
	AuditActionQuoteSent         = "quote.sent"
	AuditActionQuoteViewed       = "quote.viewed"
	AuditActionQuoteAccepted     = "quote.accepted"
	AuditActionQuoteRejected     = "quote.rejected"
	AuditActionQuoteExpired      = "quote.expired"
	AuditActionQuoteDeleted      = "quote.deleted"
)

// Типы ресурсов для аудита, уведомлений и outbox.
const (
	ResourceCart  = "cart"
	ResourceQuote = "quote"
	ResourceOrder = "order"
)
