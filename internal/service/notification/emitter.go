package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

// Emitter сохраняет уведомления и ставит их в outbox для сервиса доставки.
type Emitter struct {
	now func() time.Time
}

// NewEmitter создаёт Emitter.
func NewEmitter(now func() time.Time) *Emitter {
	if now == nil {
		now = time.Now
	}
	return &Emitter{now: now}
}

// Emit записывает уведомление в транзакции вызывающего.
func (e *Emitter) Emit(ctx context.Context, repos domain.Repositories, n domain.Notification) (domain.Notification, error) {
	if n.RecipientID == "" {
		return domain.Notification{}, domain.Validationf("notification recipient is required")
	}
	n.ID = uuid.NewString()
	n.CreatedAt = e.now().UTC()

	if err := repos.Notifications.Append(ctx, n); err != nil {
		return domain.Notification{}, fmt.Errorf("append notification: %w", err)
	}

	payload, err := json.Marshal(kafka.NewNotificationEvent(n))
	if err != nil {
		return domain.Notification{}, fmt.Errorf("marshal notification event: %w", err)
	}
	if _, err := repos.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: kafka.AggregateNotification,
		AggregateID:   n.RecipientID,
		EventType:     string(kafka.EventTypeNotificationCreated),
		Payload:       payload,
	}); err != nil {
		return domain.Notification{}, fmt.Errorf("enqueue notification event: %w", err)
	}
	return n, nil
}
