package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

// Entry описывает одну запись журнала. Before/After сериализуются в JSON.
type Entry struct {
	Actor      domain.Actor
	Action     string
	Resource   string
	ResourceID string
	Before     any
	After      any
}

// Recorder пишет журнал аудита в таблицу и ставит копию в outbox.
// Вызывается внутри транзакции операции: запись откатывается вместе с ней.
type Recorder struct {
	now func() time.Time
}

// NewRecorder создаёт Recorder; now можно подменить в тестах.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Record добавляет запись журнала и событие audit в outbox.
func (r *Recorder) Record(ctx context.Context, repos domain.Repositories, e Entry) (domain.AuditLogEntry, error) {
	before, err := marshalPayload(e.Before)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("marshal audit before: %w", err)
	}
	after, err := marshalPayload(e.After)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("marshal audit after: %w", err)
	}

	entry := domain.AuditLogEntry{
		ID:             uuid.NewString(),
		OrganizationID: e.Actor.OrganizationID,
		ActorID:        e.Actor.UserID,
		Action:         e.Action,
		Resource:       e.Resource,
		ResourceID:     e.ResourceID,
		Before:         before,
		After:          after,
		CreatedAt:      r.now().UTC(),
	}
	if err := repos.Audit.Append(ctx, entry); err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("append audit entry: %w", err)
	}

	payload, err := json.Marshal(kafka.NewAuditEvent(entry))
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("marshal audit event: %w", err)
	}
	if _, err := repos.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: kafka.AggregateAudit,
		AggregateID:   entry.ResourceID,
		EventType:     entry.Action,
		Payload:       payload,
	}); err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("enqueue audit event: %w", err)
	}
	return entry, nil
}

func marshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
