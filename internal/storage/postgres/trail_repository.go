package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type auditRepository struct {
	scope
}

func (r *auditRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, organization_id, actor_id, action, resource, resource_id, before, after, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		entry.ID, entry.OrganizationID, entry.ActorID, entry.Action, entry.Resource, entry.ResourceID,
		nullJSON(entry.Before), nullJSON(entry.After), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List возвращает записи ресурса по времени. Пустой resourceID — все записи ресурса.
func (r *auditRepository) List(ctx context.Context, organizationID, resource, resourceID string) ([]domain.AuditLogEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, organization_id, actor_id, action, resource, resource_id, before, after, created_at
		FROM audit_log
		WHERE organization_id = $1 AND resource = $2 AND ($3 = '' OR resource_id = $3)
		ORDER BY created_at, id
	`, organizationID, resource, resourceID)
	if err != nil {
		return nil, fmt.Errorf("select audit entries: %w", err)
	}
	defer rows.Close()

	result := make([]domain.AuditLogEntry, 0)
	for rows.Next() {
		var (
			entry         domain.AuditLogEntry
			before, after []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.OrganizationID, &entry.ActorID, &entry.Action,
			&entry.Resource, &entry.ResourceID, &before, &after, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(before) > 0 {
			entry.Before = json.RawMessage(before)
		}
		if len(after) > 0 {
			entry.After = json.RawMessage(after)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return result, nil
}

type notificationRepository struct {
	scope
}

func (r *notificationRepository) Append(ctx context.Context, n domain.Notification) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO notifications (
			id, organization_id, recipient_id, title, message, resource_type, resource_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, n.ID, n.OrganizationID, n.RecipientID, n.Title, n.Message, n.ResourceType, n.ResourceID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, organizationID, recipientID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, organization_id, recipient_id, title, message, resource_type, resource_id, created_at
		FROM notifications
		WHERE organization_id = $1 AND recipient_id = $2
		ORDER BY created_at DESC, id
		LIMIT $3
	`, organizationID, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID, &n.OrganizationID, &n.RecipientID, &n.Title, &n.Message,
			&n.ResourceType, &n.ResourceID, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.CreatedAt = n.CreatedAt.UTC()
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification rows: %w", err)
	}
	return result, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

var (
	_ domain.AuditRepository        = (*auditRepository)(nil)
	_ domain.NotificationRepository = (*notificationRepository)(nil)
)
