package memory

import (
	"context"
	"slices"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type auditRepository struct {
	st *state
}

func (r *auditRepository) Append(_ context.Context, entry domain.AuditLogEntry) error {
	if err := r.st.checkWritable(); err != nil {
		return err
	}
	entry.Before = slices.Clone(entry.Before)
	entry.After = slices.Clone(entry.After)
	r.st.audit = append(r.st.audit, entry)
	return nil
}

func (r *auditRepository) List(_ context.Context, organizationID, resource, resourceID string) ([]domain.AuditLogEntry, error) {
	result := make([]domain.AuditLogEntry, 0)
	for _, entry := range r.st.audit {
		if entry.OrganizationID != organizationID || entry.Resource != resource {
			continue
		}
		if resourceID != "" && entry.ResourceID != resourceID {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

type notificationRepository struct {
	st *state
}

func (r *notificationRepository) Append(_ context.Context, n domain.Notification) error {
	if err := r.st.checkWritable(); err != nil {
		return err
	}
	r.st.notifications = append(r.st.notifications, n)
	return nil
}

// ListByRecipient возвращает уведомления получателя, новые первыми.
func (r *notificationRepository) ListByRecipient(_ context.Context, organizationID, recipientID string, limit int) ([]domain.Notification, error) {
	result := make([]domain.Notification, 0)
	for i := len(r.st.notifications) - 1; i >= 0; i-- {
		n := r.st.notifications[i]
		if n.OrganizationID != organizationID || n.RecipientID != recipientID {
			continue
		}
		result = append(result, n)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
