package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxRepository пишет в состояние текущей транзакции.
type outboxRepository struct {
	st *state
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := r.st.checkWritable(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	now := time.Now().UTC()
	r.st.outbox[msg.ID] = outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	}
	r.st.outboxOrder = append(r.st.outboxOrder, msg.ID)
	return msg, nil
}

// PullPending возвращает до limit сообщений `pending` в порядке постановки.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.OutboxMessage, 0, limit)
	for _, id := range r.st.outboxOrder {
		rec := r.st.outbox[id]
		if rec.status != outboxStatusPending {
			continue
		}
		result = append(result, rec.msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *outboxRepository) Stats(context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	for _, id := range r.st.outboxOrder {
		rec := r.st.outbox[id]
		if rec.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *outboxRepository) mark(id, status string) error {
	if err := r.st.checkWritable(); err != nil {
		return err
	}
	record, ok := r.st.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	r.st.outbox[id] = record
	return nil
}

// standaloneOutbox выполняет каждую операцию отдельной транзакцией хранилища.
type standaloneOutbox struct {
	store *Store
}

func (o *standaloneOutbox) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	var out domain.OutboxMessage
	err := o.store.update(ctx, func(st *state) error {
		var err error
		out, err = (&outboxRepository{st: st}).Enqueue(ctx, msg)
		return err
	})
	return out, err
}

func (o *standaloneOutbox) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	err := o.store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		out, err = repos.Outbox.PullPending(ctx, limit)
		return err
	})
	return out, err
}

func (o *standaloneOutbox) Stats(ctx context.Context) (domain.OutboxStats, error) {
	var out domain.OutboxStats
	err := o.store.Read(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		out, err = repos.Outbox.Stats(ctx)
		return err
	})
	return out, err
}

func (o *standaloneOutbox) MarkSent(ctx context.Context, id string) error {
	return o.store.update(ctx, func(st *state) error {
		return (&outboxRepository{st: st}).MarkSent(ctx, id)
	})
}

func (o *standaloneOutbox) MarkFailed(ctx context.Context, id string) error {
	return o.store.update(ctx, func(st *state) error {
		return (&outboxRepository{st: st}).MarkFailed(ctx, id)
	})
}

var (
	_ domain.OutboxRepository = (*outboxRepository)(nil)
	_ domain.OutboxRepository = (*standaloneOutbox)(nil)
)
