package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Store реализует UnitOfWork в памяти для локальной разработки и тестов.
//
// Транзакция записи работает с копией состояния и подменяет его только при успехе,
// поэтому ошибка или паника внутри fn ничего не меняет. Транзакции записи
// выполняются строго по одной, что даёт сериализуемую изоляцию.
type Store struct {
	writeMu sync.Mutex

	mu    sync.RWMutex
	state *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Read выполняет fn над снимком состояния. Снимок не меняется после публикации,
// поэтому читатели не блокируют писателей.
func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state
	s.mu.RUnlock()

	return fn(ctx, newRepositories(snapshot.readOnly()))
}

// Write выполняет fn в транзакции. Изменения видны другим только после успешного возврата fn.
func (s *Store) Write(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return s.update(ctx, func(st *state) error {
		return fn(ctx, newRepositories(st))
	})
}

func (s *Store) update(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(working); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// PutProduct добавляет или заменяет товар каталога.
func (s *Store) PutProduct(p domain.Product) {
	_ = s.update(context.Background(), func(st *state) error {
		st.products[p.ID] = p
		return nil
	})
}

// PutVendor добавляет или заменяет поставщика.
func (s *Store) PutVendor(v domain.Vendor) {
	_ = s.update(context.Background(), func(st *state) error {
		st.vendors[v.ID] = v
		return nil
	})
}

// Outbox возвращает outbox-репозиторий, работающий вне пользовательских транзакций
// (для воркера публикации).
func (s *Store) Outbox() domain.OutboxRepository {
	return &standaloneOutbox{store: s}
}

// Ping всегда успешен: хранилище в памяти процесса.
func (s *Store) Ping(context.Context) error {
	return nil
}

var _ domain.UnitOfWork = (*Store)(nil)
