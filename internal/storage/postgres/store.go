package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
	opTimeout              = 3 * time.Second
)

// Коды ошибок PostgreSQL, которые превращаются в доменные.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Options задаёт параметры Store.
type Options struct {
	Logger    *log.Entry
	Isolation sql.IsolationLevel
}

// Option настраивает Store.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithIsolation задаёт уровень изоляции транзакций записи.
func WithIsolation(level sql.IsolationLevel) Option {
	return func(opts *Options) { opts.Isolation = level }
}

// ParseIsolation разбирает "read_committed" / "repeatable_read" / "serializable".
func ParseIsolation(raw string) (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "read_committed", "read-committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read", "repeatable-read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, fmt.Errorf("unsupported isolation level %q", raw)
	}
}

// Store — PostgreSQL-хранилище маркетплейса и его граница транзакций.
type Store struct {
	db        *sql.DB
	isolation sql.IsolationLevel
	logger    *log.Entry
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	opts := Options{Isolation: sql.LevelReadCommitted}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "postgres-store")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db, isolation: opts.Isolation, logger: opts.Logger}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Read выполняет fn на пуле соединений без транзакции; строки не блокируются.
func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}
	return fn(ctx, newRepositories(s.db, false))
}

// Write выполняет fn в одной транзакции. Ошибка fn или паника откатывают
// транзакцию; конфликты сериализации и deadlock возвращаются как ErrConcurrency.
func (s *Store) Write(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) (txErr error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.isolation})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		rollbackErr := tx.Rollback()
		if rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WithError(rollbackErr).Warn("rollback failed")
			if txErr != nil {
				txErr = errors.Join(txErr, fmt.Errorf("rollback: %w", rollbackErr))
			}
		}
	}()

	if err := fn(ctx, newRepositories(tx, true)); err != nil {
		return mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}

// querier покрывает *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scope — репозитории одной транзакции. locking включает FOR UPDATE / FOR SHARE.
type scope struct {
	q       querier
	locking bool
}

func (s scope) lock(clause string) string {
	if !s.locking {
		return ""
	}
	return " " + clause
}

func newRepositories(q querier, locking bool) domain.Repositories {
	sc := scope{q: q, locking: locking}
	return domain.Repositories{
		Carts:         &cartRepository{scope: sc},
		Quotes:        &quoteRepository{scope: sc},
		Orders:        &orderRepository{scope: sc},
		Catalog:       &catalogReader{scope: sc},
		Inventory:     &inventoryRepository{scope: sc},
		Sequences:     &sequenceAllocator{scope: sc},
		Audit:         &auditRepository{scope: sc},
		Notifications: &notificationRepository{scope: sc},
		Outbox:        &outboxRepository{q: q},
	}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// mapError превращает конфликты транзакций в ErrConcurrency, сохраняя исходную ошибку.
func mapError(err error) error {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %w", domain.ErrConcurrency, err)
	default:
		return err
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
