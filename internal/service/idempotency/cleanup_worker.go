package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

var (
	idempotencyCleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_idempotency_cleanup_runs_total",
		Help: "Total number of idempotency key cleanup runs grouped by result.",
	}, []string{"result"})
	idempotencyCleanupDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_idempotency_cleanup_deleted_total",
		Help: "Expired idempotency keys removed, by operation (checkout_cart, accept_quote) and final status.",
	}, []string{"operation", "status"})
	idempotencyCleanupAbandoned = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_idempotency_cleanup_last_abandoned",
		Help: "Keys still in processing when their TTL ran out during the last cleanup run.",
	})
)

// CleanupReport описывает один проход очистки.
type CleanupReport struct {
	Deleted int
	// ByOperation считает удалённые ключи по операции: checkout_cart, accept_quote.
	ByOperation map[string]int
	// Abandoned — ключи, оставшиеся в processing: оформление оборвалось,
	// так и не сохранив ответ.
	Abandoned int
}

func (r *CleanupReport) add(keys []domain.ExpiredIdempotencyKey) {
	if r.ByOperation == nil {
		r.ByOperation = make(map[string]int)
	}
	for _, key := range keys {
		op := domain.IdempotencyOperation(key.Key)
		r.ByOperation[op]++
		r.Deleted++
		if key.Status == domain.IdempotencyStatusProcessing {
			r.Abandoned++
		}
		idempotencyCleanupDeletedTotal.WithLabelValues(op, string(key.Status)).Inc()
	}
}

// CleanupOptions задает параметры воркера очистки idempotency ключей.
type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithBatchSize задает размер batch для одного удаления.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Now = now
	}
}

// CleanupWorker периодически удаляет просроченные ключи оформления корзины
// и принятия котировок. После TTL тот же Idempotency-Key снова запускает операцию.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewCleanupWorker создает воркер очистки idempotency ключей.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "idempotency-cleanup-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &CleanupWorker{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		now:       opts.Now,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	w.cleanup(ctx, w.now().UTC())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx, w.now().UTC())
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context, before time.Time) {
	report, err := w.DeleteExpired(ctx, before)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		idempotencyCleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).WithField("deleted", report.Deleted).Warn("idempotency cleanup run failed")
		return
	}

	idempotencyCleanupRunsTotal.WithLabelValues("ok").Inc()
	idempotencyCleanupAbandoned.Set(float64(report.Abandoned))
	if report.Deleted == 0 {
		return
	}

	fields := log.Fields{"deleted": report.Deleted}
	for op, n := range report.ByOperation {
		fields[op] = n
	}
	entry := w.logger.WithFields(fields)
	if report.Abandoned > 0 {
		entry.WithField("abandoned", report.Abandoned).Warn("expired idempotency keys were never completed")
		return
	}
	entry.Info("idempotency cleanup completed")
}

// DeleteExpired удаляет все записи с ttl <= before порциями batchSize.
// При ошибке отчёт содержит то, что успели удалить до неё.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (CleanupReport, error) {
	if before.IsZero() {
		before = w.now().UTC()
	}

	var report CleanupReport
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		keys, err := w.repo.DeleteExpired(ctx, before, w.batchSize)
		if err != nil {
			return report, err
		}
		report.add(keys)

		if len(keys) < w.batchSize {
			return report, nil
		}
	}
}
