package quote

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultExpiryInterval  = time.Minute
	defaultExpiryBatchSize = 100
)

var (
	quoteExpiryRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_quote_expiry_runs_total",
		Help: "Total number of quote expiry sweeps grouped by result.",
	}, []string{"result"})
	quoteExpiryExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_quote_expiry_expired_total",
		Help: "Total number of quotes moved to expired by the sweep.",
	})
)

// Expirer переводит просроченные котировки в expired порцией не больше limit.
type Expirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// ExpiryOptions задает параметры воркера.
type ExpiryOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
}

// ExpiryOption настраивает ExpiryWorker.
type ExpiryOption func(*ExpiryOptions)

// WithExpiryLogger задает logger воркера.
func WithExpiryLogger(logger *log.Entry) ExpiryOption {
	return func(opts *ExpiryOptions) { opts.Logger = logger }
}

// WithExpiryInterval задает интервал между проходами.
func WithExpiryInterval(interval time.Duration) ExpiryOption {
	return func(opts *ExpiryOptions) { opts.Interval = interval }
}

// WithExpiryBatchSize задает размер порции.
func WithExpiryBatchSize(size int) ExpiryOption {
	return func(opts *ExpiryOptions) { opts.BatchSize = size }
}

// ExpiryWorker периодически закрывает sent/viewed котировки с истёкшим сроком,
// даже если получатель так и не попытался их принять.
type ExpiryWorker struct {
	expirer   Expirer
	logger    *log.Entry
	interval  time.Duration
	batchSize int
}

// NewExpiryWorker создает воркер.
func NewExpiryWorker(expirer Expirer, options ...ExpiryOption) *ExpiryWorker {
	opts := ExpiryOptions{
		Interval:  defaultExpiryInterval,
		BatchSize: defaultExpiryBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "quote-expiry-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultExpiryInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultExpiryBatchSize
	}
	return &ExpiryWorker{
		expirer:   expirer,
		logger:    opts.Logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
	}
}

// Run выполняет проходы до отмены ctx.
func (w *ExpiryWorker) Run(ctx context.Context) {
	if w.expirer == nil {
		w.logger.Warn("quote expiry worker is disabled: expirer is nil")
		return
	}

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	expired, err := w.Sweep(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		quoteExpiryRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("quote expiry sweep failed")
		return
	}

	quoteExpiryRunsTotal.WithLabelValues("ok").Inc()
	if expired > 0 {
		w.logger.WithField("expired", expired).Info("quote expiry sweep completed")
	}
}

// Sweep закрывает все просроченные котировки порциями batchSize.
func (w *ExpiryWorker) Sweep(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		expired, err := w.expirer.ExpireOverdue(ctx, w.batchSize)
		if err != nil {
			return total, err
		}
		total += expired
		if expired > 0 {
			quoteExpiryExpiredTotal.Add(float64(expired))
		}
		if expired < w.batchSize {
			return total, nil
		}
	}
}
