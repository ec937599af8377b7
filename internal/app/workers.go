package app

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/service/quote"
)

const workerShutdownTimeout = 5 * time.Second

// backgroundWorkers запускает фоновые циклы сервиса с общей отменой.
type backgroundWorkers struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startWorkers запускает очистку idempotency-ключей, истечение котировок
// и, при наличии продюсера, публикацию outbox в Kafka.
func startWorkers(ctx context.Context, cfg Config, deps *runtimeDependencies, quotes *quote.Service, producer *kafka.Producer, logger *log.Entry) *backgroundWorkers {
	workerCtx, cancel := context.WithCancel(ctx)

	var runners []func(context.Context)

	runners = append(runners, idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	).Run)

	runners = append(runners, quote.NewExpiryWorker(quotes,
		quote.WithExpiryLogger(logger.WithField("component", "quote-expiry-worker")),
		quote.WithExpiryInterval(cfg.QuoteExpiryInterval),
		quote.WithExpiryBatchSize(cfg.QuoteExpiryBatchSize),
	).Run)

	if producer != nil {
		runners = append(runners, outbox.NewWorker(deps.outboxRepo, kafka.NewOutboxPublisher(producer, ""),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		).Run)
	} else {
		logger.Warn("kafka is not configured: outbox messages stay pending until a publisher is available")
	}

	var wg sync.WaitGroup
	for _, run := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(workerCtx)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	return &backgroundWorkers{cancel: cancel, done: done}
}

// shutdownWorkers отменяет воркеры и ждёт их завершения не дольше workerShutdownTimeout.
func shutdownWorkers(w *backgroundWorkers, logger *log.Entry) {
	if w == nil {
		return
	}
	if w.cancel != nil {
		w.cancel()
	}
	if w.done == nil {
		return
	}
	select {
	case <-w.done:
		logger.Info("background workers stopped")
	case <-time.After(workerShutdownTimeout):
		logger.Warn("background workers did not stop in time")
	}
}
