package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/app"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

const (
	envLogLevel  = "MARKETPLACE_LOG_LEVEL"
	envLogFormat = "MARKETPLACE_LOG_FORMAT"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
// Неизвестный уровень оставляет info и возвращает предупреждение.
func setupLogger(level, format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	log.SetLevel(log.InfoLevel)
	if strings.TrimSpace(level) == "" {
		return ""
	}
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return err.Error()
	}
	log.SetLevel(parsed)
	return ""
}

func main() {
	if warning := setupLogger(os.Getenv(envLogLevel), os.Getenv(envLogFormat)); warning != "" {
		log.WithField("env", envLogLevel).Warn(warning)
	}

	cfg, warnings := app.LoadConfigFromEnv()
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.LogFields()).WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"currency":     cfg.Currency,
	}).Info("запускаем marketplace")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("marketplace остановлен")
}
