package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

// splitBrokers разбирает список брокеров через запятую, пропуская пустые элементы.
func splitBrokers(raw string) []string {
	var brokers []string
	for _, broker := range strings.Split(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// initKafkaProducer создаёт продюсер для публикации outbox.
// Пустой список брокеров означает, что Kafka не настроена: nil, nil.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	brokers := splitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    brokers,
		ClientID:   cfg.KafkaClientID,
		MaxRetries: cfg.OutboxMaxAttempts,
	})
	if err != nil {
		logger.WithError(err).WithField("brokers", brokers).Warn("failed to create kafka producer, outbox stays pending")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает продюсер, если он был создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
