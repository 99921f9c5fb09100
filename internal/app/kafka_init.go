package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	"github.com/vladislavdragonenkov/eshop-basket/internal/messaging/kafka"
)

// eventPublishers — Kafka producer и publisher'ы outbox.
// Нулевое значение означает, что Kafka не настроена и события копятся в outbox.
type eventPublishers struct {
	producer *kafka.Producer
	outbox   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
}

// connectKafka подключается к брокерам из cfg. Пустой список брокеров ошибкой не считается.
func connectKafka(cfg Config, logger *log.Entry) (eventPublishers, error) {
	brokers := kafka.SplitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		return eventPublishers{}, nil
	}

	producer, err := kafka.NewProducer(brokers, kafka.WithProducerLogger(logger.WithField("component", "kafka-producer")))
	if err != nil {
		return eventPublishers{}, fmt.Errorf("connect kafka %v: %w", brokers, err)
	}

	logger.WithField("brokers", brokers).Info("kafka producer connected")
	return newEventPublishers(producer, cfg), nil
}

func newEventPublishers(producer *kafka.Producer, cfg Config) eventPublishers {
	publishers := eventPublishers{
		producer: producer,
		outbox:   kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
	}
	if cfg.KafkaDLQTopic != "" {
		publishers.dlq = kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic, cfg.KafkaTopic)
	}
	return publishers
}

func (p eventPublishers) close(logger *log.Entry) {
	if p.producer == nil {
		return
	}
	if err := p.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
