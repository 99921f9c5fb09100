package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultClientID   = "eshop-basket"
	defaultMaxRetries = 5
)

// ErrProducerNotInitialized возвращается при отправке через nil Producer.
var ErrProducerNotInitialized = errors.New("kafka producer is not initialized")

type producerOptions struct {
	clientID   string
	maxRetries int
	logger     *log.Entry
}

// ProducerOption настраивает Producer.
type ProducerOption func(*producerOptions)

// WithClientID задаёт client.id, под которым producer виден брокеру.
func WithClientID(clientID string) ProducerOption {
	return func(opts *producerOptions) { opts.clientID = clientID }
}

// WithMaxRetries задаёт число повторов отправки внутри sarama.
func WithMaxRetries(retries int) ProducerOption {
	return func(opts *producerOptions) { opts.maxRetries = retries }
}

// WithProducerLogger задаёт logger producer'а.
func WithProducerLogger(logger *log.Entry) ProducerOption {
	return func(opts *producerOptions) { opts.logger = logger }
}

// Message — запись для отправки. Value сериализуется в JSON.
type Message struct {
	Topic     string
	Key       string
	Value     any
	Headers   map[string]string
	Timestamp time.Time
}

// Delivery — положение записанного сообщения в topic.
type Delivery struct {
	Partition int32
	Offset    int64
}

// Producer — синхронный идемпотентный Kafka producer.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// NewProducer подключается к brokers. Ошибка означает, что ни один брокер не ответил.
func NewProducer(brokers []string, options ...ProducerOption) (*Producer, error) {
	opts := producerOptions{clientID: defaultClientID, maxRetries: defaultMaxRetries}
	for _, option := range options {
		option(&opts)
	}

	producer, err := sarama.NewSyncProducer(brokers, newSaramaConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(producer, opts.logger), nil
}

// newSaramaConfig собирает конфигурацию для exactly-once на стороне producer'а:
// идемпотентность требует acks=all и одного запроса в полёте.
func newSaramaConfig(opts producerOptions) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = opts.clientID
	if config.ClientID == "" {
		config.ClientID = defaultClientID
	}
	config.Producer.Idempotent = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = max(opts.maxRetries, 1)
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Net.MaxOpenRequests = 1
	return config
}

func newProducer(producer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{producer: producer, logger: logger}
}

// Send отправляет сообщение и ждёт подтверждения брокера.
// SyncProducer не принимает ctx, отмена проверяется только перед отправкой.
func (p *Producer) Send(ctx context.Context, msg Message) (Delivery, error) {
	if p == nil || p.producer == nil {
		return Delivery{}, ErrProducerNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}

	value, err := json.Marshal(msg.Value)
	if err != nil {
		return Delivery{}, fmt.Errorf("marshal kafka message value: %w", err)
	}

	record := &sarama.ProducerMessage{
		Topic:     msg.Topic,
		Key:       sarama.StringEncoder(msg.Key),
		Value:     sarama.ByteEncoder(value),
		Timestamp: msg.Timestamp,
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	for _, name := range slices.Sorted(maps.Keys(msg.Headers)) {
		record.Headers = append(record.Headers, sarama.RecordHeader{Key: []byte(name), Value: []byte(msg.Headers[name])})
	}

	fields := log.Fields{"topic": msg.Topic, "key": msg.Key}
	partition, offset, err := p.producer.SendMessage(record)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("failed to send message to kafka")
		return Delivery{}, fmt.Errorf("send to %s: %w", msg.Topic, err)
	}

	p.logger.WithFields(fields).WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("message sent to kafka")
	return Delivery{Partition: partition, Offset: offset}, nil
}

// Close дожидается отправки буферизованных сообщений и закрывает соединения.
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
