// Command dlq-replay перечитывает order-события из DLQ и публикует их обратно в основной топик.
// По умолчанию работает в режиме dry-run и только логирует кандидатов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	"github.com/vladislavdragonenkov/eshop-basket/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	envKafkaBrokers    = "ESHOP_KAFKA_BROKERS"
)

type options struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

type offsetClient interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return a.consumer.ConsumePartition(topic, partition, offset)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	opts, err := parseOptions(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

// parseOptions разбирает флаги; брокеры берутся из ESHOP_KAFKA_BROKERS, если -brokers не задан.
func parseOptions(args []string, lookup func(string) (string, bool)) (options, error) {
	var (
		opts       options
		brokersRaw string
	)
	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: "+envKafkaBrokers+")")
	fs.StringVar(&opts.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to read")
	fs.StringVar(&opts.targetTopic, "target-topic", kafka.TopicOrderEvents, "topic to publish replayed events to")
	fs.IntVar(&opts.limit, "limit", defaultReplayLimit, "max number of DLQ messages to scan")
	fs.BoolVar(&opts.execute, "execute", false, "publish events; default is dry-run")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw, _ = lookup(envKafkaBrokers)
	}
	opts.brokers = kafka.SplitBrokers(brokersRaw)
	opts.sourceTopic = strings.TrimSpace(opts.sourceTopic)
	opts.targetTopic = strings.TrimSpace(opts.targetTopic)

	switch {
	case len(opts.brokers) == 0:
		return options{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	case opts.sourceTopic == "":
		return options{}, errors.New("source-topic is required")
	case opts.targetTopic == "":
		return options{}, errors.New("target-topic is required")
	case opts.sourceTopic == opts.targetTopic:
		return options{}, errors.New("source-topic and target-topic must differ")
	case opts.limit <= 0:
		return options{}, errors.New("limit must be positive")
	case opts.idleTimeout <= 0:
		return options{}, errors.New("idle-timeout must be positive")
	}
	return opts, nil
}

func run(ctx context.Context, opts options) error {
	config := sarama.NewConfig()
	config.ClientID = "eshop-dlq-replay"
	config.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, config)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer func() { _ = client.Close() }()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	var publisher domain.OutboxPublisher
	if opts.execute {
		producer, err := kafka.NewProducer(opts.brokers, kafka.WithClientID("eshop-dlq-replay"))
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
		publisher = kafka.NewOutboxPublisher(producer, opts.targetTopic)
	}

	r := &replayer{
		client:    client,
		source:    saramaConsumerAdapter{consumer: consumer},
		publisher: publisher,
		opts:      opts,
		logger:    log.WithField("component", "dlq-replay"),
	}
	_, err = r.run(ctx)
	return err
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// replayer читает партиции DLQ от самого старого offset до offset, актуального на момент старта.
// Без publisher сообщения только логируются.
type replayer struct {
	client    offsetClient
	source    partitionSource
	publisher domain.OutboxPublisher
	opts      options
	logger    *log.Entry
}

func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats

	mode := "dry-run"
	if r.publisher != nil {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"source_topic": r.opts.sourceTopic,
		"target_topic": r.opts.targetTopic,
		"limit":        r.opts.limit,
		"mode":         mode,
	}).Info("starting dlq replay")

	partitions, err := r.client.Partitions(r.opts.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.opts.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := r.opts.limit - total.scanned
		if remaining <= 0 {
			break
		}
		stats, err := r.replayPartition(ctx, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  total.scanned,
		"replayed": total.replayed,
		"skipped":  total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *replayer) replayPartition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.opts.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.opts.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	pc, err := r.source.ConsumePartition(r.opts.sourceTopic, partition, oldest)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.opts.idleTimeout)
	defer idle.Stop()

	errs := pc.Errors()
	for stats.scanned < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case consumerErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.opts.idleTimeout)

			stats.scanned++
			if err := r.replay(ctx, msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}
	return stats, nil
}

func (r *replayer) replay(ctx context.Context, msg *sarama.ConsumerMessage, stats *replayStats) error {
	fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

	event, record, err := kafka.ParseDLQMessage(msg.Value)
	if err != nil {
		stats.skipped++
		r.logger.WithError(err).WithFields(fields).Warn("skip unsupported dlq message")
		return nil
	}
	fields["outbox_id"] = event.ID
	fields["event_type"] = event.EventType

	if r.publisher == nil {
		stats.replayed++
		r.logger.WithFields(fields).WithField("publish_error", record.PublishError).Info("dlq replay candidate")
		return nil
	}

	if err := r.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("replay outbox message %s: %w", event.ID, err)
	}
	stats.replayed++
	r.logger.WithFields(fields).Debug("dlq message replayed")
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
