package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/eshop-basket/internal/messaging/kafka"
)

func TestConnectKafka(t *testing.T) {
	logger := log.WithField("test", "kafka")

	testCases := []struct {
		name    string
		brokers string
		wantErr bool
	}{
		{name: "not configured", brokers: ""},
		{name: "only separators", brokers: " , ,"},
		{name: "unreachable broker", brokers: "127.0.0.1:1", wantErr: true},
		{name: "unreachable list with spaces", brokers: "127.0.0.1:1, 127.0.0.1:2", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.KafkaBrokers = tc.brokers

			events, err := connectKafka(cfg, logger)
			if tc.wantErr {
				require.ErrorContains(t, err, "connect kafka")
			} else {
				require.NoError(t, err)
			}
			require.Nil(t, events.producer)
			require.Nil(t, events.outbox, "outbox worker stays disabled without a producer")
			require.Nil(t, events.dlq)

			// Закрытие нулевого значения ничего не делает.
			events.close(logger)
		})
	}
}

func TestNewEventPublishers_Topics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KafkaTopic = "orders.v2"
	cfg.KafkaDLQTopic = "orders.v2.dlq"

	events := newEventPublishers(nil, cfg)
	require.Equal(t, "orders.v2", events.outbox.(*kafka.TopicPublisher).Topic())
	require.Equal(t, "orders.v2.dlq", events.dlq.(*kafka.TopicPublisher).Topic())

	cfg.KafkaDLQTopic = ""
	require.Nil(t, newEventPublishers(nil, cfg).dlq, "dlq is optional")
}
