package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

// ErrNotDLQMessage означает, что сообщение в DLQ не похоже на конверт outbox-воркера.
var ErrNotDLQMessage = errors.New("message is not an outbox dlq envelope")

// SplitBrokers разбирает список брокеров через запятую, пустые элементы отбрасываются.
func SplitBrokers(brokers string) []string {
	var result []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			result = append(result, broker)
		}
	}
	return result
}

// ParseDLQMessage восстанавливает исходное outbox-сообщение из значения, прочитанного из DLQ.
// Поля записи имеют приоритет над полями конверта.
func ParseDLQMessage(value []byte) (domain.OutboxMessage, domain.DeadLetter, error) {
	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return domain.OutboxMessage{}, domain.DeadLetter{}, fmt.Errorf("%w: %v", ErrNotDLQMessage, err)
	}
	if len(envelope.Payload) == 0 || string(envelope.Payload) == "null" {
		return domain.OutboxMessage{}, domain.DeadLetter{}, ErrNotDLQMessage
	}

	var record domain.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &record); err != nil {
		return domain.OutboxMessage{}, domain.DeadLetter{}, fmt.Errorf("decode dlq record: %w", err)
	}
	if len(record.Payload) == 0 {
		return domain.OutboxMessage{}, record, fmt.Errorf("dlq record %q has no original payload", envelope.ID)
	}

	msg := domain.OutboxMessage{
		ID:            firstNonEmpty(record.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(record.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(record.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(record.EventType, string(envelope.EventType)),
		Payload:       append([]byte(nil), record.Payload...),
	}
	return msg, record, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
