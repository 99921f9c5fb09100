package kafka

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
)

func TestParseDLQMessage(t *testing.T) {
	original := domain.OutboxMessage{
		ID:            "outbox-7",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "7",
		EventType:     domain.EventTypeOrderCreated,
		Payload:       []byte(`{"order_id":7}`),
	}
	record, err := json.Marshal(domain.NewDeadLetter(original, errors.New("broker down"), time.Now()))
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	letter := original
	letter.Payload = record
	value, err := json.Marshal(NewEnvelope(letter, time.Now()))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	msg, parsed, err := ParseDLQMessage(value)
	if err != nil {
		t.Fatalf("parse dlq message: %v", err)
	}
	if msg.ID != "outbox-7" || msg.AggregateID != "7" || msg.EventType != domain.EventTypeOrderCreated {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if string(msg.Payload) != `{"order_id":7}` {
		t.Fatalf("unexpected payload %s", msg.Payload)
	}
	if parsed.PublishError != "broker down" {
		t.Fatalf("expected publish error to be kept, got %q", parsed.PublishError)
	}
}

func TestParseDLQMessage_Rejects(t *testing.T) {
	testCases := []struct {
		name   string
		value  string
		notDLQ bool
	}{
		{name: "not json", value: "plain text", notDLQ: true},
		{name: "null payload", value: `{"id":"x","payload":null}`, notDLQ: true},
		{name: "record without original payload", value: `{"id":"x","payload":{"outbox_id":"x"}}`},
		{name: "record is not an object", value: `{"id":"x","payload":[1,2]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseDLQMessage([]byte(tc.value))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrNotDLQMessage); got != tc.notDLQ {
				t.Fatalf("errors.Is(ErrNotDLQMessage) = %v, want %v (err=%v)", got, tc.notDLQ, err)
			}
		})
	}
}

func TestSplitBrokers(t *testing.T) {
	testCases := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: " , ", want: nil},
		{in: "a:9092", want: []string{"a:9092"}},
		{in: "a:9092, b:9092 ,", want: []string{"a:9092", "b:9092"}},
	}

	for _, tc := range testCases {
		got := SplitBrokers(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("SplitBrokers(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("SplitBrokers(%q) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
}
