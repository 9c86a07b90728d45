package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/aswathylr-builds/storefront-payments/models"
)

// Event types emitted on the payments topic.
const (
	TypeStatusChanged = "payment.status_changed"
	TypeConfirmed     = "payment.confirmed"
)

// PaymentEvent is the JSON payload published for order status changes.
type PaymentEvent struct {
	Type       string `json:"type"`
	OrderID    string `json:"order_id"`
	PayID      string `json:"pay_id,omitempty"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at"`
}

// Publisher emits payment events to Kafka. A nil producer disables
// publishing, so the engine runs unchanged without a broker.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewPublisher wraps a producer for the given topic.
func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// NewSyncProducer builds a producer that waits for full acknowledgement.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	return sarama.NewSyncProducer(brokers, config)
}

// PublishStatusChange emits an event for an applied order transition.
// Confirmed orders additionally classify as payment.confirmed so
// downstream consumers can key on the successful outcome.
func (p *Publisher) PublishStatusChange(orderID, payID string, status models.OrderStatus) error {
	if p == nil || p.producer == nil {
		return nil
	}
	eventType := TypeStatusChanged
	if status == models.StatusConfirmed {
		eventType = TypeConfirmed
	}
	ev := PaymentEvent{
		Type:       eventType,
		OrderID:    orderID,
		PayID:      payID,
		Status:     string(status),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode payment event: %w", err)
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(orderID),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("failed to publish payment event: %w", err)
	}
	return nil
}
