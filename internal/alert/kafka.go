package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/kjstillabower/aqi-alert-service/internal/aqi"
	"github.com/kjstillabower/aqi-alert-service/internal/models"
)

// alertEvent is the wire format published to the alert topic. Downstream
// workers (SMS gateway, e-mail sender) consume these.
type alertEvent struct {
	SubscriberID int64     `json:"subscriberId"`
	Phone        string    `json:"phone,omitempty"`
	City         string    `json:"city"`
	AQI          int       `json:"aqi"`
	Threshold    int       `json:"threshold"`
	Category     string    `json:"category"`
	Advisory     string    `json:"advisory"`
	Timestamp    time.Time `json:"timestamp"`
}

// KafkaNotifier publishes alert events to a Kafka topic, keyed by city so
// one city's alerts stay ordered on a single partition.
type KafkaNotifier struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// NewKafkaNotifier creates a producer for the alert topic.
func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaNotifier{writer: w, logger: logger}
}

// Send implements Notifier.
func (n *KafkaNotifier) Send(ctx context.Context, sub models.Subscriber, city string, aqiValue int) error {
	category := aqi.CategoryFor(aqiValue)
	event := alertEvent{
		SubscriberID: sub.ID,
		Phone:        sub.Phone,
		City:         city,
		AQI:          aqiValue,
		Threshold:    sub.Threshold,
		Category:     string(category),
		Advisory:     category.Advisory(),
		Timestamp:    time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize alert event: %w", err)
	}
	return n.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(city),
		Value: value,
	})
}

// Close flushes and closes the underlying writer. Call during shutdown.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
