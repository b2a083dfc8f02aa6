package alert

import (
	"context"

	"go.uber.org/zap"

	"github.com/kjstillabower/aqi-alert-service/internal/aqi"
	"github.com/kjstillabower/aqi-alert-service/internal/models"
)

// Notifier delivers one alert to one subscriber. Send is fire-and-forget
// from the dispatcher's perspective: failures are recorded, never retried
// within a sweep.
type Notifier interface {
	Send(ctx context.Context, sub models.Subscriber, city string, aqiValue int) error
}

// LogNotifier writes alerts to the structured log. This is the transport of
// last resort when no SMS/queue transport is configured; downstream tooling
// can still scrape the entries.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send implements Notifier.
func (n *LogNotifier) Send(ctx context.Context, sub models.Subscriber, city string, aqiValue int) error {
	category := aqi.CategoryFor(aqiValue)
	n.logger.Warn("air quality alert",
		zap.Int64("subscriber_id", sub.ID),
		zap.String("phone", sub.Phone),
		zap.String("city", city),
		zap.Int("aqi", aqiValue),
		zap.Int("threshold", sub.Threshold),
		zap.String("category", string(category)),
		zap.String("advisory", category.Advisory()),
	)
	return nil
}
