// Package store defines the durable persistence boundary consumed by the
// monitoring core. The relational schema itself is an external concern; the
// core only depends on the operations below.
package store

import (
	"context"
	"time"

	"github.com/kjstillabower/aqi-alert-service/internal/models"
)

// Store is the persistence interface the core requires. Implementations must
// be safe for concurrent use.
type Store interface {
	// FindLatestByLocation returns the most recent reading for city, or
	// ok=false when the city has no history.
	FindLatestByLocation(ctx context.Context, city string) (models.Reading, bool, error)

	// Save persists one reading. Readings are immutable; Save always inserts.
	Save(ctx context.Context, r models.Reading) error

	// FindSubscribersForAlert returns the subscribers monitoring city whose
	// threshold is at or below aqi.
	FindSubscribersForAlert(ctx context.Context, city string, aqi int) ([]models.Subscriber, error)

	// FindSubscriberByID returns one subscriber, or ok=false when unknown.
	FindSubscriberByID(ctx context.Context, id int64) (models.Subscriber, bool, error)

	// SaveAlertRecord appends one alert record. Records are never mutated.
	SaveAlertRecord(ctx context.Context, rec models.AlertRecord) error

	// DeleteReadingsBefore removes readings observed before cutoff and
	// returns the number deleted. Used by the retention cleanup job.
	DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping reports whether the store is reachable. Used by readiness checks.
	Ping(ctx context.Context) error
}
