package models

import "time"

// Source identifies where a Reading came from within the fallback chain.
type Source string

const (
	SourceCache    Source = "cache"
	SourceStore    Source = "store"
	SourceUpstream Source = "upstream"
	SourceStale    Source = "stale"
	SourceFallback Source = "fallback"
)

// Concentrations holds raw pollutant measurements in µg/m³. Fields are
// pointers because the upstream source reports an arbitrary subset per city.
type Concentrations struct {
	PM25 *float64 `json:"pm25,omitempty"`
	PM10 *float64 `json:"pm10,omitempty"`
	NO2  *float64 `json:"no2,omitempty"`
	SO2  *float64 `json:"so2,omitempty"`
	CO   *float64 `json:"co,omitempty"`
	O3   *float64 `json:"o3,omitempty"`
}

// Reading is a single air-quality observation for a city. Immutable once
// constructed; AQI and Category are derived from the concentrations.
type Reading struct {
	City           string    `json:"city"`
	AQI            int       `json:"aqi"`
	Category       string    `json:"category"`
	Concentrations
	Timestamp      time.Time `json:"timestamp"`
	Source         Source    `json:"source,omitempty"`
	Stale          bool      `json:"stale,omitempty"` // served past its recency window
}

// Subscriber is a user monitoring one city with an AQI alert threshold.
// Owned by the external user-management system; read-only here.
type Subscriber struct {
	ID        int64  `json:"id"`
	City      string `json:"city"`
	Threshold int    `json:"threshold"`
	Phone     string `json:"phone,omitempty"`
}

// Alert outcome values recorded on AlertRecord.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// AlertRecord is the append-only record of one triggered alert evaluation.
type AlertRecord struct {
	ID           string    `json:"id"`
	SubscriberID int64     `json:"subscriberId"`
	City         string    `json:"city"`
	AQI          int       `json:"aqi"`
	Threshold    int       `json:"threshold"`
	Outcome      string    `json:"outcome"`
	Timestamp    time.Time `json:"timestamp"`
}

// Float is a convenience for building optional concentration values.
func Float(v float64) *float64 { return &v }
