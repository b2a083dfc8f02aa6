package service

import (
	"math/rand"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/aqi-alert-service/internal/aqi"
	"github.com/kjstillabower/aqi-alert-service/internal/models"
)

// DefaultBaseline is the synthesized AQI baseline for cities without a
// configured one.
const DefaultBaseline = 75

// jitterFraction bounds the random variation applied to the baseline (±15%).
const jitterFraction = 0.15

// Synthesizer produces plausible substitute readings for cities when neither
// cache, store, nor upstream can supply one. It guarantees Fetch liveness
// under total upstream failure, trading precision for availability. The
// random source is injected so tests can pin the jitter.
type Synthesizer struct {
	mu        sync.Mutex // rand.Rand is not safe for concurrent use
	baselines map[string]int
	rng       *rand.Rand
	clock     clockwork.Clock
}

// NewSynthesizer creates a Synthesizer. baselines maps normalized city names
// to baseline AQI values; nil src seeds from wall time, nil clock uses real time.
func NewSynthesizer(baselines map[string]int, src rand.Source, clock clockwork.Clock) *Synthesizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if src == nil {
		src = rand.NewSource(clock.Now().UnixNano())
	}
	return &Synthesizer{
		baselines: baselines,
		rng:       rand.New(src),
		clock:     clock,
	}
}

// Synthesize builds a fallback reading for city: the configured baseline AQI
// with bounded jitter, and pollutant values estimated from that AQI with the
// same ratios the reference data set exhibits.
func (s *Synthesizer) Synthesize(city string) models.Reading {
	base, ok := s.baselines[city]
	if !ok {
		base = DefaultBaseline
	}

	s.mu.Lock()
	variation := 1 - jitterFraction + s.rng.Float64()*2*jitterFraction
	s.mu.Unlock()

	value := int(float64(base) * variation)
	if value < 1 {
		value = 1
	}

	f := float64(value)
	return models.Reading{
		City:     city,
		AQI:      value,
		Category: string(aqi.CategoryFor(value)),
		Concentrations: models.Concentrations{
			PM25: models.Float(f * 0.6),
			PM10: models.Float(f * 0.8),
			NO2:  models.Float(f * 0.4),
			SO2:  models.Float(f * 0.2),
			CO:   models.Float(f * 0.03),
			O3:   models.Float(f * 0.5),
		},
		Timestamp: s.clock.Now(),
		Source:    models.SourceFallback,
	}
}
