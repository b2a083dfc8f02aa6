// Package aqi converts pollutant concentrations into the standardized 0-500
// air quality index using US EPA breakpoint tables and piecewise-linear
// interpolation. Pure functions, no state.
package aqi

import (
	"errors"
	"math"
	"sort"

	"github.com/kjstillabower/aqi-alert-service/internal/models"
)

// Pollutant identifies one of the six tracked pollutants.
type Pollutant string

const (
	PM25 Pollutant = "pm25"
	PM10 Pollutant = "pm10"
	NO2  Pollutant = "no2"
	SO2  Pollutant = "so2"
	CO   Pollutant = "co"
	O3   Pollutant = "o3"
)

// ErrNoPollutants is returned by Compute when no concentration is present.
// This is the only input condition that propagates as an error; every other
// failure mode is absorbed by the ingestion fallback chain.
var ErrNoPollutants = errors.New("no pollutant concentrations supplied")

// MaxAQI is the index ceiling; concentrations above every breakpoint clamp here.
const MaxAQI = 500

// Result is the outcome of one index computation.
type Result struct {
	AQI      int
	Category Category
	Dominant Pollutant // pollutant contributing the maximum sub-index
}

// Compute derives the overall AQI from the present concentrations. The overall
// index is the maximum per-pollutant sub-index. Returns ErrNoPollutants when
// every field is nil.
func Compute(c models.Concentrations) (Result, error) {
	inputs := []struct {
		p Pollutant
		v *float64
	}{
		{PM25, c.PM25},
		{PM10, c.PM10},
		{NO2, c.NO2},
		{SO2, c.SO2},
		{CO, c.CO},
		{O3, c.O3},
	}

	found := false
	res := Result{}
	for _, in := range inputs {
		if in.v == nil {
			continue
		}
		sub := SubIndex(in.p, *in.v)
		if !found || sub > res.AQI {
			res.AQI = sub
			res.Dominant = in.p
		}
		found = true
	}
	if !found {
		return Result{}, ErrNoPollutants
	}
	res.Category = CategoryFor(res.AQI)
	return res, nil
}

// SubIndex computes the AQI contribution of a single pollutant concentration
// (µg/m³). Negative concentrations contribute zero. Concentrations above the
// last breakpoint segment return MaxAQI.
func SubIndex(p Pollutant, conc float64) int {
	t, ok := tables[p]
	if !ok || conc < 0 {
		return 0
	}
	v := conc * t.convert

	segs := t.segments
	if v > segs[len(segs)-1].cHigh {
		return MaxAQI
	}

	// Last segment whose lower bound is at or below v. Segments are sorted by
	// cLow, so gaps between table rows resolve to the segment just below.
	i := sort.Search(len(segs), func(i int) bool { return segs[i].cLow > v }) - 1
	if i < 0 {
		i = 0
	}
	s := segs[i]

	sub := float64(s.aqiHigh-s.aqiLow)/(s.cHigh-s.cLow)*(v-s.cLow) + float64(s.aqiLow)
	return clamp(int(math.Round(sub)))
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxAQI {
		return MaxAQI
	}
	return v
}
