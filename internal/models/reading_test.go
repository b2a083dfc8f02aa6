package models

import (
	"encoding/json"
	"testing"
)

// TestReading_MarshalFlattensConcentrations verifies that the embedded
// pollutant fields serialize at the top level of the reading object.
func TestReading_MarshalFlattensConcentrations(t *testing.T) {
	r := Reading{
		City:           "delhi",
		AQI:            112,
		Category:       "Unhealthy for Sensitive Groups",
		Concentrations: Concentrations{PM25: Float(40)},
	}
	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := out["pm25"]; !ok {
		t.Errorf("pm25 not at top level: %s", raw)
	}
	if _, ok := out["Concentrations"]; ok {
		t.Errorf("Concentrations nested instead of flattened: %s", raw)
	}
}
