package validation

import (
	"errors"
	"strings"
	"testing"
)

// TestValidateCityName_Valid accepts realistic city names including Unicode
// letters and common punctuation.
func TestValidateCityName_Valid(t *testing.T) {
	valid := []string{
		"Delhi",
		"New York",
		"São Paulo",
		"Val-d'Or",
		"St. Louis",
		"Washington, DC",
		"  Oslo  ",
	}
	for _, name := range valid {
		if err := ValidateCityName(name); err != nil {
			t.Errorf("ValidateCityName(%q) = %v, want nil", name, err)
		}
	}
}

// TestValidateCityName_Empty rejects empty and whitespace-only input.
func TestValidateCityName_Empty(t *testing.T) {
	for _, name := range []string{"", "   ", "\t"} {
		if err := ValidateCityName(name); !errors.Is(err, ErrCityEmpty) {
			t.Errorf("ValidateCityName(%q) = %v, want ErrCityEmpty", name, err)
		}
	}
}

// TestValidateCityName_TooLong rejects names over the length bound.
func TestValidateCityName_TooLong(t *testing.T) {
	name := strings.Repeat("a", 101)
	if err := ValidateCityName(name); !errors.Is(err, ErrCityTooLong) {
		t.Errorf("ValidateCityName(len=101) = %v, want ErrCityTooLong", err)
	}
	if err := ValidateCityName(strings.Repeat("a", 100)); err != nil {
		t.Errorf("ValidateCityName(len=100) = %v, want nil", err)
	}
}

// TestNormalizeCityName verifies trimming and lowercasing to the canonical form.
func TestNormalizeCityName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Delhi", "delhi"},
		{"  OSLO ", "oslo"},
		{"São Paulo", "são paulo"},
		{"delhi", "delhi"},
	}
	for _, tt := range tests {
		if got := NormalizeCityName(tt.in); got != tt.want {
			t.Errorf("NormalizeCityName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestValidateCityName_InvalidChars rejects control characters and symbols.
func TestValidateCityName_InvalidChars(t *testing.T) {
	invalid := []string{
		"delhi;drop table",
		"os\nlo",
		"a/b",
		"city_name",
	}
	for _, name := range invalid {
		if err := ValidateCityName(name); !errors.Is(err, ErrCityInvalidChars) {
			t.Errorf("ValidateCityName(%q) = %v, want ErrCityInvalidChars", name, err)
		}
	}
}
