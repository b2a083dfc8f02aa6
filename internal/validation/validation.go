package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrCityEmpty is returned when a city name is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when a city name exceeds the maximum length.
var ErrCityTooLong = errors.New("city name too long")

// ErrCityInvalidChars is returned when a city name contains disallowed characters.
var ErrCityInvalidChars = errors.New("city name contains invalid characters")

const maxCityLen = 100

// NormalizeCityName canonicalizes a city name to the identity used for cache
// keys, store rows, and fallback baselines: trimmed and lowercased.
func NormalizeCityName(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// ValidateCityName trims the input, enforces the length bound (in runes), and
// restricts to allowed characters: letters (Unicode), digits, space, comma,
// period, apostrophe, hyphen. Case is not significant; NormalizeCityName
// produces the canonical form.
func ValidateCityName(input string) error {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return ErrCityEmpty
	}
	if len(r) > maxCityLen {
		return fmt.Errorf("%w: %q", ErrCityTooLong, s)
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return fmt.Errorf("%w: %q", ErrCityInvalidChars, s)
		}
	}
	return nil
}

// isAllowedCityRune returns true for letters (Unicode), digits, space, comma,
// period, apostrophe, hyphen.
func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '.', '\'', '-':
		return true
	}
	return false
}
