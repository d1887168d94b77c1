package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Duration is a time.Duration that supports the CLI/config forms used by
// --timeout and the cache TTL settings:
//
//   - "30s", "2m", "5000ms" (standard Go format)
//   - "30" (bare number, interpreted as seconds)
//   - "7d" (days, 24 hours each)
//
// It implements encoding.TextUnmarshaler for Viper support and
// json.Unmarshaler for the JSON configuration file.
type Duration time.Duration

// ParseDuration parses a duration string in any of the supported forms.
func ParseDuration(s string) (Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	// Bare numbers mean seconds.
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(time.Duration(n * float64(time.Second))), nil
	}

	// Days are not part of Go's duration syntax.
	if last := s[len(s)-1]; last == 'd' {
		n, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return Duration(time.Duration(n * 24 * float64(time.Hour))), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return Duration(d), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for Viper support.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Bare JSON numbers mean seconds, matching the CLI form.
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*d = Duration(time.Duration(n * float64(time.Second)))
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns a human-readable representation, using days when the
// duration is an exact multiple of 24 hours.
func (d Duration) String() string {
	dur := time.Duration(d)
	if dur != 0 && dur%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", dur/(24*time.Hour))
	}
	return dur.String()
}
