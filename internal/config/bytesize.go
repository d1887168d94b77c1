package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte count that supports human-readable parsing for the
// cache size caps ("512MB", "2GB", or raw byte counts).
type ByteSize int64

// Byte size multipliers (binary, matching how the cache caps are documented
// in megabytes).
const (
	KB ByteSize = 1024
	MB          = 1024 * KB
	GB          = 1024 * MB
)

// ParseByteSize parses a human-readable byte size string.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	upper := strings.ToUpper(s)
	multiplier := ByteSize(1)
	numPart := upper

	switch {
	case strings.HasSuffix(upper, "GB"):
		multiplier = GB
		numPart = upper[:len(upper)-2]
	case strings.HasSuffix(upper, "MB"):
		multiplier = MB
		numPart = upper[:len(upper)-2]
	case strings.HasSuffix(upper, "KB"):
		multiplier = KB
		numPart = upper[:len(upper)-2]
	case strings.HasSuffix(upper, "B"):
		numPart = upper[:len(upper)-1]
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(numPart), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative byte size %q", s)
	}
	return ByteSize(n * float64(multiplier)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for Viper support.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Accepts either a string
// ("512MB") or a raw byte count.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*b = ByteSize(n)
		return nil
	}
	return b.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// Int64 returns the raw byte count.
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// String returns a human-readable representation.
func (b ByteSize) String() string {
	switch {
	case b >= GB && b%GB == 0:
		return fmt.Sprintf("%dGB", b/GB)
	case b >= MB && b%MB == 0:
		return fmt.Sprintf("%dMB", b/MB)
	case b >= KB && b%KB == 0:
		return fmt.Sprintf("%dKB", b/KB)
	default:
		return strconv.FormatInt(int64(b), 10)
	}
}
