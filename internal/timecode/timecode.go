// Package timecode converts between HH:MM:SS.mmm timestamps and seconds.
package timecode

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidTimestamp is returned by ParseStrict for unparsable input.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Parse converts a timestamp such as "01:02:03.450", "02:03.4" or "7" to
// seconds. Hour and minute segments are optional. Unparsable input yields 0
// and is logged; use ParseStrict when the caller needs to reject it.
func Parse(s string) float64 {
	sec, err := ParseStrict(s)
	if err != nil {
		slog.Warn("unparsable timestamp, using 0",
			slog.String("timestamp", s),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return sec
}

// ParseStrict is Parse with an error instead of the soft fallback.
// A comma is accepted as the millisecond separator.
func ParseStrict(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q has too many segments", ErrInvalidTimestamp, s)
	}

	last := parts[len(parts)-1]
	whole, frac, hasFrac := strings.Cut(last, ".")

	secs, err := segment(whole)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidTimestamp, s, err)
	}

	var millis int
	if hasFrac {
		millis, err = milliseconds(frac)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidTimestamp, s, err)
		}
	}

	var hours, minutes int
	switch len(parts) {
	case 3:
		if hours, err = segment(parts[0]); err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidTimestamp, s, err)
		}
		if minutes, err = segment(parts[1]); err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidTimestamp, s, err)
		}
	case 2:
		if minutes, err = segment(parts[0]); err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidTimestamp, s, err)
		}
	}

	total := hours*3600_000 + minutes*60_000 + secs*1000 + millis
	return float64(total) / 1000, nil
}

// Format renders seconds as zero-padded HH:MM:SS.mmm. Negative values clamp to 0.
func Format(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	ms := total % 1000
	total /= 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", total/3600, (total%3600)/60, total%60, ms)
}

func segment(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("segment %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("segment %q is negative", s)
	}
	return n, nil
}

// milliseconds pads or truncates the fractional digits to exactly three.
func milliseconds(frac string) (int, error) {
	if len(frac) > 3 {
		frac = frac[:3]
	}
	for len(frac) < 3 {
		frac += "0"
	}
	n, err := strconv.Atoi(frac)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("milliseconds %q are not numeric", frac)
	}
	return n, nil
}
