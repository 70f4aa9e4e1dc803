package timecode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"00:00:12.000", 12},
		{"00:00:14.5", 14.5},
		{"01:02:03.450", 3723.45},
		{"02:03", 123},
		{"02:03.25", 123.25},
		{"7", 7},
		{"7.1234", 7.123},
		{"00:01:00,500", 60.5},
		{" 00:00:01.000 ", 1},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, Parse(tt.in), 1e-9)
		})
	}
}

func TestParse_SoftFailure(t *testing.T) {
	for _, in := range []string{"", "abc", "1:2:3:4", "00:xx:01", "00:00:01.ab", "-5"} {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, 0.0, Parse(in))
			_, err := ParseStrict(in)
			assert.ErrorIs(t, err, ErrInvalidTimestamp)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "00:00:00.000", Format(0))
	assert.Equal(t, "00:00:12.500", Format(12.5))
	assert.Equal(t, "01:02:03.450", Format(3723.45))
	assert.Equal(t, "23:59:59.999", Format(86399.999))
	assert.Equal(t, "00:00:00.000", Format(-3))
}

func TestRoundTrip(t *testing.T) {
	for ms := 0; ms <= 86_399_999; ms += 7_919 {
		x := float64(ms) / 1000
		got, err := ParseStrict(Format(x))
		require.NoError(t, err)
		if math.Abs(got-x) > 0.001 {
			t.Fatalf("round trip of %v gave %v", x, got)
		}
	}
	got, err := ParseStrict(Format(86399.999))
	require.NoError(t, err)
	assert.InDelta(t, 86399.999, got, 0.001)
}
