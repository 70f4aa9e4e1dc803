package captions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSRT(t *testing.T) {
	doc := "\uFEFF1\r\n00:00:12,000 --> 00:00:14,500\r\nHello\r\nworld\r\n\r\n" +
		"2\n00:00:15.250 --> 00:00:16.000\nSecond line\n\n" +
		"3\nnot a timing line\nignored\n\n" +
		"4\n1:02:03,4 --> 1:02:05,40\nShort fractions\n"

	got, err := ParseSRT(strings.NewReader(doc))
	require.NoError(t, err)

	want := []Caption{
		{Start: "00:00:12.000", End: "00:00:14.500", Text: "Hello world"},
		{Start: "00:00:15.250", End: "00:00:16.000", Text: "Second line"},
		{Start: "1:02:03.4", End: "1:02:05.40", Text: "Short fractions"},
	}
	assert.Equal(t, want, got)
}

func TestParseSRT_Empty(t *testing.T) {
	tests := []string{
		"",
		"\n\n\n",
		"1\nno timing\ntext\n",
		"1\n00:00:01,000 --> 00:00:02,000\n\n",
	}
	for _, doc := range tests {
		_, err := ParseSRT(strings.NewReader(doc))
		assert.ErrorIs(t, err, ErrNoCaptions, "doc %q", doc)
	}
}
