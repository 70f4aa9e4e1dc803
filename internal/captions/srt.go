package captions

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrNoCaptions is returned when an SRT document contains no cue.
var ErrNoCaptions = errors.New("no captions found")

var srtTiming = regexp.MustCompile(`^\s*(\d{1,2}:\d{2}:\d{2}(?:[,.]\d{1,3})?)\s*-->\s*(\d{1,2}:\d{2}:\d{2}(?:[,.]\d{1,3})?)`)

// ParseSRT reads SRT cues. Comma millisecond separators become dots, cue
// text lines are joined with a space, and blocks without a timing line
// are skipped.
func ParseSRT(r io.Reader) ([]Caption, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		out   []Caption
		cur   *Caption
		text  []string
		first = true
	)
	flush := func() {
		if cur != nil {
			cur.Text = strings.Join(text, " ")
			if cur.Text != "" {
				out = append(out, *cur)
			}
		}
		cur, text = nil, nil
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			flush()
			continue
		}
		if m := srtTiming.FindStringSubmatch(line); m != nil {
			flush()
			cur = &Caption{
				Start: strings.ReplaceAll(m[1], ",", "."),
				End:   strings.ReplaceAll(m[2], ",", "."),
			}
			continue
		}
		if cur == nil {
			// Cue index or stray text before a timing line.
			continue
		}
		text = append(text, trimmed)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	flush()

	if len(out) == 0 {
		return nil, ErrNoCaptions
	}
	return out, nil
}
