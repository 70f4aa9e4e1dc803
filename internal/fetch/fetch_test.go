package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipforge-api/internal/httpclient"
)

type stubFetcher struct {
	name     string
	supports bool
	err      error
	calls    int
}

func (s *stubFetcher) Name() string         { return s.name }
func (s *stubFetcher) Supports(string) bool { return s.supports }
func (s *stubFetcher) Fetch(_ context.Context, req Request) (Result, error) {
	s.calls++
	if s.err != nil {
		return Result{}, s.err
	}
	return Result{Path: req.OutputPath}, nil
}

func TestChain_FallsThrough(t *testing.T) {
	first := &stubFetcher{name: "first", supports: true, err: errors.New("blocked")}
	skipped := &stubFetcher{name: "skipped", supports: false}
	second := &stubFetcher{name: "second", supports: true}

	c := NewChain(nil, first, skipped, second)
	res, err := c.Fetch(context.Background(), Request{URL: "https://youtu.be/x", OutputPath: filepath.Join(t.TempDir(), "v.mp4")})

	require.NoError(t, err)
	assert.Equal(t, "second", res.Fetcher)
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, skipped.calls)
	assert.Equal(t, 1, second.calls)
}

func TestChain_AllFail(t *testing.T) {
	a := &stubFetcher{name: "a", supports: true, err: errors.New("one")}
	b := &stubFetcher{name: "b", supports: true, err: errors.New("two")}

	_, err := NewChain(nil, a, b).Fetch(context.Background(), Request{URL: "https://x/y.mp4"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: one")
	assert.Contains(t, err.Error(), "b: two")
}

func TestChain_Unsupported(t *testing.T) {
	c := NewChain(nil, &stubFetcher{name: "a"})
	_, err := c.Fetch(context.Background(), Request{URL: "ftp://host/file?token=secret"})
	require.ErrorIs(t, err, ErrUnsupportedURL)
	assert.NotContains(t, err.Error(), "secret")
	assert.False(t, c.Supports("ftp://host/file"))
}

func TestIsYouTube(t *testing.T) {
	tests := map[string]bool{
		"https://www.youtube.com/watch?v=abc": true,
		"https://youtu.be/abc":                true,
		"https://m.youtube.com/watch?v=abc":   true,
		"https://example.com/video.mp4":       false,
		"not a url":                           false,
		"/tmp/video.mp4":                      false,
	}
	for in, want := range tests {
		assert.Equal(t, want, IsYouTube(in), in)
	}
}

func TestPickFormat(t *testing.T) {
	formats := youtube.FormatList{
		{ItagNo: 1, MimeType: "video/webm", Height: 720, AudioChannels: 2},
		{ItagNo: 2, MimeType: "video/mp4; codecs=\"avc1\"", Height: 360, AudioChannels: 2},
		{ItagNo: 3, MimeType: "video/mp4; codecs=\"avc1\"", Height: 720, AudioChannels: 2},
		{ItagNo: 4, MimeType: "video/mp4", Height: 2160, AudioChannels: 2},
		{ItagNo: 5, MimeType: "video/mp4", Height: 1080, AudioChannels: 0},
	}

	got, err := pickFormat(formats)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ItagNo)

	_, err = pickFormat(youtube.FormatList{{ItagNo: 9, MimeType: "audio/mp4", AudioChannels: 2}})
	assert.ErrorIs(t, err, ErrNoFormat)
}

func TestHTTPFetcher(t *testing.T) {
	payload := strings.Repeat("v", 4096)
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(httpclient.New(httpclient.WithBaseBackoff(time.Millisecond)))
	assert.True(t, f.Supports(srv.URL+"/clip.mp4"))
	assert.False(t, f.Supports(srv.URL+"/page.html"))

	out := filepath.Join(t.TempDir(), "v.mp4")
	res, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/clip.mp4", OutputPath: out})
	require.NoError(t, err)
	assert.Equal(t, out, res.Path)
	assert.Equal(t, 2, attempts)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestHTTPFetcher_TooSmall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tiny"))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(nil).Fetch(context.Background(), Request{URL: srv.URL + "/clip.mp4", OutputPath: filepath.Join(t.TempDir(), "v.mp4")})
	assert.ErrorIs(t, err, ErrTooSmall)
}

func TestLocalFetcher(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.mp4")
	require.NoError(t, os.WriteFile(src, make([]byte, 2048), 0o600))

	f := NewLocalFetcher()
	for _, in := range []string{src, "file://" + src} {
		assert.True(t, f.Supports(in))
		out := filepath.Join(dir, "work", "copy.mp4")
		res, err := f.Fetch(context.Background(), Request{URL: in, OutputPath: out})
		require.NoError(t, err, in)
		assert.Equal(t, out, res.Path)
		assert.FileExists(t, out)
	}

	assert.False(t, f.Supports("https://example.com/a.mp4"))
	_, err := f.Fetch(context.Background(), Request{URL: filepath.Join(dir, "missing.mp4"), OutputPath: filepath.Join(dir, "x.mp4")})
	assert.ErrorIs(t, err, ErrTooSmall)
}

const fakeYTDLP = `#!/bin/sh
out=""
fmt=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
    -f) fmt="$2"; shift ;;
  esac
  shift
done
echo "$fmt" >> "$(dirname "$out")/formats.log"
if [ "$fmt" = "FAIL" ]; then
  echo "ERROR: requested format is not available" >&2
  exit 1
fi
head -c 2048 /dev/zero > "$out"
`

func writeFakeYTDLP(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte(fakeYTDLP), 0o700)) // #nosec G306 - test fixture must be executable
	return path
}

func TestYTDLPFetcher_Strategies(t *testing.T) {
	bin := writeFakeYTDLP(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "source.mp4")

	f := NewYTDLPFetcher(bin, nil, WithStrategies(Strategy{Format: "FAIL"}, Strategy{Format: "good"}, Strategy{Format: "unused"}))
	res, err := f.Fetch(context.Background(), Request{URL: "https://youtu.be/abc", OutputPath: out})

	require.NoError(t, err)
	assert.Equal(t, out, res.Path)
	assert.Zero(t, res.StartOffset)

	log, err := os.ReadFile(filepath.Join(dir, "formats.log"))
	require.NoError(t, err)
	assert.Equal(t, "FAIL\ngood\n", string(log))
}

func TestYTDLPFetcher_AllStrategiesFail(t *testing.T) {
	bin := writeFakeYTDLP(t)
	out := filepath.Join(t.TempDir(), "source.mp4")

	f := NewYTDLPFetcher(bin, nil, WithStrategies(Strategy{Format: "FAIL"}))
	_, err := f.Fetch(context.Background(), Request{URL: "https://youtu.be/abc", OutputPath: out})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy 1 (FAIL)")
	assert.NoFileExists(t, out)
}

func TestYTDLPFetcher_Args(t *testing.T) {
	f := NewYTDLPFetcher("", nil, WithCookiesFile("/etc/cookies.txt"), WithSections(true))
	args := f.args(Strategy{Format: "bv*+ba/b", Merge: true}, Request{URL: "https://youtu.be/abc", Start: 10, End: 25.5, OutputPath: "/w/s.mp4"})
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-f bv*+ba/b --merge-output-format mp4")
	assert.Contains(t, joined, "--download-sections *00:00:10.000-00:00:25.500")
	assert.Contains(t, joined, "--cookies /etc/cookies.txt")
	assert.True(t, strings.HasSuffix(joined, "-o /w/s.mp4 https://youtu.be/abc"))

	plain := strings.Join(NewYTDLPFetcher("", nil).args(DefaultStrategies[0], Request{URL: "u", OutputPath: "o"}), " ")
	assert.NotContains(t, plain, "--download-sections")
	assert.NotContains(t, plain, "--merge-output-format")
}

func TestYTDLPFetcher_SectionsReportOffset(t *testing.T) {
	bin := writeFakeYTDLP(t)
	out := filepath.Join(t.TempDir(), "source.mp4")

	f := NewYTDLPFetcher(bin, nil, WithSections(true), WithStrategies(Strategy{Format: "good"}))
	res, err := f.Fetch(context.Background(), Request{URL: "https://youtu.be/abc", Start: 12, End: 20, OutputPath: out})

	require.NoError(t, err)
	assert.InDelta(t, 12.0, res.StartOffset, 1e-9)
}
