package media

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Static errors for media operations.
var (
	// ErrNoVideoStream is returned when a file has no video stream.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrNoAudioStream is returned when audio is requested from a silent file.
	ErrNoAudioStream = errors.New("no audio stream found")
	// ErrInvalidRange is returned for a negative start.
	ErrInvalidRange = errors.New("invalid range: start must not be negative")
)

// DefaultProbeTimeout bounds ffprobe when the context has no deadline.
const DefaultProbeTimeout = 30 * time.Second

// FFmpegProcessor implements Processor with ffmpeg-go.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath}
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads duration, dimensions and audio presence with ffprobe.
func (p *FFmpegProcessor) Probe(ctx context.Context, path string) (Info, error) {
	timeout := DefaultProbeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil {
		return Info{}, errors.Wrap(err, "ffprobe cancelled")
	}

	raw, err := ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{})
	if err != nil {
		return Info{}, errors.Wrapf(err, "probe %s", filepath.Base(path))
	}
	return parseProbe(raw)
}

func parseProbe(raw string) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Info{}, errors.Wrap(err, "decode ffprobe output")
	}

	var info Info
	video := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if !video {
				video = true
				info.Width, info.Height = s.Width, s.Height
				info.Duration = parseSeconds(s.Duration)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !video {
		return Info{}, ErrNoVideoStream
	}
	if d := parseSeconds(out.Format.Duration); d > 0 {
		info.Duration = d
	}
	return info, nil
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// ExtractAudio writes MP3 audio at 128 kb/s.
func (p *FFmpegProcessor) ExtractAudio(ctx context.Context, src, dst string, start, duration float64) error {
	if start < 0 {
		return ErrInvalidRange
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return errors.Wrap(err, "create output dir")
	}

	in := ffmpeg.KwArgs{"ss": strconv.FormatFloat(start, 'f', -1, 64)}
	if duration > 0 {
		in["t"] = strconv.FormatFloat(duration, 'f', -1, 64)
	}
	args := ffmpeg.Input(src, in).
		Output(dst, ffmpeg.KwArgs{"map": "0:a:0", "acodec": "libmp3lame", "b:a": "128k", "f": "mp3"}).
		OverWriteOutput().
		GetArgs()

	return p.runFFmpeg(ctx, args)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "ffmpeg cancelled")
		}
		if bytes.Contains(stderr.Bytes(), []byte("matches no streams")) {
			return ErrNoAudioStream
		}
		return errors.Wrapf(err, "ffmpeg failed: %s", lastLine(stderr.String()))
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
