package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

// createTestVideo creates a small test video using ffmpeg, optionally with
// silent audio.
func createTestVideo(t *testing.T, path string, duration float64, withAudio bool) {
	t.Helper()

	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=blue:s=64x36:d=%.1f", duration),
	}
	if withAudio {
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("anullsrc=r=44100:cl=mono:d=%.1f", duration), "-c:a", "aac")
	}
	args = append(args, "-c:v", "libx264", "-preset", "ultrafast", "-shortest", path)

	cmd := exec.Command("ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func TestNewFFmpegProcessor(t *testing.T) {
	t.Run("default path", func(t *testing.T) {
		p := NewFFmpegProcessor("")
		if p.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", p.ffmpegPath)
		}
	})

	t.Run("custom path", func(t *testing.T) {
		p := NewFFmpegProcessor("/usr/local/bin/ffmpeg")
		if p.ffmpegPath != "/usr/local/bin/ffmpeg" {
			t.Errorf("expected custom path, got %q", p.ffmpegPath)
		}
	})
}

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Info
		wantErr error
	}{
		{
			name: "video and audio",
			raw: `{"streams":[{"codec_type":"video","width":1920,"height":1080,"duration":"12.0"},{"codec_type":"audio"}],
				"format":{"duration":"12.345"}}`,
			want: Info{Duration: 12.345, HasAudio: true, Width: 1920, Height: 1080},
		},
		{
			name: "silent video falls back to stream duration",
			raw:  `{"streams":[{"codec_type":"video","width":640,"height":360,"duration":"3.5"}],"format":{}}`,
			want: Info{Duration: 3.5, Width: 640, Height: 360},
		},
		{
			name:    "audio only",
			raw:     `{"streams":[{"codec_type":"audio"}],"format":{"duration":"1"}}`,
			wantErr: ErrNoVideoStream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbe(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseProbe() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := parseProbe("not json"); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestProbe(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	withAudio := filepath.Join(dir, "audio.mp4")
	silent := filepath.Join(dir, "silent.mp4")
	createTestVideo(t, withAudio, 2, true)
	createTestVideo(t, silent, 1, false)

	p := NewFFmpegProcessor("")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := p.Probe(ctx, withAudio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.HasAudio {
		t.Error("expected audio stream")
	}
	if info.Width != 64 || info.Height != 36 {
		t.Errorf("expected 64x36, got %dx%d", info.Width, info.Height)
	}
	if info.Duration < 1.5 || info.Duration > 2.5 {
		t.Errorf("expected duration ~2s, got %.2f", info.Duration)
	}

	info, err = p.Probe(ctx, silent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.HasAudio {
		t.Error("expected no audio stream")
	}

	if _, err := p.Probe(ctx, filepath.Join(dir, "missing.mp4")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExtractAudio(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "source.mp4")
	createTestVideo(t, src, 3, true)

	p := NewFFmpegProcessor("")
	dst := filepath.Join(dir, "out", "audio.mp3")
	if err := p.ExtractAudio(context.Background(), src, dst, 0.5, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected non-empty mp3")
	}
}

func TestExtractAudio_NoAudio(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "silent.mp4")
	createTestVideo(t, src, 1, false)

	err := NewFFmpegProcessor("").ExtractAudio(context.Background(), src, filepath.Join(dir, "a.mp3"), 0, 0)
	if !errors.Is(err, ErrNoAudioStream) {
		t.Errorf("expected ErrNoAudioStream, got %v", err)
	}
}

func TestExtractAudio_InvalidRange(t *testing.T) {
	err := NewFFmpegProcessor("").ExtractAudio(context.Background(), "in.mp4", "out.mp3", -1, 1)
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestExtractAudio_Cancelled(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "source.mp4")
	createTestVideo(t, src, 1, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewFFmpegProcessor("").ExtractAudio(ctx, src, filepath.Join(dir, "a.mp3"), 0, 0); err == nil {
		t.Error("expected error for cancelled context")
	}
}
