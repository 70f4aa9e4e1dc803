package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "yt-dlp", cfg.YtDlpPath)
	assert.Equal(t, 10*time.Minute, cfg.RenderTimeout)
	assert.Equal(t, 4, cfg.RasterConcurrency)
	assert.Equal(t, "veryslow", cfg.FFmpegPreset)
	assert.False(t, cfg.YtDlpSections)
	assert.False(t, cfg.AllowLocalSources)
	assert.Equal(t, 24*time.Hour, cfg.Retention)
	assert.Equal(t, "@every 15m", cfg.SweepSchedule)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
	assert.False(t, cfg.RedisEnabled())

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL())
	assert.Equal(t, filepath.Join(os.TempDir(), "clipforge", "work"), cfg.WorkDir())
	assert.Equal(t, filepath.Join(os.TempDir(), "clipforge", "videos"), cfg.VideoDir())
	assert.Equal(t, filepath.Join(os.TempDir(), "clipforge", "fonts"), cfg.FontDir())
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := LoadFrom(envconfig.MapLookuper(map[string]string{
		"PORT":                "9090",
		"PUBLIC_BASE_URL":     "https://clips.example.com/",
		"ALLOWED_ORIGINS":     "https://a.example,https://b.example",
		"TEMP_DIR":            "/data/work",
		"OUTPUT_DIR":          "/data/videos",
		"RENDER_TIMEOUT":      "90s",
		"RASTER_CONCURRENCY":  "8",
		"FFMPEG_PRESET":       "medium",
		"YTDLP_SECTIONS":      "true",
		"ALLOW_LOCAL_SOURCES": "true",
		"S3_BUCKET":           "clips",
		"S3_REGION":           "eu-west-1",
		"REDIS_ADDR":          "localhost:6379",
		"REDIS_DB":            "2",
		"RETENTION":           "0",
		"SWEEP_SCHEDULE":      "0 * * * *",
		"LOG_FORMAT":          "json",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://clips.example.com", cfg.BaseURL())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "/data/work", cfg.WorkDir())
	assert.Equal(t, "/data/videos", cfg.VideoDir())
	assert.Equal(t, 90*time.Second, cfg.RenderTimeout)
	assert.Equal(t, 8, cfg.RasterConcurrency)
	assert.Equal(t, "medium", cfg.FFmpegPreset)
	assert.True(t, cfg.YtDlpSections)
	assert.True(t, cfg.AllowLocalSources)
	assert.True(t, cfg.S3Enabled())
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Zero(t, cfg.Retention)
	assert.Equal(t, "0 * * * *", cfg.SweepSchedule)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"bucket without region", map[string]string{"S3_BUCKET": "clips"}, ErrS3RegionRequired},
		{"negative timeout", map[string]string{"RENDER_TIMEOUT": "-1s"}, ErrInvalidRenderTimeout},
		{"zero concurrency", map[string]string{"RASTER_CONCURRENCY": "0"}, ErrInvalidConcurrency},
		{"unknown preset", map[string]string{"FFMPEG_PRESET": "warp"}, ErrInvalidPreset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(envconfig.MapLookuper(tt.env))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoad_UnparsableValue(t *testing.T) {
	_, err := LoadFrom(envconfig.MapLookuper(map[string]string{"PORT": "not-a-number"}))
	assert.ErrorContains(t, err, "config:")
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		TempDir:            "/tmp/test",
		S3Bucket:           "bucket",
		S3Region:           "region",
		AWSSecretAccessKey: "secret-key",
		RedisPassword:      "redis-secret",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "bucket")
	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "redis-secret")
}

func TestConfig_NewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := &Config{LogFormat: "JSON", LogLevel: "info"}
		cfg.newLogger(&buf).Info("test message", slog.String("job_id", "clip-1"))

		assert.Contains(t, buf.String(), `"msg":"test message"`)
		assert.Contains(t, buf.String(), `"job_id":"clip-1"`)
	})

	t.Run("text honours level", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := &Config{LogFormat: "text", LogLevel: "warn"}
		logger := cfg.newLogger(&buf)
		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "msg=shown")
	})

	assert.NotNil(t, (&Config{}).NewLogger())
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
