// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/clipforge-api/internal/graph"
)

// Static errors for configuration validation.
var (
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
	// ErrInvalidRenderTimeout is returned for a negative RENDER_TIMEOUT.
	ErrInvalidRenderTimeout = errors.New("config: RENDER_TIMEOUT must not be negative")
	// ErrInvalidConcurrency is returned when RASTER_CONCURRENCY is below 1.
	ErrInvalidConcurrency = errors.New("config: RASTER_CONCURRENCY must be at least 1")
	ErrInvalidPreset      = errors.New("config: FFMPEG_PRESET is not an x264 preset")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	PublicBaseURL  string   `env:"PUBLIC_BASE_URL" json:"public_base_url,omitempty"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Filesystem
	TempDir      string `env:"TEMP_DIR" json:"temp_dir,omitempty"`
	OutputDir    string `env:"OUTPUT_DIR" json:"output_dir,omitempty"`
	FontCacheDir string `env:"FONT_CACHE_DIR" json:"font_cache_dir,omitempty"`

	// External tools
	FFmpegPath       string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	YtDlpPath        string `env:"YTDLP_PATH, default=yt-dlp" json:"ytdlp_path"`
	YtDlpCookiesFile string `env:"YTDLP_COOKIES_FILE" json:"ytdlp_cookies_file,omitempty"`
	YtDlpSections    bool   `env:"YTDLP_SECTIONS, default=false" json:"ytdlp_sections"`

	// AllowLocalSources lets source URLs name files on this host. Only
	// enable it where every caller may read the local filesystem.
	AllowLocalSources bool `env:"ALLOW_LOCAL_SOURCES, default=false" json:"allow_local_sources"`

	// Rendering
	TemplatesFile     string        `env:"TEMPLATES_FILE" json:"templates_file,omitempty"`
	RenderTimeout     time.Duration `env:"RENDER_TIMEOUT, default=10m" json:"render_timeout"`
	FFmpegPreset      string        `env:"FFMPEG_PRESET, default=veryslow" json:"ffmpeg_preset"`
	RasterConcurrency int           `env:"RASTER_CONCURRENCY, default=4" json:"raster_concurrency"`

	// Optional S3 publication
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Prefix           string `env:"S3_PREFIX, default=clips/" json:"s3_prefix,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"`

	// Optional Redis job store
	RedisAddr     string `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"`
	RedisDB       int    `env:"REDIS_DB, default=0" json:"redis_db"`

	// Retention
	Retention     time.Duration `env:"RETENTION, default=24h" json:"retention"`
	SweepSchedule string        `env:"SWEEP_SCHEDULE, default=@every 15m" json:"sweep_schedule"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// RedisEnabled returns true if jobs should be stored in Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// BaseURL returns PUBLIC_BASE_URL, or the local listen address.
func (c *Config) BaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// WorkDir returns the root for request-scoped workdirs.
func (c *Config) WorkDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return filepath.Join(os.TempDir(), "clipforge", "work")
}

// VideoDir returns the directory that keeps published outputs.
func (c *Config) VideoDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(os.TempDir(), "clipforge", "videos")
}

// FontDir returns the font cache directory.
func (c *Config) FontDir() string {
	if c.FontCacheDir != "" {
		return c.FontCacheDir
	}
	return filepath.Join(os.TempDir(), "clipforge", "fonts")
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(envconfig.OsLookuper())
}

// LoadFrom reads configuration from l and validates it.
func LoadFrom(l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that parse but cannot be used.
func (c *Config) Validate() error {
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	if c.RenderTimeout < 0 {
		return ErrInvalidRenderTimeout
	}
	if c.RasterConcurrency < 1 {
		return ErrInvalidConcurrency
	}
	if !graph.ValidPreset(c.FFmpegPreset) {
		return ErrInvalidPreset
	}
	return nil
}

// NewLogger creates a structured logger writing to stdout.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stdout)
}

func (c *Config) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}
	if strings.ToLower(c.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, BaseURL: %s, WorkDir: %s, VideoDir: %s, RenderTimeout: %s, FFmpegPreset: %s, RasterConcurrency: %d, S3Bucket: %s, S3Region: %s, RedisAddr: %s, Retention: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.BaseURL(),
		c.WorkDir(),
		c.VideoDir(),
		c.RenderTimeout,
		c.FFmpegPreset,
		c.RasterConcurrency,
		c.S3Bucket,
		c.S3Region,
		c.RedisAddr,
		c.Retention,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
