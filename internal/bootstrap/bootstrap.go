// Package bootstrap builds the dependency graph of the clip service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kkdai/youtube/v2"

	"github.com/maauso/clipforge-api/internal/captions"
	"github.com/maauso/clipforge-api/internal/config"
	"github.com/maauso/clipforge-api/internal/fetch"
	"github.com/maauso/clipforge-api/internal/httpclient"
	"github.com/maauso/clipforge-api/internal/job"
	"github.com/maauso/clipforge-api/internal/media"
	"github.com/maauso/clipforge-api/internal/raster"
	"github.com/maauso/clipforge-api/internal/render"
	"github.com/maauso/clipforge-api/internal/storage"
	"github.com/maauso/clipforge-api/internal/sweeper"
	"github.com/maauso/clipforge-api/internal/template"
)

const redisPingTimeout = 5 * time.Second

// Dependencies holds all initialized dependencies of the binaries.
type Dependencies struct {
	Service   *job.ComposeService
	Templates *template.Registry
	Outputs   *storage.LocalStorage
	Repo      job.Repository
	Sweeper   *sweeper.Sweeper

	closers []func() error
}

// Close releases connections opened by NewDependencies.
func (d *Dependencies) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	local, store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Outputs = local

	repo, err := initRepository(ctx, cfg, logger, deps)
	if err != nil {
		return nil, err
	}
	deps.Repo = repo

	templates, err := initTemplates(cfg, logger)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.Templates = templates

	fonts, err := raster.NewGoogleFontsResolver(cfg.FontDir(), logger)
	if err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("create font resolver: %w", err)
	}
	rasterizer := raster.New(fonts, logger)
	scheduler := captions.NewScheduler(rasterizer, logger, captions.WithConcurrency(cfg.RasterConcurrency))

	dispatcher := render.NewDispatcher(
		render.NewFFmpegRenderer(cfg.FFmpegPath, logger),
		logger,
		render.WithCleaner(store),
	)

	deps.Service = job.NewComposeService(job.Deps{
		Repo:       repo,
		Rasterizer: rasterizer,
		Captions:   scheduler,
		Fetcher:    initFetcher(cfg, logger),
		Media:      media.NewFFmpegProcessor(cfg.FFmpegPath),
		Dispatcher: dispatcher,
		Storage:    store,
		Templates:  templates,
	}, logger, job.WithRenderTimeout(cfg.RenderTimeout), job.WithPreset(cfg.FFmpegPreset))

	deps.Sweeper = sweeper.New(local, repo, cfg.Retention, logger)
	return deps, nil
}

// initFetcher orders the fetchers from most to least capable. yt-dlp
// handles YouTube best; the Go client covers hosts without it. Local
// files are only reachable when AllowLocalSources is set.
func initFetcher(cfg *config.Config, logger *slog.Logger) *fetch.Chain {
	ytdlpOpts := []fetch.YTDLPOption{fetch.WithSections(cfg.YtDlpSections)}
	if cfg.YtDlpCookiesFile != "" {
		ytdlpOpts = append(ytdlpOpts, fetch.WithCookiesFile(cfg.YtDlpCookiesFile))
	}
	fetchers := []fetch.Fetcher{
		fetch.NewYTDLPFetcher(cfg.YtDlpPath, logger, ytdlpOpts...),
		fetch.NewYouTubeFetcher(&youtube.Client{}),
		fetch.NewHTTPFetcher(httpclient.New()),
	}
	if cfg.AllowLocalSources {
		logger.Warn("local file sources enabled")
		fetchers = append(fetchers, fetch.NewLocalFetcher())
	}
	return fetch.NewChain(logger, fetchers...)
}

// initStorage creates the local output store and, when configured, the
// S3 publisher on top of it.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.LocalStorage, storage.Storage, error) {
	local, err := storage.NewLocalStorage(cfg.WorkDir(), cfg.VideoDir(), cfg.BaseURL())
	if err != nil {
		return nil, nil, fmt.Errorf("create local storage: %w", err)
	}

	if !cfg.S3Enabled() {
		logger.Info("local storage configured",
			slog.String("temp_dir", local.TempDir()),
			slog.String("output_dir", local.OutputDir()),
		)
		return local, local, nil
	}

	s3Store, err := storage.NewS3Storage(ctx, local, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Prefix:          cfg.S3Prefix,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create S3 storage: %w", err)
	}
	logger.Info("S3 storage configured",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return local, s3Store, nil
}

func initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) (job.Repository, error) {
	if !cfg.RedisEnabled() {
		return job.NewMemoryRepository(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	deps.closers = append(deps.closers, client.Close)

	logger.Info("redis job store configured",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
	)
	return job.NewRedisRepository(client), nil
}

func initTemplates(cfg *config.Config, logger *slog.Logger) (*template.Registry, error) {
	if cfg.TemplatesFile == "" {
		return template.NewRegistry(), nil
	}
	extra, err := template.LoadFile(cfg.TemplatesFile)
	if err != nil {
		return nil, err
	}
	logger.Info("templates loaded",
		slog.String("file", cfg.TemplatesFile),
		slog.Int("count", len(extra)),
	)
	return template.NewRegistry(extra...), nil
}
