package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/timelinecraft/studio/internal/compiler"
	"github.com/timelinecraft/studio/internal/config"
	"github.com/timelinecraft/studio/internal/db"
	"github.com/timelinecraft/studio/internal/generation"
	"github.com/timelinecraft/studio/internal/imagegen"
	"github.com/timelinecraft/studio/internal/logging"
	"github.com/timelinecraft/studio/internal/project"
	"github.com/timelinecraft/studio/internal/refstore"
)

func loadConfig() (*config.EnvConfig, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger logs JSON to stdout, and also to a rotated file when one is
// configured. One-shot commands pass quiet to keep stdout for their output.
func newLogger(cfg config.Config, quiet bool) (*slog.Logger, io.Closer, error) {
	if quiet {
		return logging.NewLoggerTo(os.Stderr, cfg.LogLevel()), nopCloser{}, nil
	}
	if cfg.LogFile() == "" {
		return logging.NewLogger(cfg.LogLevel()), nopCloser{}, nil
	}
	return logging.NewFileLogger(cfg.LogLevel(), logging.FileOptions{Path: cfg.LogFile(), Compress: true})
}

func openRepository(cfg config.Config, logger *slog.Logger) (*db.DB, *project.SQLiteRepository, error) {
	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return database, project.NewRepository(database.Conn()), nil
}

func newRefStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*refstore.Store, error) {
	var (
		backend refstore.Backend
		err     error
	)
	switch cfg.RefStore() {
	case config.RefStoreMinio:
		backend, err = refstore.NewMinioBackend(ctx, refstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint(),
			AccessKey: cfg.MinioAccessKey(),
			SecretKey: cfg.MinioSecretKey(),
			Bucket:    cfg.MinioBucket(),
			UseSSL:    cfg.MinioUseSSL(),
		})
	case config.RefStoreS3:
		backend, err = refstore.NewS3Backend(ctx, refstore.S3Config{
			Bucket:       cfg.S3Bucket(),
			Region:       cfg.S3Region(),
			Profile:      cfg.S3Profile(),
			UsePathStyle: cfg.S3PathStyle(),
		})
	default:
		backend, err = refstore.NewLocalBackend(cfg.ReferencesDir())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s reference store: %w", cfg.RefStore(), err)
	}
	logger.Info("reference store ready", "backend", cfg.RefStore())
	return refstore.New(backend, logging.WithComponent(logger, "refstore")), nil
}

// newImageGenerator returns the HTTP generator when a service URL is set and
// the stub otherwise, wrapped in the Redis cache when one is configured. The
// returned closer releases the cache connection.
func newImageGenerator(ctx context.Context, cfg config.Config, logger *slog.Logger) (generation.ImageGenerator, io.Closer) {
	logger = logging.WithComponent(logger, "imagegen")

	var gen generation.ImageGenerator
	if cfg.ImageServiceURL() != "" {
		gen = imagegen.NewHTTPGenerator(cfg.ImageServiceURL(), cfg.ImageServiceToken(), logger)
		logger.Info("image service configured", "url", cfg.ImageServiceURL())
	} else {
		gen = imagegen.NewStubGenerator(0, logger)
		logger.Warn("no image service configured, using placeholder frames")
	}

	if cfg.RedisAddr() == "" {
		return gen, nopCloser{}
	}
	cache := imagegen.NewRedisCache(cfg.RedisAddr(), cfg.RedisPassword(), cfg.RedisDB())
	if err := cache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, frame cache disabled", "addr", cfg.RedisAddr(), "error", err)
		cache.Close()
		return gen, nopCloser{}
	}
	logger.Info("frame cache enabled", "addr", cfg.RedisAddr(), "ttl", cfg.RedisTTL())
	return imagegen.NewCachedGenerator(gen, cache, cfg.RedisTTL(), logger), cache
}

func newCompiler(cfg config.Config, logger *slog.Logger) generation.VideoCompiler {
	logger = logging.WithComponent(logger, "compiler")
	if cfg.Compiler() == config.CompilerFFmpeg {
		width, height, _ := config.ParseSize(cfg.FFmpegSize())
		c, err := compiler.NewFFmpegCompiler(compiler.Config{
			Binary:    cfg.FFmpegBinary(),
			OutputDir: cfg.VideosDir(),
			FPS:       cfg.FFmpegFPS(),
			Width:     width,
			Height:    height,
			Logger:    logger,
		})
		if err == nil {
			err = c.Available()
		}
		if err == nil {
			logger.Info("ffmpeg compiler ready", "binary", cfg.FFmpegBinary(), "output_dir", cfg.VideosDir())
			return c
		}
		logger.Warn("ffmpeg compiler unavailable, using sample video", "error", err)
	}
	return compiler.NewStubCompiler(0, logger)
}

// loadProject reads a project row without opening a live workspace.
func loadProject(ctx context.Context, repo project.Repository, id string) (*project.Project, error) {
	p, err := repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", project.ErrNotFound, id)
	}
	return p, nil
}

func absDir(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	return filepath.Abs(dir)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
