package server

import (
	"context"
	"fmt"
	"log/slog"

	gormlogger "gorm.io/gorm/logger"

	"filedock/internal/config"
	"filedock/internal/database"
	"filedock/internal/domain/file"
	"filedock/internal/storage/blob"
)

// Deps are the long-lived components shared by the HTTP server and the CLI
// maintenance commands.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
	Repo   file.Repository
	Blobs  *blob.Store
	Files  *file.Service
}

// Open prepares the blob directory, connects the metadata store and builds
// the file service.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	blobs, err := blob.New(cfg.Upload.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upload dir: %w", err)
	}

	logMode := gormlogger.Warn
	if cfg.Log.Level == "debug" {
		logMode = gormlogger.Info
	}
	repo, err := file.OpenRepository(ctx, cfg.Database.URL, database.Options{
		Retries: cfg.Database.ConnectRetries,
		Backoff: cfg.Database.RetryBackoff,
		Logger:  logger.With(slog.String("component", "database")),
		LogMode: logMode,
	})
	if err != nil {
		return nil, err
	}

	return NewDeps(cfg, logger, repo, blobs), nil
}

// NewDeps wires already opened stores.
func NewDeps(cfg *config.Config, logger *slog.Logger, repo file.Repository, blobs *blob.Store) *Deps {
	svc := file.NewService(repo, blobs, file.Options{
		MaxFileSize: cfg.Upload.MaxFileSize,
		PublicBase:  cfg.Upload.PublicBase,
		BatchPolicy: file.BatchPolicy(cfg.Upload.BatchPolicy),
		Logger:      logger,
	})
	return &Deps{Config: cfg, Logger: logger, Repo: repo, Blobs: blobs, Files: svc}
}

// Close releases the metadata store.
func (d *Deps) Close() error {
	if err := d.Repo.Close(); err != nil {
		return fmt.Errorf("failed to close metadata store: %w", err)
	}
	return nil
}
