package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/marksheet-ocr-api/internal/repository"
	"github.com/noah-isme/marksheet-ocr-api/internal/service"
	"github.com/noah-isme/marksheet-ocr-api/pkg/cache"
	"github.com/noah-isme/marksheet-ocr-api/pkg/config"
	"github.com/noah-isme/marksheet-ocr-api/pkg/database"
	"github.com/noah-isme/marksheet-ocr-api/pkg/storage"
	"github.com/noah-isme/marksheet-ocr-api/pkg/vision"
)

// Container holds the wired services shared by the HTTP server and the CLI.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Metrics    *service.MetricsService
	Cache      *service.CacheService
	Marksheets *service.MarksheetService
	Exports    *service.ExportService
	Students   *service.StudentService
	Subjects   *service.SubjectService
	Auth       *service.AuthService
}

// New connects to Postgres (and Redis when enabled), applies migrations when
// configured and builds every service. Close releases the connections.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable; result caching disabled", zap.Error(err))
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare image storage: %w", err)
	}

	return Build(cfg, logger, db, redisClient, store), nil
}

// Build wires services around already opened connections.
func Build(cfg *config.Config, logger *zap.Logger, db *sqlx.DB, redisClient *redis.Client, store *storage.LocalStorage) *Container {
	validate := validator.New()
	metrics := service.NewMetricsService()

	uploadRepo := repository.NewUploadRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	skipRepo := repository.NewExtractionSkipRepository(db)
	ingestRepo := repository.NewIngestionRepository(db, studentRepo, subjectRepo, skipRepo)
	cacheRepo := repository.NewCacheRepository(redisClient)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.ResultsTTL, logger, redisClient != nil)

	visionClient := vision.NewClient(vision.Config{
		APIKey:     cfg.Extraction.APIKey,
		BaseURL:    cfg.Extraction.BaseURL,
		Model:      cfg.Extraction.Model,
		MaxRetries: cfg.Extraction.MaxRetries,
		Logger:     logger.Named("vision"),
	})
	if cfg.Extraction.APIKey == "" {
		logger.Warn("vision api key is not configured; uploads will fail extraction")
	}
	extractor := service.NewExtractionService(visionClient, logger.Named("extraction"), cfg.Extraction.Timeout)

	marksheets := service.NewMarksheetService(
		uploadRepo, studentRepo, skipRepo, ingestRepo, store, extractor, cacheSvc, metrics,
		logger.Named("marksheets"),
		service.MarksheetConfig{
			MaxFiles:          cfg.Uploads.MaxFiles,
			MaxFileSize:       cfg.Uploads.MaxFileSizeBytes,
			AllowedExtensions: cfg.Uploads.AllowedExtensions,
			RecentLimit:       cfg.Uploads.RecentLimit,
		},
	)

	return &Container{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Redis:      redisClient,
		Metrics:    metrics,
		Cache:      cacheSvc,
		Marksheets: marksheets,
		Exports: service.NewExportService(uploadRepo, studentRepo, metrics, logger.Named("exports"), service.ExportConfig{
			SummaryColumnWidthCap:  cfg.Exports.SummaryColumnWidthCap,
			DetailedColumnWidthCap: cfg.Exports.DetailedColumnWidthCap,
		}),
		Students: service.NewStudentService(studentRepo, validate, logger),
		Subjects: service.NewSubjectService(subjectRepo, logger),
		Auth: service.NewAuthService(validate, logger, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
			AdminUsername:     cfg.Admin.Username,
			AdminPasswordHash: cfg.Admin.PasswordHash,
		}),
	}
}

// Close releases database and cache connections.
func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("failed to close database", zap.Error(err))
		}
	}
}
