package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/marksheet-ocr-api/internal/dto"
	"github.com/noah-isme/marksheet-ocr-api/internal/models"
	appErrors "github.com/noah-isme/marksheet-ocr-api/pkg/errors"
	"github.com/noah-isme/marksheet-ocr-api/pkg/observability"
	"github.com/noah-isme/marksheet-ocr-api/pkg/vision"
)

const (
	defaultMaxFiles    = 5
	defaultMaxFileSize = 10 * 1024 * 1024
	defaultRecentLimit = 10
	maxRecentLimit     = 100
	statusWriteTimeout = 5 * time.Second
)

var defaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff"}

var imageMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

type uploadRepository interface {
	Create(ctx context.Context, upload *models.UploadBatch) error
	UpdateStatus(ctx context.Context, id string, status models.UploadStatus, errorMessage *string) error
	FindByID(ctx context.Context, id string) (*models.UploadBatch, error)
	ListRecent(ctx context.Context, limit int) ([]models.UploadBatch, error)
	Delete(ctx context.Context, id string) (string, error)
}

type uploadStudentRepository interface {
	ListByUpload(ctx context.Context, uploadID string) ([]models.Student, error)
}

type extractionSkipRepository interface {
	ListByUpload(ctx context.Context, uploadID string) ([]models.ExtractionSkip, error)
}

type ingestionRepository interface {
	Ingest(ctx context.Context, uploadID string, students []dto.StudentInput, skips []models.ExtractionSkip) error
}

type imageStorage interface {
	SaveImage(originalName string, r io.Reader) (string, int64, error)
	ReadImage(name string) ([]byte, error)
	Delete(name string) error
}

type marksheetExtractor interface {
	Extract(ctx context.Context, img vision.Image) (*ExtractionResult, error)
}

// MarksheetConfig limits what a single upload request may carry.
type MarksheetConfig struct {
	MaxFiles          int
	MaxFileSize       int64
	AllowedExtensions []string
	RecentLimit       int
}

// UploadFile is one submitted image. Open is called at most once.
type UploadFile struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// MarksheetService runs the upload pipeline and serves stored results.
type MarksheetService struct {
	uploads   uploadRepository
	students  uploadStudentRepository
	skips     extractionSkipRepository
	ingestion ingestionRepository
	storage   imageStorage
	extractor marksheetExtractor
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       MarksheetConfig
	allowed   map[string]struct{}
}

// NewMarksheetService wires the pipeline.
func NewMarksheetService(
	uploads uploadRepository,
	students uploadStudentRepository,
	skips extractionSkipRepository,
	ingestion ingestionRepository,
	storage imageStorage,
	extractor marksheetExtractor,
	cache *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg MarksheetConfig,
) *MarksheetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = defaultImageExtensions
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = defaultRecentLimit
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &MarksheetService{
		uploads:   uploads,
		students:  students,
		skips:     skips,
		ingestion: ingestion,
		storage:   storage,
		extractor: extractor,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		allowed:   allowed,
	}
}

// ProcessBatch processes files one after another. Each file gets its own
// outcome; the error return is reserved for a request that is invalid as a
// whole.
func (s *MarksheetService) ProcessBatch(ctx context.Context, files []UploadFile) (*dto.UploadResponse, error) {
	if len(files) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one image is required")
	}
	if len(files) > s.cfg.MaxFiles {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d images may be uploaded at once", s.cfg.MaxFiles))
	}

	resp := &dto.UploadResponse{Files: make([]dto.UploadFileResult, 0, len(files))}
	for _, file := range files {
		result := s.Process(ctx, file)
		if result.Succeeded() {
			resp.SuccessCount++
		} else {
			resp.FailureCount++
		}
		resp.Files = append(resp.Files, result)
	}
	return resp, nil
}

// Process stores one image, extracts it and ingests the result. Files that
// fail type or size checks never create an upload batch. Once started, a file
// is processed to a terminal status even if the caller goes away; only the
// extraction timeout bounds it.
func (s *MarksheetService) Process(ctx context.Context, file UploadFile) dto.UploadFileResult {
	ctx = context.WithoutCancel(ctx)
	result := dto.UploadFileResult{Filename: file.Filename}

	if err := s.validateFile(file); err != nil {
		result.Error = err.Error()
		return result
	}

	imagePath, err := s.store(file)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	upload := &models.UploadBatch{
		ImagePath:        imagePath,
		OriginalFilename: file.Filename,
		Status:           models.UploadStatusPending,
	}
	if err := s.uploads.Create(ctx, upload); err != nil {
		s.logger.Error("failed to create upload", zap.String("filename", file.Filename), zap.Error(err))
		observability.CaptureErr(ctx, err, map[string]string{"stage": "create_upload"})
		if delErr := s.storage.Delete(imagePath); delErr != nil {
			s.logger.Warn("failed to remove orphaned image", zap.String("path", imagePath), zap.Error(delErr))
		}
		result.Error = "failed to record upload"
		return result
	}
	result.UploadID = upload.ID

	students, skipped, err := s.run(ctx, upload)
	if err != nil {
		s.fail(ctx, upload.ID, err)
		result.Status = models.UploadStatusFailed
		result.Error = appErrors.FromError(err).Message
		s.metrics.RecordUpload(string(models.UploadStatusFailed), 0, 0)
		return result
	}

	result.Status = models.UploadStatusCompleted
	result.StudentCount = students
	result.SkippedCount = skipped
	s.metrics.RecordUpload(string(models.UploadStatusCompleted), students, skipped)
	s.logger.Info("marksheet processed",
		zap.String("upload_id", upload.ID),
		zap.Int("students", students),
		zap.Int("skipped", skipped),
	)
	return result
}

func (s *MarksheetService) run(ctx context.Context, upload *models.UploadBatch) (int, int, error) {
	if err := s.uploads.UpdateStatus(ctx, upload.ID, models.UploadStatusProcessing, nil); err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start processing")
	}

	data, err := s.storage.ReadImage(upload.ImagePath)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read stored image")
	}

	started := time.Now()
	extracted, err := s.extractor.Extract(ctx, vision.Image{Data: data, MimeType: mimeTypeFor(upload.ImagePath)})
	if err != nil {
		s.metrics.ObserveExtraction("error", time.Since(started))
		return 0, 0, err
	}
	s.metrics.ObserveExtraction("ok", time.Since(started))

	if err := s.ingestion.Ingest(ctx, upload.ID, extracted.Students, extracted.Skipped); err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save extracted students")
	}
	return len(extracted.Students), len(extracted.Skipped), nil
}

// fail records the failure even when the request context is already done.
func (s *MarksheetService) fail(ctx context.Context, uploadID string, cause error) {
	appErr := appErrors.FromError(cause)
	message := appErr.Message
	if appErr.Err != nil {
		message = fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
	}

	s.logger.Error("marksheet processing failed", zap.String("upload_id", uploadID), zap.Error(cause))
	if appErr.Code == appErrors.ErrInternal.Code {
		observability.CaptureErr(ctx, cause, map[string]string{"upload_id": uploadID})
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := s.uploads.UpdateStatus(writeCtx, uploadID, models.UploadStatusFailed, &message); err != nil {
		s.logger.Error("failed to mark upload failed", zap.String("upload_id", uploadID), zap.Error(err))
	}
}

func (s *MarksheetService) validateFile(file UploadFile) error {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := s.allowed[ext]; !ok {
		return appErrors.Clone(appErrors.ErrUploadRejected,
			fmt.Sprintf("unsupported file type %q; allowed: %s", ext, strings.Join(s.cfg.AllowedExtensions, ", ")))
	}
	if file.Size > s.cfg.MaxFileSize {
		return s.tooLarge()
	}
	if file.Size == 0 {
		return appErrors.Clone(appErrors.ErrUploadRejected, "file is empty")
	}
	return nil
}

func (s *MarksheetService) tooLarge() error {
	limit := fmt.Sprintf("%d bytes", s.cfg.MaxFileSize)
	if s.cfg.MaxFileSize%(1024*1024) == 0 {
		limit = fmt.Sprintf("%d MB", s.cfg.MaxFileSize/(1024*1024))
	}
	return appErrors.Clone(appErrors.ErrUploadRejected, "file exceeds the "+limit+" limit")
}

// store copies at most MaxFileSize+1 bytes so a misreported size is still caught.
func (s *MarksheetService) store(file UploadFile) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUploadRejected.Code, appErrors.ErrUploadRejected.Status, "failed to read uploaded file")
	}
	defer rc.Close()

	name, n, err := s.storage.SaveImage(file.Filename, io.LimitReader(rc, s.cfg.MaxFileSize+1))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}
	if n > s.cfg.MaxFileSize {
		_ = s.storage.Delete(name)
		return "", s.tooLarge()
	}
	return name, nil
}

// Get returns an upload with its students and skipped records. Results of
// finished uploads are cached.
func (s *MarksheetService) Get(ctx context.Context, id string) (*dto.UploadDetail, error) {
	key := UploadKey(id)
	var cached dto.UploadDetail
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	upload, err := s.uploads.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "upload not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upload")
	}

	students, err := s.students.ListByUpload(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	skipped, err := s.skips.ListByUpload(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load skipped records")
	}

	detail := &dto.UploadDetail{
		Upload:   *upload,
		Students: dto.NewStudentResults(students),
		Skipped:  skipped,
	}
	if detail.Skipped == nil {
		detail.Skipped = []models.ExtractionSkip{}
	}
	if upload.Status.Terminal() {
		s.cache.Set(ctx, key, detail, 0)
	}
	return detail, nil
}

// List returns the most recent uploads, newest first.
func (s *MarksheetService) List(ctx context.Context, limit int) ([]models.UploadBatch, error) {
	if limit <= 0 {
		limit = s.cfg.RecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	uploads, err := s.uploads.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list uploads")
	}
	return uploads, nil
}

// Delete removes an upload, its rows and its stored image.
func (s *MarksheetService) Delete(ctx context.Context, id string) error {
	imagePath, err := s.uploads.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "upload not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete upload")
	}
	if err := s.storage.Delete(imagePath); err != nil {
		s.logger.Warn("failed to delete stored image", zap.String("upload_id", id), zap.String("path", imagePath), zap.Error(err))
	}
	s.cache.Invalidate(ctx, UploadKey(id))
	return nil
}

func mimeTypeFor(path string) string {
	if mt, ok := imageMimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "application/octet-stream"
}
