package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/marksheet-ocr-api/internal/dto"
	"github.com/noah-isme/marksheet-ocr-api/internal/models"
	appErrors "github.com/noah-isme/marksheet-ocr-api/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// StudentService searches extracted students across uploads.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students matching the filter with computed results.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]dto.StudentResult, *models.Pagination, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.UploadID != "" {
		if err := s.validator.Var(filter.UploadID, "uuid"); err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "upload_id must be a UUID")
		}
	}

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return dto.NewStudentResults(students), paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns one student with marks and computed result.
func (s *StudentService) Get(ctx context.Context, id string) (*dto.StudentResult, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	result := dto.NewStudentResult(*student)
	return &result, nil
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
