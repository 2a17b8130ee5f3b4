package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marksheet-ocr-api/internal/models"
)

// ExtractionSkipRepository stores records rejected during ingestion.
type ExtractionSkipRepository struct {
	db *sqlx.DB
}

// NewExtractionSkipRepository constructs an ExtractionSkipRepository.
func NewExtractionSkipRepository(db *sqlx.DB) *ExtractionSkipRepository {
	return &ExtractionSkipRepository{db: db}
}

// Create inserts a skip row using exec.
func (r *ExtractionSkipRepository) Create(ctx context.Context, exec sqlx.ExtContext, skip *models.ExtractionSkip) error {
	if skip.ID == "" {
		skip.ID = uuid.NewString()
	}
	if skip.CreatedAt.IsZero() {
		skip.CreatedAt = time.Now().UTC()
	}
	if len(skip.Payload) == 0 {
		skip.Payload = []byte("null")
	}
	const query = `INSERT INTO extraction_skips (id, upload_id, record_index, reason, payload, created_at)
        VALUES (:id, :upload_id, :record_index, :reason, :payload, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, skip); err != nil {
		return fmt.Errorf("create extraction skip: %w", err)
	}
	return nil
}

// ListByUpload returns skips in record order.
func (r *ExtractionSkipRepository) ListByUpload(ctx context.Context, uploadID string) ([]models.ExtractionSkip, error) {
	const query = `SELECT id, upload_id, record_index, reason, payload, created_at
        FROM extraction_skips WHERE upload_id = $1 ORDER BY record_index ASC`
	skips := make([]models.ExtractionSkip, 0)
	if err := r.db.SelectContext(ctx, &skips, query, uploadID); err != nil {
		return nil, fmt.Errorf("list extraction skips: %w", err)
	}
	return skips, nil
}
