package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marksheet-ocr-api/internal/models"
)

const uploadColumns = `u.id, u.image_path, u.original_filename, u.uploaded_at, u.status, u.error_message,
        (SELECT COUNT(*) FROM students s WHERE s.upload_id = u.id) AS student_count`

// UploadRepository manages marksheet upload batches.
type UploadRepository struct {
	db *sqlx.DB
}

// NewUploadRepository constructs an UploadRepository.
func NewUploadRepository(db *sqlx.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts a new batch in pending state.
func (r *UploadRepository) Create(ctx context.Context, upload *models.UploadBatch) error {
	if upload.ID == "" {
		upload.ID = uuid.NewString()
	}
	if upload.UploadedAt.IsZero() {
		upload.UploadedAt = time.Now().UTC()
	}
	if upload.Status == "" {
		upload.Status = models.UploadStatusPending
	}
	const query = `INSERT INTO marksheet_uploads (id, image_path, original_filename, uploaded_at, status, error_message)
        VALUES (:id, :image_path, :original_filename, :uploaded_at, :status, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, upload); err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	return nil
}

// UpdateStatus moves a batch to status, replacing its error message.
func (r *UploadRepository) UpdateStatus(ctx context.Context, id string, status models.UploadStatus, errorMessage *string) error {
	return updateUploadStatus(ctx, r.db, id, status, errorMessage)
}

func updateUploadStatus(ctx context.Context, exec sqlx.ExecerContext, id string, status models.UploadStatus, errorMessage *string) error {
	res, err := exec.ExecContext(ctx, `UPDATE marksheet_uploads SET status = $2, error_message = $3 WHERE id = $1`, id, status, errorMessage)
	if err != nil {
		return fmt.Errorf("update upload status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update upload status: %w", ErrNoRows)
	}
	return nil
}

// FindByID fetches a batch with its student count.
func (r *UploadRepository) FindByID(ctx context.Context, id string) (*models.UploadBatch, error) {
	query := fmt.Sprintf(`SELECT %s FROM marksheet_uploads u WHERE u.id = $1`, uploadColumns)
	var upload models.UploadBatch
	if err := r.db.GetContext(ctx, &upload, query, id); err != nil {
		return nil, err
	}
	return &upload, nil
}

// ListRecent returns the newest batches first.
func (r *UploadRepository) ListRecent(ctx context.Context, limit int) ([]models.UploadBatch, error) {
	query := fmt.Sprintf(`SELECT %s FROM marksheet_uploads u ORDER BY u.uploaded_at DESC, u.id DESC LIMIT $1`, uploadColumns)
	uploads := make([]models.UploadBatch, 0)
	if err := r.db.SelectContext(ctx, &uploads, query, limit); err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return uploads, nil
}

// Delete removes a batch, cascading to its students, marks and skips, and
// returns the stored image path so the caller can remove the file.
func (r *UploadRepository) Delete(ctx context.Context, id string) (string, error) {
	var imagePath string
	if err := r.db.GetContext(ctx, &imagePath, `DELETE FROM marksheet_uploads WHERE id = $1 RETURNING image_path`, id); err != nil {
		return "", err
	}
	return imagePath, nil
}
