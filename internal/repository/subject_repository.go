package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marksheet-ocr-api/internal/models"
)

const subjectUpsertAttempts = 3

// SubjectRepository manages the shared subject catalog.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a SubjectRepository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// GetOrCreate returns the subject identified by (code, name), inserting it if
// needed. Concurrent ingestions racing on the same key converge on one row;
// each attempt runs under a savepoint so a unique violation does not abort
// the surrounding transaction.
func (r *SubjectRepository) GetOrCreate(ctx context.Context, tx *sqlx.Tx, code, name string) (*models.Subject, error) {
	var lastErr error
	for attempt := 0; attempt < subjectUpsertAttempts; attempt++ {
		subject, err := r.getOrCreateOnce(ctx, tx, code, name)
		if err == nil {
			return subject, nil
		}
		if !IsUniqueViolation(err) && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("get or create subject %s/%s after %d attempts: %w", code, name, subjectUpsertAttempts, lastErr)
}

func (r *SubjectRepository) getOrCreateOnce(ctx context.Context, tx *sqlx.Tx, code, name string) (*models.Subject, error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT subject_upsert"); err != nil {
		return nil, fmt.Errorf("savepoint subject upsert: %w", err)
	}

	subject := models.Subject{ID: uuid.NewString(), Code: code, Name: name, CreatedAt: time.Now().UTC()}
	const insert = `INSERT INTO subjects (id, code, name, created_at) VALUES ($1, $2, $3, $4)
        ON CONFLICT (code, name) DO NOTHING
        RETURNING id, code, name, created_at`
	var created models.Subject
	err := tx.GetContext(ctx, &created, insert, subject.ID, subject.Code, subject.Name, subject.CreatedAt)
	if err == nil {
		return &created, r.release(ctx, tx)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT subject_upsert"); rbErr != nil {
			return nil, fmt.Errorf("rollback subject upsert: %w", rbErr)
		}
		return nil, fmt.Errorf("insert subject: %w", err)
	}

	var existing models.Subject
	const lookup = `SELECT id, code, name, created_at FROM subjects WHERE code = $1 AND name = $2`
	if err := tx.GetContext(ctx, &existing, lookup, code, name); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT subject_upsert"); rbErr != nil {
			return nil, fmt.Errorf("rollback subject upsert: %w", rbErr)
		}
		return nil, fmt.Errorf("lookup subject: %w", err)
	}
	return &existing, r.release(ctx, tx)
}

func (r *SubjectRepository) release(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT subject_upsert"); err != nil {
		return fmt.Errorf("release subject upsert: %w", err)
	}
	return nil
}

// List returns catalog entries ordered by code then name.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := "FROM subjects"
	var args []interface{}
	if filter.Search != "" {
		base += " WHERE LOWER(code) LIKE $1 OR LOWER(name) LIKE $1"
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	size := normalizePageSize(filter.PageSize)
	offset := (normalizePage(filter.Page) - 1) * size

	query := fmt.Sprintf("SELECT id, code, name, created_at %s ORDER BY code ASC, name ASC LIMIT %d OFFSET %d", base, size, offset)
	subjects := make([]models.Subject, 0)
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}
