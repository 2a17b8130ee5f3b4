package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marksheet-ocr-api/internal/dto"
	"github.com/noah-isme/marksheet-ocr-api/internal/models"
)

// IngestionRepository writes one upload's extraction result atomically.
type IngestionRepository struct {
	db       *sqlx.DB
	students *StudentRepository
	subjects *SubjectRepository
	skips    *ExtractionSkipRepository
}

// NewIngestionRepository constructs an IngestionRepository.
func NewIngestionRepository(db *sqlx.DB, students *StudentRepository, subjects *SubjectRepository, skips *ExtractionSkipRepository) *IngestionRepository {
	return &IngestionRepository{db: db, students: students, subjects: subjects, skips: skips}
}

// Ingest stores students, marks and skip records for uploadID and marks the
// upload completed in the same transaction. Either everything is written or
// nothing is.
func (r *IngestionRepository) Ingest(ctx context.Context, uploadID string, students []dto.StudentInput, skips []models.ExtractionSkip) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingestion: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i := range students {
		if err = r.ingestStudent(ctx, tx, uploadID, students[i]); err != nil {
			return fmt.Errorf("ingest student %q: %w", students[i].RollNumber, err)
		}
	}

	for i := range skips {
		skips[i].UploadID = uploadID
		if err = r.skips.Create(ctx, tx, &skips[i]); err != nil {
			return err
		}
	}

	if err = updateUploadStatus(ctx, tx, uploadID, models.UploadStatusCompleted, nil); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit ingestion: %w", err)
	}
	return nil
}

func (r *IngestionRepository) ingestStudent(ctx context.Context, tx *sqlx.Tx, uploadID string, in dto.StudentInput) error {
	student := &models.Student{
		UploadID:         uploadID,
		RollNumber:       in.RollNumber,
		Name:             in.Name,
		FatherName:       in.FatherName,
		MotherName:       in.MotherName,
		EnrollmentNumber: in.EnrollmentNumber,
	}
	if err := r.students.Create(ctx, tx, student); err != nil {
		return err
	}

	for _, sub := range in.Subjects {
		subject, err := r.subjects.GetOrCreate(ctx, tx, sub.Code, sub.Name)
		if err != nil {
			return err
		}
		mark := &models.Mark{
			StudentID:         student.ID,
			SubjectID:         subject.ID,
			TheoryESE:         sub.TheoryESE,
			TheoryInternal:    sub.TheoryInternal,
			PracticalMarks:    sub.PracticalMarks,
			PracticalInternal: sub.PracticalInternal,
		}
		if err := r.students.CreateMark(ctx, tx, mark); err != nil {
			return err
		}
	}
	return nil
}
