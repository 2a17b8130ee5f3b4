package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marksheet-ocr-api/internal/dto"
	"github.com/noah-isme/marksheet-ocr-api/internal/models"
)

func newIngestionRepo(t *testing.T) (*IngestionRepository, sqlmock.Sqlmock, func()) {
	db, mock, cleanup := newRepoMock(t)
	return NewIngestionRepository(db, NewStudentRepository(db), NewSubjectRepository(db), NewExtractionSkipRepository(db)), mock, cleanup
}

func sampleInputs() []dto.StudentInput {
	return []dto.StudentInput{{
		RollNumber: "101",
		Name:       "Asha",
		Subjects: []dto.SubjectInput{
			{Code: "01", Name: "HINDI", TheoryESE: intPtr(55)},
		},
	}}
}

func TestIngestionRepositoryCommitsEverything(t *testing.T) {
	repo, mock, cleanup := newIngestionRepo(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO students").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("^SAVEPOINT subject_upsert").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO subjects").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "created_at"}).AddRow("sub1", "01", "HINDI", time.Now()))
	mock.ExpectExec("^RELEASE SAVEPOINT subject_upsert").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO marks").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "sub1", 55, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO extraction_skips").
		WithArgs(sqlmock.AnyArg(), "u1", 1, "missing name", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE marksheet_uploads SET status = $2")).
		WithArgs("u1", "completed", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	skips := []models.ExtractionSkip{{RecordIndex: 1, Reason: "missing name", Payload: []byte(`{"roll_number":"102"}`)}}
	require.NoError(t, repo.Ingest(context.Background(), "u1", sampleInputs(), skips))
	assert.Equal(t, "u1", skips[0].UploadID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestionRepositoryRollsBackOnFailure(t *testing.T) {
	repo, mock, cleanup := newIngestionRepo(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO students").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("^SAVEPOINT subject_upsert").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO subjects").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "created_at"}).AddRow("sub1", "01", "HINDI", time.Now()))
	mock.ExpectExec("^RELEASE SAVEPOINT subject_upsert").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO marks").WillReturnError(errors.New("check constraint violated"))
	mock.ExpectRollback()

	err := repo.Ingest(context.Background(), "u1", sampleInputs(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `ingest student "101"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
