//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/noah-isme/marksheet-ocr-api/internal/dto"
	"github.com/noah-isme/marksheet-ocr-api/internal/models"
	"github.com/noah-isme/marksheet-ocr-api/pkg/database"
)

func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	pg, err := postgres.RunContainer(ctx,
		tc.WithImage("postgres:17-alpine"),
		postgres.WithDatabase("marksheets"),
		postgres.WithUsername("marksheets"),
		postgres.WithPassword("marksheets"),
		tc.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	uri, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.Open("postgres", uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db.DB))
	return db
}

func TestIngestionAgainstPostgres(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	uploads := NewUploadRepository(db)
	students := NewStudentRepository(db)
	subjects := NewSubjectRepository(db)
	skips := NewExtractionSkipRepository(db)
	ingestion := NewIngestionRepository(db, students, subjects, skips)

	first := &models.UploadBatch{ImagePath: "marksheets/one.jpg", OriginalFilename: "one.jpg"}
	second := &models.UploadBatch{ImagePath: "marksheets/two.jpg", OriginalFilename: "two.jpg"}
	require.NoError(t, uploads.Create(ctx, first))
	require.NoError(t, uploads.Create(ctx, second))

	input := func(roll string, ese int) []dto.StudentInput {
		v := ese
		return []dto.StudentInput{{
			RollNumber: roll,
			Name:       "Student " + roll,
			Subjects:   []dto.SubjectInput{{Code: "01", Name: "HINDI", TheoryESE: &v}},
		}}
	}

	require.NoError(t, ingestion.Ingest(ctx, first.ID, input("101", 40), []models.ExtractionSkip{
		{RecordIndex: 1, Reason: "missing name", Payload: []byte(`{"roll_number":"102"}`)},
	}))
	require.NoError(t, ingestion.Ingest(ctx, second.ID, input("201", 80), nil))

	catalog, total, err := subjects.List(ctx, models.SubjectFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "both uploads share one subject row")
	assert.Len(t, catalog, 1)

	loaded, err := uploads.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusCompleted, loaded.Status)
	assert.Equal(t, 1, loaded.StudentCount)

	stored, err := skips.ListByUpload(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.JSONEq(t, `{"roll_number":"102"}`, string(stored[0].Payload))

	path, err := uploads.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "marksheets/one.jpg", path)

	remaining, err := students.ListByUpload(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	others, err := students.ListByUpload(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, others, 1)
	require.Len(t, others[0].Marks, 1)
	assert.Equal(t, 80, *others[0].Marks[0].TheoryESE)
}

func TestMarkRangeIsEnforcedByDatabase(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	uploads := NewUploadRepository(db)
	ingestion := NewIngestionRepository(db, NewStudentRepository(db), NewSubjectRepository(db), NewExtractionSkipRepository(db))

	upload := &models.UploadBatch{ImagePath: "marksheets/bad.jpg", OriginalFilename: "bad.jpg"}
	require.NoError(t, uploads.Create(ctx, upload))

	bad := 140
	err := ingestion.Ingest(ctx, upload.ID, []dto.StudentInput{{
		RollNumber: "1",
		Name:       "Over",
		Subjects:   []dto.SubjectInput{{Code: "09", Name: "PE", PracticalMarks: &bad}},
	}}, nil)
	require.Error(t, err)

	loaded, err := uploads.FindByID(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusPending, loaded.Status)
	assert.Zero(t, loaded.StudentCount)
}
