package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marksheet-ocr-api/internal/dto"
	"github.com/noah-isme/marksheet-ocr-api/internal/models"
	appErrors "github.com/noah-isme/marksheet-ocr-api/pkg/errors"
	"github.com/noah-isme/marksheet-ocr-api/pkg/vision"
)

type fakeUploadRepo struct {
	uploads   map[string]*models.UploadBatch
	history   map[string][]models.UploadStatus
	seq       int
	createErr error
	lastLimit int
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{uploads: map[string]*models.UploadBatch{}, history: map[string][]models.UploadStatus{}}
}

func (f *fakeUploadRepo) Create(_ context.Context, upload *models.UploadBatch) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.seq++
	upload.ID = fmt.Sprintf("upload-%d", f.seq)
	stored := *upload
	f.uploads[upload.ID] = &stored
	f.history[upload.ID] = append(f.history[upload.ID], upload.Status)
	return nil
}

func (f *fakeUploadRepo) UpdateStatus(_ context.Context, id string, status models.UploadStatus, msg *string) error {
	u, ok := f.uploads[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Status = status
	u.ErrorMessage = msg
	f.history[id] = append(f.history[id], status)
	return nil
}

func (f *fakeUploadRepo) FindByID(_ context.Context, id string) (*models.UploadBatch, error) {
	u, ok := f.uploads[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	found := *u
	return &found, nil
}

func (f *fakeUploadRepo) ListRecent(_ context.Context, limit int) ([]models.UploadBatch, error) {
	f.lastLimit = limit
	out := make([]models.UploadBatch, 0, len(f.uploads))
	for _, u := range f.uploads {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUploadRepo) Delete(_ context.Context, id string) (string, error) {
	u, ok := f.uploads[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	delete(f.uploads, id)
	return u.ImagePath, nil
}

type fakeStudentLister struct {
	students map[string][]models.Student
	calls    int
}

func (f *fakeStudentLister) ListByUpload(_ context.Context, uploadID string) ([]models.Student, error) {
	f.calls++
	return f.students[uploadID], nil
}

type fakeSkipLister struct{}

func (fakeSkipLister) ListByUpload(context.Context, string) ([]models.ExtractionSkip, error) {
	return nil, nil
}

type fakeIngestion struct {
	uploads *fakeUploadRepo
	err     error
	got     map[string][]dto.StudentInput
	skipped map[string][]models.ExtractionSkip
	ctxErr  error
}

func (f *fakeIngestion) Ingest(ctx context.Context, uploadID string, students []dto.StudentInput, skipped []models.ExtractionSkip) error {
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return f.err
	}
	if f.got == nil {
		f.got = map[string][]dto.StudentInput{}
		f.skipped = map[string][]models.ExtractionSkip{}
	}
	f.got[uploadID] = students
	f.skipped[uploadID] = skipped
	return f.uploads.UpdateStatus(ctx, uploadID, models.UploadStatusCompleted, nil)
}

type memoryImageStorage struct {
	files   map[string][]byte
	seq     int
	deleted []string
}

func (m *memoryImageStorage) SaveImage(originalName string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.seq++
	name := fmt.Sprintf("marksheets/%d-%s", m.seq, originalName)
	m.files[name] = data
	return name, int64(len(data)), nil
}

func (m *memoryImageStorage) ReadImage(name string) ([]byte, error) {
	data, ok := m.files[name]
	if !ok {
		return nil, errors.New("missing image")
	}
	return data, nil
}

func (m *memoryImageStorage) Delete(name string) error {
	m.deleted = append(m.deleted, name)
	delete(m.files, name)
	return nil
}

type fakeExtractor struct {
	results   map[string]*ExtractionResult
	err       error
	images    []vision.Image
	onExtract func()
	ctxErr    error
}

func (f *fakeExtractor) Extract(ctx context.Context, img vision.Image) (*ExtractionResult, error) {
	f.images = append(f.images, img)
	if f.onExtract != nil {
		f.onExtract()
	}
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return nil, f.err
	}
	if res, ok := f.results[string(img.Data)]; ok {
		return res, nil
	}
	return &ExtractionResult{}, nil
}

type marksheetFixture struct {
	svc       *MarksheetService
	uploads   *fakeUploadRepo
	students  *fakeStudentLister
	ingestion *fakeIngestion
	storage   *memoryImageStorage
	extractor *fakeExtractor
	cache     *stubCacheRepo
}

func newMarksheetFixture(cfg MarksheetConfig) *marksheetFixture {
	uploads := newFakeUploadRepo()
	f := &marksheetFixture{
		uploads:   uploads,
		students:  &fakeStudentLister{students: map[string][]models.Student{}},
		ingestion: &fakeIngestion{uploads: uploads},
		storage:   &memoryImageStorage{},
		extractor: &fakeExtractor{results: map[string]*ExtractionResult{}},
		cache:     &stubCacheRepo{},
	}
	cache := NewCacheService(f.cache, nil, 0, nil, true)
	f.svc = NewMarksheetService(uploads, f.students, fakeSkipLister{}, f.ingestion, f.storage, f.extractor, cache, nil, nil, cfg)
	return f
}

func fileOf(name, content string) UploadFile {
	return UploadFile{
		Filename: name,
		Size:     int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte(content))), nil
		},
	}
}

func TestMarksheetServiceProcessBatch(t *testing.T) {
	f := newMarksheetFixture(MarksheetConfig{})
	f.extractor.results["sheet-a"] = &ExtractionResult{
		Students: []dto.StudentInput{{RollNumber: "1", Name: "A"}, {RollNumber: "2", Name: "B"}},
		Skipped:  []models.ExtractionSkip{{RecordIndex: 2, Reason: "name is required"}},
	}

	resp, err := f.svc.ProcessBatch(context.Background(), []UploadFile{
		fileOf("a.PNG", "sheet-a"),
		fileOf("notes.txt", "hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.SuccessCount)
	assert.Equal(t, 1, resp.FailureCount)

	ok := resp.Files[0]
	assert.Equal(t, models.UploadStatusCompleted, ok.Status)
	assert.Equal(t, 2, ok.StudentCount)
	assert.Equal(t, 1, ok.SkippedCount)
	assert.Equal(t, []models.UploadStatus{models.UploadStatusPending, models.UploadStatusProcessing, models.UploadStatusCompleted}, f.uploads.history[ok.UploadID])
	assert.Equal(t, "image/png", f.extractor.images[0].MimeType)

	rejected := resp.Files[1]
	assert.Empty(t, rejected.UploadID)
	assert.Empty(t, rejected.Status)
	assert.Contains(t, rejected.Error, "unsupported file type")
	assert.Len(t, f.uploads.uploads, 1)
}

func TestMarksheetServiceProcessBatchLimits(t *testing.T) {
	f := newMarksheetFixture(MarksheetConfig{MaxFiles: 2})

	_, err := f.svc.ProcessBatch(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	files := []UploadFile{fileOf("a.png", "a"), fileOf("b.png", "b"), fileOf("c.png", "c")}
	_, err = f.svc.ProcessBatch(context.Background(), files)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 2")
}

func TestMarksheetServiceRejectsOversizedStream(t *testing.T) {
	f := newMarksheetFixture(MarksheetConfig{MaxFileSize: 4})
	file := fileOf("a.jpg", "0123456789")
	file.Size = 3

	result := f.svc.Process(context.Background(), file)
	assert.Contains(t, result.Error, "exceeds")
	assert.Empty(t, result.UploadID)
	assert.Len(t, f.storage.deleted, 1)
	assert.Empty(t, f.uploads.uploads)
}

func TestMarksheetServiceExtractionFailure(t *testing.T) {
	f := newMarksheetFixture(MarksheetConfig{})
	f.extractor.err = appErrors.Clone(appErrors.ErrExtractionContract, "extraction response is not a JSON array")

	result := f.svc.Process(context.Background(), fileOf("a.jpg", "x"))
	assert.Equal(t, models.UploadStatusFailed, result.Status)
	assert.Equal(t, "extraction response is not a JSON array", result.Error)

	stored := f.uploads.uploads[result.UploadID]
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, models.UploadStatusFailed, stored.Status)
	assert.Nil(t, f.ingestion.got)
}

func TestMarksheetServiceIngestionFailure(t *testing.T) {
	f := newMarksheetFixture(MarksheetConfig{})
	f.ingestion.err = errors.New("deadlock detected")

	result := f.svc.Process(context.Background(), fileOf("a.jpg", "x"))
	assert.Equal(t, models.UploadStatusFailed, result.Status)
	stored := f.uploads.uploads[result.UploadID]
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "deadlock detected")
}

func TestMarksheetServiceGetCachesTerminalResults(t *testing.T) {
	f := newMarksheetFixture(MarksheetConfig{})
	ese := 80
	f.uploads.uploads["u1"] = &models.UploadBatch{ID: "u1", Status: models.UploadStatusCompleted}
	f.students.students["u1"] = []models.Student{{ID: "s1", UploadID: "u1", RollNumber: "1", Marks: []models.Mark{{SubjectCode: "01", TheoryESE: &ese}}}}

	detail, err := f.svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, detail.Students, 1)
	assert.Equal(t, 80.0, detail.Students[0].Percentage)
	assert.Equal(t, models.ResultPassFirst, detail.Students[0].Result)

	_, err = f.svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.students.calls)

	require.NoError(t, f.svc.Delete(context.Background(), "u1"))
	assert.Empty(t, f.cache.store)

	_, err = f.svc.Get(context.Background(), "u1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestMarksheetServiceGetSkipsCacheForPending(t *testing.T) {
	f := newMarksheetFixture(MarksheetConfig{})
	f.uploads.uploads["u2"] = &models.UploadBatch{ID: "u2", Status: models.UploadStatusProcessing}

	_, err := f.svc.Get(context.Background(), "u2")
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, f.students.calls)
}

func TestMarksheetServiceListClampsLimit(t *testing.T) {
	f := newMarksheetFixture(MarksheetConfig{})

	_, err := f.svc.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 10, f.uploads.lastLimit)

	_, err = f.svc.List(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, 100, f.uploads.lastLimit)
}

func TestMarksheetServiceDeleteMissing(t *testing.T) {
	f := newMarksheetFixture(MarksheetConfig{})
	err := f.svc.Delete(context.Background(), "nope")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestMarksheetServiceProcessSurvivesCallerCancellation(t *testing.T) {
	f := newMarksheetFixture(MarksheetConfig{})
	f.extractor.results["sheet"] = &ExtractionResult{Students: []dto.StudentInput{{RollNumber: "1", Name: "A"}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.extractor.onExtract = cancel

	resp, err := f.svc.ProcessBatch(ctx, []UploadFile{fileOf("a.png", "sheet"), fileOf("b.png", "sheet")})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.SuccessCount)
	for _, file := range resp.Files {
		assert.Equal(t, models.UploadStatusCompleted, file.Status)
		assert.Equal(t, models.UploadStatusCompleted, f.uploads.uploads[file.UploadID].Status)
	}
	assert.NoError(t, f.extractor.ctxErr)
	assert.NoError(t, f.ingestion.ctxErr)
}

func TestMarksheetServiceProcessKeepsValidSiblings(t *testing.T) {
	uploads := newFakeUploadRepo()
	ingestion := &fakeIngestion{uploads: uploads}
	model := &stubVisionModel{text: `[
		{"roll_number": "1", "name": "ASHA", "subjects": [{"code": "01", "name": "HINDI", "theory_ese": 60, "theory_internal": 15}]},
		{"roll_number": "9", "name": "Z"},
		{"roll_number": "3", "name": "RAVI", "enrollment_number": "` + strings.Repeat("E", 101) + `", "subjects": [{"code": "01", "name": "HINDI", "theory_ese": 50}]},
		{"roll_number": "4", "name": "MEENA", "subjects": [{"code": "02", "name": "ENGLISH", "theory_ese": 101}]},
		{"roll_number": "5", "name": "KIRAN", "subjects": [{"code": "02", "name": "ENGLISH", "theory_ese": "--", "practical": 40}]}
	]`}
	svc := NewMarksheetService(uploads, &fakeStudentLister{}, fakeSkipLister{}, ingestion, &memoryImageStorage{},
		NewExtractionService(model, nil, time.Second), nil, nil, nil, MarksheetConfig{})

	result := svc.Process(context.Background(), fileOf("sheet.jpg", "pixels"))
	require.Equal(t, models.UploadStatusCompleted, result.Status, result.Error)
	assert.Equal(t, 2, result.StudentCount)
	assert.Equal(t, 3, result.SkippedCount)

	students := ingestion.got[result.UploadID]
	require.Len(t, students, 2)
	assert.Equal(t, "1", students[0].RollNumber)
	assert.Equal(t, "5", students[1].RollNumber)

	skipped := ingestion.skipped[result.UploadID]
	require.Len(t, skipped, 3)
	assert.Equal(t, 1, skipped[0].RecordIndex)
	assert.Contains(t, skipped[0].Reason, "subjects is required")
	assert.Equal(t, 2, skipped[1].RecordIndex)
	assert.Contains(t, skipped[1].Reason, "enrollment_number is longer than 100 characters")
	assert.Equal(t, 3, skipped[2].RecordIndex)
	assert.Contains(t, skipped[2].Reason, "outside 0-100")
	assert.Equal(t, models.UploadStatusCompleted, uploads.uploads[result.UploadID].Status)
}
