package dto

import "github.com/noah-isme/marksheet-ocr-api/internal/models"

// UploadFileResult is the outcome for one submitted image.
type UploadFileResult struct {
	Filename     string              `json:"filename"`
	UploadID     string              `json:"upload_id,omitempty"`
	Status       models.UploadStatus `json:"status,omitempty"`
	StudentCount int                 `json:"student_count"`
	SkippedCount int                 `json:"skipped_count"`
	Error        string              `json:"error,omitempty"`
}

// Succeeded reports whether the file ended completed.
func (r UploadFileResult) Succeeded() bool {
	return r.Status == models.UploadStatusCompleted
}

// UploadResponse is returned by POST /uploads.
type UploadResponse struct {
	Files        []UploadFileResult `json:"files"`
	SuccessCount int                `json:"success_count"`
	FailureCount int                `json:"failure_count"`
}

// MarkResult exposes one subject with its derived totals.
type MarkResult struct {
	SubjectCode       string `json:"subject_code"`
	SubjectName       string `json:"subject_name"`
	TheoryESE         *int   `json:"theory_ese"`
	TheoryInternal    *int   `json:"theory_internal"`
	TheoryTotal       *int   `json:"theory_total"`
	Practical         *int   `json:"practical"`
	PracticalInternal *int   `json:"practical_internal"`
	PracticalTotal    *int   `json:"practical_total"`
	Total             int    `json:"total"`
	Maximum           int    `json:"maximum"`
	Status            string `json:"status"`
}

// StudentResult exposes a student with locally computed aggregates.
type StudentResult struct {
	ID               string       `json:"id"`
	UploadID         string       `json:"upload_id"`
	RollNumber       string       `json:"roll_number"`
	Name             string       `json:"name"`
	FatherName       string       `json:"father_name"`
	MotherName       string       `json:"mother_name"`
	EnrollmentNumber string       `json:"enrollment_number"`
	Marks            []MarkResult `json:"marks"`
	TotalMarks       int          `json:"total_marks"`
	MaximumMarks     int          `json:"maximum_marks"`
	Percentage       float64      `json:"percentage"`
	Result           string       `json:"result"`
}

// UploadDetail is returned by GET /uploads/:id.
type UploadDetail struct {
	Upload   models.UploadBatch      `json:"upload"`
	Students []StudentResult         `json:"students"`
	Skipped  []models.ExtractionSkip `json:"skipped"`
}

// NewMarkResult derives the presentation of a stored mark.
func NewMarkResult(m models.Mark) MarkResult {
	out := MarkResult{
		SubjectCode:       m.SubjectCode,
		SubjectName:       m.SubjectName,
		TheoryESE:         m.TheoryESE,
		TheoryInternal:    m.TheoryInternal,
		Practical:         m.PracticalMarks,
		PracticalInternal: m.PracticalInternal,
		Total:             m.Total(),
		Maximum:           m.Maximum(),
		Status:            models.ResultPass,
	}
	if m.HasTheory() {
		v := m.TheoryTotal()
		out.TheoryTotal = &v
	}
	if m.HasPractical() {
		v := m.PracticalTotal()
		out.PracticalTotal = &v
	}
	if m.IsFailed() {
		out.Status = models.ResultFail
	}
	return out
}

// NewStudentResult derives the presentation of a stored student.
func NewStudentResult(s models.Student) StudentResult {
	marks := make([]MarkResult, 0, len(s.Marks))
	for _, m := range s.Marks {
		marks = append(marks, NewMarkResult(m))
	}
	return StudentResult{
		ID:               s.ID,
		UploadID:         s.UploadID,
		RollNumber:       s.RollNumber,
		Name:             s.Name,
		FatherName:       s.FatherName,
		MotherName:       s.MotherName,
		EnrollmentNumber: s.EnrollmentNumber,
		Marks:            marks,
		TotalMarks:       s.TotalMarks(),
		MaximumMarks:     s.MaximumMarks(),
		Percentage:       s.Percentage(),
		Result:           s.Result(),
	}
}

// NewStudentResults maps a slice of students.
func NewStudentResults(students []models.Student) []StudentResult {
	out := make([]StudentResult, 0, len(students))
	for _, s := range students {
		out = append(out, NewStudentResult(s))
	}
	return out
}
