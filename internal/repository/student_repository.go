package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marksheet-ocr-api/internal/models"
)

const studentColumns = "s.id, s.upload_id, s.roll_number, s.name, s.father_name, s.mother_name, s.enrollment_number, s.created_at"

const markColumns = `m.id, m.student_id, m.subject_id, sub.code AS subject_code, sub.name AS subject_name,
        m.theory_ese, m.theory_internal, m.practical_marks, m.practical_internal`

// StudentRepository manages persistence for extracted students and their marks.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create inserts a student using exec, which is normally the ingestion transaction.
func (r *StudentRepository) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO students (id, upload_id, roll_number, name, father_name, mother_name, enrollment_number, created_at)
        VALUES (:id, :upload_id, :roll_number, :name, :father_name, :mother_name, :enrollment_number, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// CreateMark inserts one mark row.
func (r *StudentRepository) CreateMark(ctx context.Context, exec sqlx.ExtContext, mark *models.Mark) error {
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}
	const query = `INSERT INTO marks (id, student_id, subject_id, theory_ese, theory_internal, practical_marks, practical_internal)
        VALUES (:id, :student_id, :subject_id, :theory_ese, :theory_internal, :practical_marks, :practical_internal)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, mark); err != nil {
		return fmt.Errorf("create mark: %w", err)
	}
	return nil
}

// ListByUpload returns an upload's students ordered by roll number with marks
// ordered by subject code.
func (r *StudentRepository) ListByUpload(ctx context.Context, uploadID string) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.upload_id = $1 ORDER BY s.roll_number ASC, s.id ASC", studentColumns)
	students := make([]models.Student, 0)
	if err := r.db.SelectContext(ctx, &students, query, uploadID); err != nil {
		return nil, fmt.Errorf("list students by upload: %w", err)
	}
	if err := r.attachMarks(ctx, students); err != nil {
		return nil, err
	}
	return students, nil
}

// List searches students across uploads by roll number, name or father name.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	if filter.UploadID != "" {
		args = append(args, filter.UploadID)
		conditions = append(conditions, fmt.Sprintf("s.upload_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.roll_number) LIKE $%d OR LOWER(s.name) LIKE $%d OR LOWER(s.father_name) LIKE $%d)", n, n, n))
	}
	base := "FROM students s WHERE " + strings.Join(conditions, " AND ")

	size := normalizePageSize(filter.PageSize)
	offset := (normalizePage(filter.Page) - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY s.roll_number ASC, s.id ASC LIMIT %d OFFSET %d", studentColumns, base, size, offset)
	students := make([]models.Student, 0)
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	if err := r.attachMarks(ctx, students); err != nil {
		return nil, 0, err
	}
	return students, total, nil
}

// FindByID fetches a student with marks.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	students := []models.Student{student}
	if err := r.attachMarks(ctx, students); err != nil {
		return nil, err
	}
	return &students[0], nil
}

func (r *StudentRepository) attachMarks(ctx context.Context, students []models.Student) error {
	if len(students) == 0 {
		return nil
	}
	ids := make([]string, len(students))
	index := make(map[string]int, len(students))
	for i, s := range students {
		ids[i] = s.ID
		index[s.ID] = i
		students[i].Marks = make([]models.Mark, 0)
	}

	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %s FROM marks m
        JOIN subjects sub ON sub.id = m.subject_id
        WHERE m.student_id IN (?)
        ORDER BY sub.code ASC, sub.name ASC`, markColumns), ids)
	if err != nil {
		return fmt.Errorf("build marks query: %w", err)
	}

	var marks []models.Mark
	if err := r.db.SelectContext(ctx, &marks, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("list marks: %w", err)
	}
	for _, m := range marks {
		if i, ok := index[m.StudentID]; ok {
			students[i].Marks = append(students[i].Marks, m)
		}
	}
	return nil
}
