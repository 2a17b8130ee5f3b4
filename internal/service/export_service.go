package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/marksheet-ocr-api/internal/models"
	appErrors "github.com/noah-isme/marksheet-ocr-api/pkg/errors"
	"github.com/noah-isme/marksheet-ocr-api/pkg/export"
)

// ExportShape selects the table layout.
type ExportShape string

// ExportFormat selects the file serialization.
type ExportFormat string

const (
	ExportShapeSummary  ExportShape = "summary"
	ExportShapeDetailed ExportShape = "detailed"

	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatXLSX ExportFormat = "xlsx"
	ExportFormatPDF  ExportFormat = "pdf"
)

const (
	summarySheet  = "Marksheet Summary"
	detailedSheet = "Detailed Marks"

	grandTotalCode  = "----"
	grandTotalLabel = "GRAND TOTAL"
)

var detailedHeaders = []string{
	"Roll Number", "Student Name", "Father Name", "Subject Code", "Subject Name",
	"Theory ESE", "Theory Internal", "Theory Total",
	"Practical", "Practical Internal", "Practical Total",
	"Subject Total", "Status",
}

// ParseExportShape validates a shape name.
func ParseExportShape(raw string) (ExportShape, error) {
	switch shape := ExportShape(raw); shape {
	case ExportShapeSummary, ExportShapeDetailed:
		return shape, nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown export %q; use summary or detailed", raw))
}

// ParseExportFormat validates a format name.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch format := ExportFormat(raw); format {
	case ExportFormatCSV, ExportFormatXLSX, ExportFormatPDF:
		return format, nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown format %q; use csv, xlsx or pdf", raw))
}

type exportUploadRepository interface {
	FindByID(ctx context.Context, id string) (*models.UploadBatch, error)
}

// ExportConfig caps spreadsheet column widths per shape.
type ExportConfig struct {
	SummaryColumnWidthCap  float64
	DetailedColumnWidthCap float64
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders an upload's students as summary or detailed tables.
type ExportService struct {
	uploads   exportUploadRepository
	students  uploadStudentRepository
	metrics   *MetricsService
	logger    *zap.Logger
	renderers map[ExportShape]map[ExportFormat]export.Renderer
}

// NewExportService constructs an ExportService.
func NewExportService(uploads exportUploadRepository, students uploadStudentRepository, metrics *MetricsService, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	csv := export.NewCSVExporter()
	pdf := export.NewPDFExporter()
	return &ExportService{
		uploads:  uploads,
		students: students,
		metrics:  metrics,
		logger:   logger,
		renderers: map[ExportShape]map[ExportFormat]export.Renderer{
			ExportShapeSummary: {
				ExportFormatCSV:  csv,
				ExportFormatXLSX: export.NewXLSXExporter(cfg.SummaryColumnWidthCap),
				ExportFormatPDF:  pdf,
			},
			ExportShapeDetailed: {
				ExportFormatCSV:  csv,
				ExportFormatXLSX: export.NewXLSXExporter(cfg.DetailedColumnWidthCap),
				ExportFormatPDF:  pdf,
			},
		},
	}
}

// Export renders the students of upload id. Uploads that are not completed
// export headers only.
func (s *ExportService) Export(ctx context.Context, id string, shape ExportShape, format ExportFormat) (*ExportFile, error) {
	renderer, ok := s.renderers[shape][format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export %s.%s", shape, format))
	}

	if _, err := s.uploads.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "upload not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upload")
	}
	students, err := s.students.ListByUpload(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}

	var dataset export.Dataset
	if shape == ExportShapeSummary {
		dataset = BuildSummaryDataset(students)
	} else {
		dataset = BuildDetailedDataset(students)
	}

	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.metrics.RecordExport(string(shape), string(format))
	s.logger.Debug("export rendered", zap.String("upload_id", id), zap.String("shape", string(shape)),
		zap.String("format", string(format)), zap.Int("rows", len(dataset.Rows)))

	return &ExportFile{
		Filename:    fmt.Sprintf("marksheet_%s_%s.%s", shape, id, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Payload:     payload,
	}, nil
}

type subjectColumns struct {
	code         string
	hasTheory    bool
	hasPractical bool
}

// BuildSummaryDataset lays out one row per student with a column block per
// subject code. The column set is the union over all students.
func BuildSummaryDataset(students []models.Student) export.Dataset {
	withEnrollment := false
	blocks := map[string]*subjectColumns{}
	for _, st := range students {
		if st.EnrollmentNumber != "" {
			withEnrollment = true
		}
		for _, m := range st.Marks {
			b, ok := blocks[m.SubjectCode]
			if !ok {
				b = &subjectColumns{code: m.SubjectCode}
				blocks[m.SubjectCode] = b
			}
			b.hasTheory = b.hasTheory || m.HasTheory()
			b.hasPractical = b.hasPractical || m.HasPractical()
		}
	}
	codes := make([]string, 0, len(blocks))
	for code := range blocks {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	headers := []string{"Roll Number", "Student Name", "Father Name"}
	if withEnrollment {
		headers = append(headers, "Enrollment Number")
	}
	for _, code := range codes {
		b := blocks[code]
		headers = append(headers, code+" - Subject")
		if b.hasTheory {
			headers = append(headers, code+" - Theory ESE", code+" - Theory Internal", code+" - Theory Total")
		}
		if b.hasPractical {
			headers = append(headers, code+" - Practical", code+" - Practical Int", code+" - Practical Total")
		}
		headers = append(headers, code+" - Total Marks")
	}
	headers = append(headers, "Grand Total", "Percentage", "Result")

	rows := make([][]string, 0, len(students))
	for _, st := range students {
		byCode := make(map[string]models.Mark, len(st.Marks))
		for _, m := range st.Marks {
			byCode[m.SubjectCode] = m
		}

		row := []string{st.RollNumber, st.Name, st.FatherName}
		if withEnrollment {
			row = append(row, st.EnrollmentNumber)
		}
		for _, code := range codes {
			b := blocks[code]
			m, has := byCode[code]
			if !has {
				row = append(row, make([]string, blockWidth(b))...)
				continue
			}
			row = append(row, m.SubjectName)
			if b.hasTheory {
				row = append(row, pairCells(m.HasTheory(), m.TheoryESE, m.TheoryInternal, m.TheoryTotal())...)
			}
			if b.hasPractical {
				row = append(row, pairCells(m.HasPractical(), m.PracticalMarks, m.PracticalInternal, m.PracticalTotal())...)
			}
			row = append(row, strconv.Itoa(m.Total()))
		}
		row = append(row,
			strconv.Itoa(st.TotalMarks()),
			fmt.Sprintf("%.2f%%", st.Percentage()),
			st.Result(),
		)
		rows = append(rows, row)
	}

	return export.Dataset{Sheet: summarySheet, Headers: headers, Rows: rows}
}

// BuildDetailedDataset lists one row per student subject, followed by one
// grand total row per student.
func BuildDetailedDataset(students []models.Student) export.Dataset {
	rows := make([][]string, 0)
	for _, st := range students {
		marks := append([]models.Mark(nil), st.Marks...)
		sort.SliceStable(marks, func(i, j int) bool {
			if marks[i].SubjectCode != marks[j].SubjectCode {
				return marks[i].SubjectCode < marks[j].SubjectCode
			}
			return marks[i].SubjectName < marks[j].SubjectName
		})
		for _, m := range marks {
			status := models.ResultPass
			if m.IsFailed() {
				status = models.ResultFail
			}
			row := []string{st.RollNumber, st.Name, st.FatherName, m.SubjectCode, m.SubjectName}
			row = append(row, pairCells(m.HasTheory(), m.TheoryESE, m.TheoryInternal, m.TheoryTotal())...)
			row = append(row, pairCells(m.HasPractical(), m.PracticalMarks, m.PracticalInternal, m.PracticalTotal())...)
			row = append(row, strconv.Itoa(m.Total()), status)
			rows = append(rows, row)
		}
	}

	for _, st := range students {
		rows = append(rows, []string{
			st.RollNumber, st.Name, st.FatherName, grandTotalCode, grandTotalLabel,
			"", "", "", "", "", "",
			strconv.Itoa(st.TotalMarks()), st.Result(),
		})
	}

	return export.Dataset{Sheet: detailedSheet, Headers: detailedHeaders, Rows: rows}
}

func blockWidth(b *subjectColumns) int {
	width := 2
	if b.hasTheory {
		width += 3
	}
	if b.hasPractical {
		width += 3
	}
	return width
}

// pairCells renders a component pair and its total. An absent pair is blank;
// an absent component inside a present pair is 0.
func pairCells(present bool, first, second *int, total int) []string {
	if !present {
		return []string{"", "", ""}
	}
	return []string{scoreCell(first), scoreCell(second), strconv.Itoa(total)}
}

func scoreCell(v *int) string {
	if v == nil {
		return "0"
	}
	return strconv.Itoa(*v)
}
