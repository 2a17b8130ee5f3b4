package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/marksheet-ocr-api/internal/dto"
	"github.com/noah-isme/marksheet-ocr-api/internal/models"
	appErrors "github.com/noah-isme/marksheet-ocr-api/pkg/errors"
	"github.com/noah-isme/marksheet-ocr-api/pkg/vision"
)

const (
	defaultExtractionTimeout = 3 * time.Minute
	minScore                 = 0
	maxScore                 = 100
)

type visionModel interface {
	Complete(ctx context.Context, prompt string, img vision.Image) (string, error)
}

// ExtractionResult is the adapted model output for one image.
type ExtractionResult struct {
	Students []dto.StudentInput
	Skipped  []models.ExtractionSkip
}

// ExtractionService asks the vision model to read a marksheet and turns its
// answer into validated student inputs.
type ExtractionService struct {
	model     visionModel
	validator *validator.Validate
	logger    *zap.Logger
	timeout   time.Duration
}

// NewExtractionService constructs the extraction adapter. It keeps a private
// validator that reports JSON field names.
func NewExtractionService(model visionModel, logger *zap.Logger, timeout time.Duration) *ExtractionService {
	validate := validator.New()
	validate.RegisterTagNameFunc(jsonFieldName)
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultExtractionTimeout
	}
	return &ExtractionService{model: model, validator: validate, logger: logger, timeout: timeout}
}

// Extract calls the model under the configured timeout and adapts the
// response. Transport problems surface as EXTRACTION_FAILED, malformed
// payloads as EXTRACTION_CONTRACT.
func (s *ExtractionService) Extract(ctx context.Context, img vision.Image) (*ExtractionResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.model.Complete(callCtx, marksheetPrompt, img)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, appErrors.Wrap(err, appErrors.ErrExtractionFailed.Code, appErrors.ErrExtractionFailed.Status,
				fmt.Sprintf("extraction timed out after %s", s.timeout))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrExtractionFailed.Code, appErrors.ErrExtractionFailed.Status, "vision model request failed")
	}

	raw, err := ParseStudentRecords(text)
	if err != nil {
		return nil, err
	}

	students, skipped := s.Normalize(raw)
	return &ExtractionResult{Students: students, Skipped: skipped}, nil
}

// ParseStudentRecords strips markdown fences and splits the top-level JSON
// array into raw elements. Anything other than an array is a contract error.
func ParseStudentRecords(text string) ([]json.RawMessage, error) {
	body := bytes.TrimSpace([]byte(stripCodeFence(text)))
	if len(body) == 0 {
		return nil, appErrors.Clone(appErrors.ErrExtractionContract, "extraction response is empty")
	}
	if body[0] != '[' {
		return nil, appErrors.Clone(appErrors.ErrExtractionContract, "extraction response is not a JSON array")
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExtractionContract.Code, appErrors.ErrExtractionContract.Status,
			"extraction response is not valid JSON")
	}
	return records, nil
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "JSON")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// Normalize validates each raw record independently. Invalid records become
// skips carrying their index, a reason and the raw element; valid siblings
// are kept in input order.
func (s *ExtractionService) Normalize(raw []json.RawMessage) ([]dto.StudentInput, []models.ExtractionSkip) {
	students := make([]dto.StudentInput, 0, len(raw))
	var skipped []models.ExtractionSkip

	for i, element := range raw {
		input, record, err := s.normalizeRecord(element)
		if err != nil {
			s.logger.Warn("skipping extracted record", zap.Int("index", i), zap.String("reason", err.Error()))
			skipped = append(skipped, models.ExtractionSkip{
				RecordIndex: i,
				Reason:      err.Error(),
				Payload:     append([]byte(nil), element...),
			})
			continue
		}
		s.logStatedResult(record, input)
		students = append(students, input)
	}
	return students, skipped
}

func (s *ExtractionService) normalizeRecord(element json.RawMessage) (dto.StudentInput, *dto.StudentRecord, error) {
	var record dto.StudentRecord
	if err := json.Unmarshal(element, &record); err != nil {
		return dto.StudentInput{}, nil, fmt.Errorf("undecodable record: %w", err)
	}
	if err := s.validator.Struct(record); err != nil {
		return dto.StudentInput{}, nil, describeValidation(err)
	}

	input := dto.StudentInput{
		RollNumber:       record.RollNumber.String(),
		Name:             record.Name.String(),
		FatherName:       record.FatherName.String(),
		MotherName:       record.MotherName.String(),
		EnrollmentNumber: record.EnrollmentNumber.String(),
		Subjects:         make([]dto.SubjectInput, 0, len(record.Subjects)),
	}

	seen := make(map[[2]string]struct{}, len(record.Subjects))
	for i, sub := range record.Subjects {
		key := [2]string{sub.Code.String(), sub.Name.String()}
		if _, dup := seen[key]; dup {
			return dto.StudentInput{}, nil, fmt.Errorf("subjects[%d] repeats subject %s %s", i, key[0], key[1])
		}
		seen[key] = struct{}{}

		scores := map[string]dto.OptionalScore{
			"theory_ese":         sub.TheoryESE,
			"theory_internal":    sub.TheoryInternal,
			"practical":          sub.Practical,
			"practical_internal": sub.PracticalInternal,
		}
		for _, field := range []string{"theory_ese", "theory_internal", "practical", "practical_internal"} {
			if v := scores[field]; v.Set && (v.Value < minScore || v.Value > maxScore) {
				return dto.StudentInput{}, nil, fmt.Errorf("subjects[%d].%s score %d outside %d-%d", i, field, v.Value, minScore, maxScore)
			}
		}

		input.Subjects = append(input.Subjects, dto.SubjectInput{
			Code:              key[0],
			Name:              key[1],
			TheoryESE:         sub.TheoryESE.Ptr(),
			TheoryInternal:    sub.TheoryInternal.Ptr(),
			PracticalMarks:    sub.Practical.Ptr(),
			PracticalInternal: sub.PracticalInternal.Ptr(),
		})
	}
	return input, &record, nil
}

// logStatedResult compares what the model printed with what we compute.
func (s *ExtractionService) logStatedResult(record *dto.StudentRecord, input dto.StudentInput) {
	if record.Percentage == "" && record.Result == "" {
		return
	}
	student := models.Student{Marks: make([]models.Mark, 0, len(input.Subjects))}
	for _, sub := range input.Subjects {
		student.Marks = append(student.Marks, models.Mark{
			TheoryESE:         sub.TheoryESE,
			TheoryInternal:    sub.TheoryInternal,
			PracticalMarks:    sub.PracticalMarks,
			PracticalInternal: sub.PracticalInternal,
		})
	}
	s.logger.Debug("model stated result",
		zap.String("roll_number", input.RollNumber),
		zap.String("stated_percentage", record.Percentage.String()),
		zap.String("stated_result", record.Result.String()),
		zap.Float64("computed_percentage", student.Percentage()),
		zap.String("computed_result", student.Result()),
	)
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "min":
			parts = append(parts, fmt.Sprintf("%s needs at least %s entries", field, fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s is longer than %s characters", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
