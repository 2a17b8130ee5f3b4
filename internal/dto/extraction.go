package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FlexString accepts a JSON string, number or null. Vision models are not
// consistent about quoting roll numbers and subject codes.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*f = FlexString(n.String())
	}
	return nil
}

// String returns the underlying value.
func (f FlexString) String() string { return string(f) }

// scorePlaceholders mark a score cell that was printed but left empty.
var scorePlaceholders = map[string]struct{}{
	"":    {},
	"...": {},
	"-":   {},
	"--":  {},
}

// OptionalScore is a mark component that may be absent. Integers, integral
// floats and numeric strings are accepted; anything else fails decoding.
type OptionalScore struct {
	Value int
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalScore) UnmarshalJSON(data []byte) error {
	*o = OptionalScore{}
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if _, ok := scorePlaceholders[raw]; ok {
			return nil
		}
	}

	v, err := parseScore(raw)
	if err != nil {
		return err
	}
	o.Value, o.Set = v, true
	return nil
}

// Ptr returns nil for an absent score.
func (o OptionalScore) Ptr() *int {
	if !o.Set {
		return nil
	}
	v := o.Value
	return &v
}

func parseScore(raw string) (int, error) {
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("score %q is not a number", raw)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("score %q is not a whole number", raw)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("score %q is out of range", raw)
	}
	return int(f), nil
}

// StudentRecord is one element of the array returned by the vision model.
// Length limits mirror the students and subjects columns.
type StudentRecord struct {
	RollNumber       FlexString      `json:"roll_number" validate:"required,max=50"`
	Name             FlexString      `json:"name" validate:"required,max=200"`
	FatherName       FlexString      `json:"father_name" validate:"max=200"`
	MotherName       FlexString      `json:"mother_name" validate:"max=200"`
	EnrollmentNumber FlexString      `json:"enrollment_number" validate:"max=100"`
	Subjects         []SubjectRecord `json:"subjects" validate:"required,min=1,dive"`

	// Stated by the model; logged for comparison, never stored.
	Percentage FlexString `json:"percentage"`
	Result     FlexString `json:"result"`
}

// SubjectRecord is one subject row inside a StudentRecord.
type SubjectRecord struct {
	Code              FlexString    `json:"code" validate:"required,max=50"`
	Name              FlexString    `json:"name" validate:"required,max=200"`
	TheoryESE         OptionalScore `json:"theory_ese"`
	TheoryInternal    OptionalScore `json:"theory_internal"`
	Practical         OptionalScore `json:"practical"`
	PracticalInternal OptionalScore `json:"practical_internal"`
}

// StudentInput is a validated record ready for persistence.
type StudentInput struct {
	RollNumber       string
	Name             string
	FatherName       string
	MotherName       string
	EnrollmentNumber string
	Subjects         []SubjectInput
}

// SubjectInput carries one subject's validated scores.
type SubjectInput struct {
	Code              string
	Name              string
	TheoryESE         *int
	TheoryInternal    *int
	PracticalMarks    *int
	PracticalInternal *int
}
