package models

import "time"

// Result labels derived from a student's marks.
const (
	ResultNotAvailable = "N/A"
	ResultFail         = "FAIL"
	ResultPassFirst    = "PASS FIRST"
	ResultPassSecond   = "PASS SECOND"
	ResultPassThird    = "PASS THIRD"
	ResultPass         = "PASS"
)

// Division thresholds in hundredths of a percent.
const (
	firstDivision  = 7500
	secondDivision = 6000
	thirdDivision  = 4500
	passDivision   = 3300
)

// Student is one person read from a marksheet. Optional text fields are
// stored as empty strings.
type Student struct {
	ID               string    `db:"id" json:"id"`
	UploadID         string    `db:"upload_id" json:"upload_id"`
	RollNumber       string    `db:"roll_number" json:"roll_number"`
	Name             string    `db:"name" json:"name"`
	FatherName       string    `db:"father_name" json:"father_name"`
	MotherName       string    `db:"mother_name" json:"mother_name"`
	EnrollmentNumber string    `db:"enrollment_number" json:"enrollment_number"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`

	Marks []Mark `db:"-" json:"marks"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	UploadID string
	Page     int
	PageSize int
}

// TotalMarks sums every subject total.
func (s Student) TotalMarks() int {
	total := 0
	for _, m := range s.Marks {
		total += m.Total()
	}
	return total
}

// MaximumMarks sums every subject maximum.
func (s Student) MaximumMarks() int {
	max := 0
	for _, m := range s.Marks {
		max += m.Maximum()
	}
	return max
}

// Percentage is 100*total/maximum rounded half-up to two decimals, or 0 when
// there is nothing to divide by.
func (s Student) Percentage() float64 {
	return float64(s.percentageHundredths()) / 100
}

// Result applies the failure rule first, then the division bands.
func (s Student) Result() string {
	if len(s.Marks) == 0 {
		return ResultNotAvailable
	}
	for _, m := range s.Marks {
		if m.IsFailed() {
			return ResultFail
		}
	}

	switch p := s.percentageHundredths(); {
	case p >= firstDivision:
		return ResultPassFirst
	case p >= secondDivision:
		return ResultPassSecond
	case p >= thirdDivision:
		return ResultPassThird
	case p >= passDivision:
		return ResultPass
	default:
		return ResultFail
	}
}

// percentageHundredths rounds 10000*total/max half-up using integers only, so
// 1/800 yields 13 rather than the 12 that binary floats would produce.
func (s Student) percentageHundredths() int64 {
	if len(s.Marks) == 0 {
		return 0
	}
	max := int64(s.MaximumMarks())
	if max == 0 {
		return 0
	}
	total := int64(s.TotalMarks())
	return (20000*total + max) / (2 * max)
}
