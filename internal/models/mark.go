package models

const (
	componentMaximum = 100
	passThreshold    = 33
)

// Mark holds one student's scores for one subject. Nil components were not
// shown on the marksheet.
type Mark struct {
	ID                string `db:"id" json:"id"`
	StudentID         string `db:"student_id" json:"student_id"`
	SubjectID         string `db:"subject_id" json:"subject_id"`
	SubjectCode       string `db:"subject_code" json:"subject_code"`
	SubjectName       string `db:"subject_name" json:"subject_name"`
	TheoryESE         *int   `db:"theory_ese" json:"theory_ese"`
	TheoryInternal    *int   `db:"theory_internal" json:"theory_internal"`
	PracticalMarks    *int   `db:"practical_marks" json:"practical"`
	PracticalInternal *int   `db:"practical_internal" json:"practical_internal"`
}

// HasTheory reports whether any theory component is present.
func (m Mark) HasTheory() bool {
	return m.TheoryESE != nil || m.TheoryInternal != nil
}

// HasPractical reports whether any practical component is present.
func (m Mark) HasPractical() bool {
	return m.PracticalMarks != nil || m.PracticalInternal != nil
}

// TheoryTotal sums the theory components, counting absent ones as zero.
func (m Mark) TheoryTotal() int {
	return valueOf(m.TheoryESE) + valueOf(m.TheoryInternal)
}

// PracticalTotal sums the practical components, counting absent ones as zero.
func (m Mark) PracticalTotal() int {
	return valueOf(m.PracticalMarks) + valueOf(m.PracticalInternal)
}

// Total is the subject score.
func (m Mark) Total() int {
	return m.TheoryTotal() + m.PracticalTotal()
}

// Maximum grants 100 per present pair, regardless of how many components of
// the pair are present.
func (m Mark) Maximum() int {
	max := 0
	if m.HasTheory() {
		max += componentMaximum
	}
	if m.HasPractical() {
		max += componentMaximum
	}
	return max
}

// IsFailed reports a theory ESE or practical score below the pass threshold.
// Internal assessments never fail a subject.
func (m Mark) IsFailed() bool {
	if m.TheoryESE != nil && *m.TheoryESE < passThreshold {
		return true
	}
	if m.PracticalMarks != nil && *m.PracticalMarks < passThreshold {
		return true
	}
	return false
}

func valueOf(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
