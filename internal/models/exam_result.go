package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ResultStatus classifies a graded submission.
type ResultStatus string

const (
	StatusPass ResultStatus = "Pass"
	StatusFail ResultStatus = "Fail"
)

// Remark bands for the graded percentage.
const (
	RemarkExcellent = "Excellent"
	RemarkVeryGood  = "Very Good"
	RemarkGood      = "Good"
	RemarkFair      = "Fair"
	RemarkPoor      = "Poor"
)

// QuestionOutcome records one question's audit entry within a result.
type QuestionOutcome struct {
	Question      string `json:"question"`
	CorrectAnswer string `json:"correct_answer"`
	Correct       bool   `json:"correct"`
}

// OutcomeList is the ordered per-question outcome list, stored as jsonb.
type OutcomeList []QuestionOutcome

// Value implements driver.Valuer.
func (o OutcomeList) Value() (driver.Value, error) {
	if o == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(o)
}

// Scan implements sql.Scanner.
func (o *OutcomeList) Scan(src interface{}) error {
	if src == nil {
		*o = nil
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("outcome list: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, o)
}

// ExamResult is the persisted, graded outcome of one submission. It is
// immutable after creation except for the publication flag.
type ExamResult struct {
	ID             string       `db:"id" json:"id"`
	StudentID      string       `db:"student_id" json:"student_id"`
	ExamID         string       `db:"exam_id" json:"exam_id"`
	Score          int          `db:"score" json:"score"`
	TotalQuestions int          `db:"total_questions" json:"total_questions"`
	Grade          float64      `db:"grade" json:"grade"`
	Status         ResultStatus `db:"status" json:"status"`
	Remarks        string       `db:"remarks" json:"remarks"`
	Outcomes       OutcomeList  `db:"outcomes" json:"outcomes"`
	IsPublished    bool         `db:"is_published" json:"is_published"`
	Term           string       `db:"term" json:"term"`
	Level          ClassLevel   `db:"level" json:"level"`
	AcademicYear   string       `db:"academic_year" json:"academic_year"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	PublishedAt    *time.Time   `db:"published_at" json:"published_at,omitempty"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// StudentResultView is what the student-facing read path returns. Unpublished
// results carry only existence and pending status, never graded content.
type StudentResultView struct {
	ID           string       `json:"id"`
	ExamID       string       `json:"exam_id"`
	Term         string       `json:"term"`
	AcademicYear string       `json:"academic_year"`
	Pending      bool         `json:"pending"`
	Score        *int         `json:"score,omitempty"`
	Grade        *float64     `json:"grade,omitempty"`
	Status       ResultStatus `json:"status,omitempty"`
	Remarks      string       `json:"remarks,omitempty"`
	Outcomes     OutcomeList  `json:"outcomes,omitempty"`
	SubmittedAt  time.Time    `json:"submitted_at"`
}

// RedactedView derives the student-facing projection of a result.
func (r *ExamResult) RedactedView() StudentResultView {
	view := StudentResultView{
		ID:           r.ID,
		ExamID:       r.ExamID,
		Term:         r.Term,
		AcademicYear: r.AcademicYear,
		Pending:      !r.IsPublished,
		SubmittedAt:  r.CreatedAt,
	}
	if r.IsPublished {
		score := r.Score
		grade := r.Grade
		view.Score = &score
		view.Grade = &grade
		view.Status = r.Status
		view.Remarks = r.Remarks
		view.Outcomes = r.Outcomes
	}
	return view
}
