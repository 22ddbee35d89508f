package models

import "time"

// Exam is a named, ordered set of questions with pass mark and term tags.
// Questions are assumed immutable once attached; the grading contract
// depends on their order staying fixed.
type Exam struct {
	ID           string     `db:"id" json:"id"`
	Title        string     `db:"title" json:"title"`
	Term         string     `db:"term" json:"term"`
	Level        ClassLevel `db:"level" json:"level"`
	AcademicYear string     `db:"academic_year" json:"academic_year"`
	// PassMark is stored for reference. The grading engine applies its own
	// fixed threshold and does not consult this field; see ExamEngineConfig.
	PassMark  float64   `db:"pass_mark" json:"pass_mark"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Question belongs to exactly one exam. Position is significant: student
// answers are matched positionally, not by question id.
type Question struct {
	ID            string `db:"id" json:"id"`
	ExamID        string `db:"exam_id" json:"exam_id"`
	Position      int    `db:"position" json:"position"`
	Prompt        string `db:"prompt" json:"prompt"`
	CorrectAnswer string `db:"correct_answer" json:"correct_answer"`
}

// ExamWithQuestions bundles an exam with its ordered question list.
type ExamWithQuestions struct {
	Exam      Exam       `json:"exam"`
	Questions []Question `json:"questions"`
}

// ExamFilter captures list filters for the exam catalog.
type ExamFilter struct {
	Term         string
	Level        ClassLevel
	AcademicYear string
	Page         int
	PageSize     int
}
