package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ClassLevel is the ordinal academic-year marker tracked per student.
type ClassLevel string

const (
	Level100       ClassLevel = "LEVEL_100"
	Level200       ClassLevel = "LEVEL_200"
	Level300       ClassLevel = "LEVEL_300"
	Level400       ClassLevel = "LEVEL_400"
	LevelGraduated ClassLevel = "GRADUATED"
)

// Next returns the successor level and whether the transition graduates the
// student. Unknown or terminal levels return ok=false; callers treat that as
// a no-op, never an error.
func (l ClassLevel) Next() (next ClassLevel, graduates bool, ok bool) {
	switch l {
	case Level100:
		return Level200, false, true
	case Level200:
		return Level300, false, true
	case Level300:
		return Level400, false, true
	case Level400:
		return LevelGraduated, true, true
	default:
		return l, false, false
	}
}

// LevelHistory is the ordered list of class levels a student has attained,
// stored as a jsonb column.
type LevelHistory []ClassLevel

// Value implements driver.Valuer.
func (h LevelHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner.
func (h *LevelHistory) Scan(src interface{}) error {
	if src == nil {
		*h = nil
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("level history: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, h)
}

// Student represents a learner registered in the institution.
type Student struct {
	ID            string       `db:"id" json:"id"`
	RegNo         string       `db:"reg_no" json:"reg_no"`
	FullName      string       `db:"full_name" json:"full_name"`
	ClassLevel    ClassLevel   `db:"class_level" json:"class_level"`
	LevelHistory  LevelHistory `db:"level_history" json:"level_history"`
	IsGraduated   bool         `db:"is_graduated" json:"is_graduated"`
	YearGraduated *int         `db:"year_graduated" json:"year_graduated,omitempty"`
	IsSuspended   bool         `db:"is_suspended" json:"is_suspended"`
	IsWithdrawn   bool         `db:"is_withdrawn" json:"is_withdrawn"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// Eligible reports whether the student may sit an exam.
func (s *Student) Eligible() bool {
	return !s.IsSuspended && !s.IsWithdrawn
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Level     ClassLevel
	Graduated *bool
	Page      int
	PageSize  int
}
