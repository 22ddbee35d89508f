package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-portal-api/internal/models"
	appErrors "github.com/noah-isme/school-portal-api/pkg/errors"
)

// Promotion trigger scopes. The legacy behaviour advances a student on ANY
// passing result, regardless of exam, subject or term. That policy is held
// here as an explicit parameter so a later correction can scope it without
// restructuring the state machine.
const (
	TriggerAnyPass = "any_pass"
)

// PromotionPolicy parameterises when the state machine fires.
type PromotionPolicy struct {
	TriggerScope string
}

// PromotionOutcome describes the effect of one promotion attempt.
type PromotionOutcome struct {
	StudentID     string            `json:"student_id"`
	FromLevel     models.ClassLevel `json:"from_level"`
	ToLevel       models.ClassLevel `json:"to_level"`
	Advanced      bool              `json:"advanced"`
	Graduated     bool              `json:"graduated"`
	YearGraduated *int              `json:"year_graduated,omitempty"`
}

type promotionStudentRepo interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	AdvanceLevel(ctx context.Context, id string, newLevel models.ClassLevel, graduated bool, yearGraduated *int) (*models.Student, error)
}

// PromotionService advances a student one academic level per passing result.
// Transitions: Level100 -> 200 -> 300 -> 400 -> Graduated (terminal). No
// transition skips a level and none is reversible; any other current level
// is a no-op, never an error.
type PromotionService struct {
	students promotionStudentRepo
	policy   PromotionPolicy
	logger   *zap.Logger
	now      func() time.Time
}

// NewPromotionService constructs a PromotionService.
func NewPromotionService(students promotionStudentRepo, policy PromotionPolicy, logger *zap.Logger) *PromotionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.TriggerScope == "" {
		policy.TriggerScope = TriggerAnyPass
	}
	return &PromotionService{students: students, policy: policy, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Policy returns the active promotion policy.
func (s *PromotionService) Policy() PromotionPolicy {
	return s.policy
}

// ApplyPassing advances the student one level following a passing result.
// Already-graduated students and unknown levels are reported as
// Advanced=false with no state change.
func (s *PromotionService) ApplyPassing(ctx context.Context, studentID string) (*PromotionOutcome, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPromotionFailure.Code, appErrors.ErrPromotionFailure.Status, "failed to load student for promotion")
	}

	outcome := &PromotionOutcome{
		StudentID: studentID,
		FromLevel: student.ClassLevel,
		ToLevel:   student.ClassLevel,
	}

	if student.IsGraduated {
		return outcome, nil
	}

	next, graduates, ok := student.ClassLevel.Next()
	if !ok {
		s.logger.Warn("promotion skipped for unrecognised level",
			zap.String("student_id", studentID),
			zap.String("class_level", string(student.ClassLevel)))
		return outcome, nil
	}

	var yearGraduated *int
	if graduates {
		year := s.now().Year()
		yearGraduated = &year
	}

	updated, err := s.students.AdvanceLevel(ctx, studentID, next, graduates, yearGraduated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race against another promotion; terminal state wins.
			return outcome, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPromotionFailure.Code, appErrors.ErrPromotionFailure.Status, "failed to persist level change")
	}

	outcome.ToLevel = updated.ClassLevel
	outcome.Advanced = true
	outcome.Graduated = updated.IsGraduated
	outcome.YearGraduated = updated.YearGraduated

	s.logger.Info("student promoted",
		zap.String("student_id", studentID),
		zap.String("from", string(outcome.FromLevel)),
		zap.String("to", string(outcome.ToLevel)),
		zap.Bool("graduated", outcome.Graduated))

	return outcome, nil
}
