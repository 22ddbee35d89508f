package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-portal-api/internal/models"
	appErrors "github.com/noah-isme/school-portal-api/pkg/errors"
)

type examRepository interface {
	Create(ctx context.Context, exam *models.Exam, questions []models.Question) error
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	FindWithQuestions(ctx context.Context, id string) (*models.ExamWithQuestions, error)
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error)
}

// CreateQuestionRequest is one question within a create-exam payload. Order in
// the request slice fixes the grading order.
type CreateQuestionRequest struct {
	Prompt        string `json:"prompt" validate:"required"`
	CorrectAnswer string `json:"correct_answer" validate:"required"`
}

// CreateExamRequest is the staff payload for defining an exam.
type CreateExamRequest struct {
	Title        string                  `json:"title" validate:"required"`
	Term         string                  `json:"term" validate:"required"`
	Level        models.ClassLevel       `json:"level" validate:"required"`
	AcademicYear string                  `json:"academic_year" validate:"required"`
	PassMark     float64                 `json:"pass_mark" validate:"gte=0,lte=100"`
	Questions    []CreateQuestionRequest `json:"questions" validate:"required,min=1,dive"`
}

// ExamService manages the exam catalog.
type ExamService struct {
	repo      examRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs an ExamService.
func NewExamService(repo examRepository, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{repo: repo, validator: validate, logger: logger}
}

// Create defines a new exam with its ordered questions.
func (s *ExamService) Create(ctx context.Context, req CreateExamRequest) (*models.ExamWithQuestions, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}

	exam := &models.Exam{
		Title:        req.Title,
		Term:         req.Term,
		Level:        req.Level,
		AcademicYear: req.AcademicYear,
		PassMark:     req.PassMark,
	}
	questions := make([]models.Question, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = models.Question{Prompt: q.Prompt, CorrectAnswer: q.CorrectAnswer}
	}

	if err := s.repo.Create(ctx, exam, questions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}

	s.logger.Info("exam created",
		zap.String("exam_id", exam.ID),
		zap.String("title", exam.Title),
		zap.Int("questions", len(questions)))

	return &models.ExamWithQuestions{Exam: *exam, Questions: questions}, nil
}

// Get fetches one exam with its questions.
func (s *ExamService) Get(ctx context.Context, id string) (*models.ExamWithQuestions, error) {
	bundle, err := s.repo.FindWithQuestions(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return bundle, nil
}

// List returns catalog entries matching the filter.
func (s *ExamService) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error) {
	exams, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	return exams, total, nil
}
