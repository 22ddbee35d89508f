package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-portal-api/internal/models"
	"github.com/noah-isme/school-portal-api/pkg/config"
	appErrors "github.com/noah-isme/school-portal-api/pkg/errors"
	"github.com/noah-isme/school-portal-api/pkg/jobs"
)

// PromotionJobType labels promotion retry jobs on the background queue.
const PromotionJobType = "promotion_retry"

type submissionStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type examCatalogReader interface {
	FindWithQuestions(ctx context.Context, id string) (*models.ExamWithQuestions, error)
}

type resultLedgerWriter interface {
	Exists(ctx context.Context, studentID, examID string) (bool, error)
	Insert(ctx context.Context, result *models.ExamResult) error
	Scope() string
}

type promotionApplier interface {
	ApplyPassing(ctx context.Context, studentID string) (*PromotionOutcome, error)
}

type promotionRetryQueue interface {
	Enqueue(job jobs.Job) error
}

// SubmitExamRequest is one student's attempt at one exam: an ordered answer
// list mirroring the exam's question order.
type SubmitExamRequest struct {
	StudentID string   `json:"student_id" validate:"required"`
	ExamID    string   `json:"exam_id" validate:"required"`
	Answers   []string `json:"answers" validate:"required"`
}

// SubmissionReceipt confirms a recorded submission. Grades are never
// returned synchronously; students see content only after publication.
type SubmissionReceipt struct {
	ResultID         string `json:"result_id"`
	Status           string `json:"status"`
	PromotionPending bool   `json:"promotion_pending,omitempty"`
}

// SubmissionService runs the validate -> grade -> persist -> promote unit of
// work for incoming submissions.
type SubmissionService struct {
	students   submissionStudentReader
	catalog    examCatalogReader
	ledger     resultLedgerWriter
	promotions promotionApplier
	retryQueue promotionRetryQueue
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	threshold  float64

	// locks serialises the duplicate check and insert per uniqueness key.
	// The storage layer's unique index closes the same race across
	// processes; this keeps the common case from ever reaching it.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(students submissionStudentReader, catalog examCatalogReader, ledger resultLedgerWriter, promotions promotionApplier, retryQueue promotionRetryQueue, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, threshold float64) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = DefaultPassThreshold
	}
	return &SubmissionService{
		students:   students,
		catalog:    catalog,
		ledger:     ledger,
		promotions: promotions,
		retryQueue: retryQueue,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		threshold:  threshold,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Submit validates, grades and records one submission. On a passing result
// the student is advanced one level; if that advancement fails the result is
// kept and the promotion is retried in the background (degraded success).
func (s *SubmissionService) Submit(ctx context.Context, req SubmitExamRequest) (*SubmissionReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	lock := s.lockFor(req.StudentID, req.ExamID)
	lock.Lock()
	defer lock.Unlock()

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	bundle, err := s.catalog.FindWithQuestions(ctx, req.ExamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	if len(bundle.Questions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exam has no questions")
	}

	if len(req.Answers) != len(bundle.Questions) {
		return nil, appErrors.ErrIncompleteSubmission
	}

	if !student.Eligible() {
		return nil, appErrors.ErrNotEligible
	}

	exists, err := s.ledger.Exists(ctx, req.StudentID, req.ExamID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prior submissions")
	}
	if exists {
		return nil, appErrors.ErrAlreadySubmitted
	}

	report := GradeSubmission(bundle.Questions, req.Answers, s.threshold)

	result := &models.ExamResult{
		ID:             uuid.NewString(),
		StudentID:      student.ID,
		ExamID:         bundle.Exam.ID,
		Score:          report.CorrectCount,
		TotalQuestions: len(bundle.Questions),
		Grade:          report.Grade,
		Status:         report.Status,
		Remarks:        report.Remarks,
		Outcomes:       report.Outcomes,
		Term:           bundle.Exam.Term,
		Level:          bundle.Exam.Level,
		AcademicYear:   bundle.Exam.AcademicYear,
	}

	if err := s.ledger.Insert(ctx, result); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrAlreadySubmitted.Code {
			return nil, appErrors.ErrAlreadySubmitted
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist result")
	}

	s.metrics.RecordSubmissionGraded(string(report.Status))
	s.logger.Info("submission graded",
		zap.String("result_id", result.ID),
		zap.String("student_id", student.ID),
		zap.String("exam_id", bundle.Exam.ID),
		zap.String("status", string(report.Status)))

	receipt := &SubmissionReceipt{ResultID: result.ID, Status: "submitted"}

	if report.Status == models.StatusPass {
		outcome, err := s.promotions.ApplyPassing(ctx, student.ID)
		if err != nil {
			// The result is the source of truth; never roll it back for a
			// failed promotion. Retry in the background and surface the
			// degraded state to the caller.
			s.logger.Error("promotion failed after result creation",
				zap.String("result_id", result.ID),
				zap.String("student_id", student.ID),
				zap.Error(err))
			s.metrics.RecordPromotionRetry()
			receipt.PromotionPending = true
			s.enqueuePromotionRetry(result.ID, student.ID)
		} else if outcome.Advanced {
			s.metrics.RecordPromotion(string(outcome.ToLevel))
		}
	}

	return receipt, nil
}

func (s *SubmissionService) enqueuePromotionRetry(resultID, studentID string) {
	if s.retryQueue == nil {
		return
	}
	job := jobs.Job{
		ID:      resultID,
		Type:    PromotionJobType,
		Payload: studentID,
	}
	if err := s.retryQueue.Enqueue(job); err != nil {
		s.logger.Error("failed to enqueue promotion retry",
			zap.String("result_id", resultID),
			zap.String("student_id", studentID),
			zap.Error(err))
	}
}

// lockFor returns the mutex guarding the submission's uniqueness key.
func (s *SubmissionService) lockFor(studentID, examID string) *sync.Mutex {
	key := studentID
	if s.ledger.Scope() == config.ScopeStudentExam {
		key = studentID + "|" + examID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
