package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-portal-api/internal/models"
	appErrors "github.com/noah-isme/school-portal-api/pkg/errors"
)

type resultLedgerReader interface {
	FindByID(ctx context.Context, id string) (*models.ExamResult, error)
	SetPublished(ctx context.Context, id string, published bool) (*models.ExamResult, error)
	ListByExam(ctx context.Context, examID string) ([]models.ExamResult, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.ExamResult, error)
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ResultService operates the publication gate and the result read paths.
// Staff see full graded content; the student-facing path never exposes the
// content of an unpublished result.
type ResultService struct {
	ledger   resultLedgerReader
	cache    resultCache
	metrics  *MetricsService
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewResultService constructs a ResultService.
func NewResultService(ledger resultLedgerReader, cache resultCache, metrics *MetricsService, logger *zap.Logger, cacheTTL time.Duration) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ResultService{ledger: ledger, cache: cache, metrics: metrics, logger: logger, cacheTTL: cacheTTL}
}

// Publish marks a result visible to its student. Publishing an already
// published result is a no-op success.
func (s *ResultService) Publish(ctx context.Context, resultID string) (*models.ExamResult, error) {
	return s.setPublished(ctx, resultID, true)
}

// Unpublish withdraws a result from student view. Idempotent like Publish.
func (s *ResultService) Unpublish(ctx context.Context, resultID string) (*models.ExamResult, error) {
	return s.setPublished(ctx, resultID, false)
}

func (s *ResultService) setPublished(ctx context.Context, resultID string, published bool) (*models.ExamResult, error) {
	result, err := s.ledger.SetPublished(ctx, resultID, published)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update publication flag")
	}

	s.metrics.RecordPublication(published)
	s.invalidateStudentCache(ctx, result.StudentID)
	s.logger.Info("result publication changed",
		zap.String("result_id", resultID),
		zap.Bool("published", published))

	return result, nil
}

// GetForStaff returns the full result record.
func (s *ResultService) GetForStaff(ctx context.Context, resultID string) (*models.ExamResult, error) {
	result, err := s.ledger.FindByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load result")
	}
	return result, nil
}

// GetForStudent returns the student-facing projection of one result. A
// student can only read their own results, and unpublished results come
// back as pending placeholders with no graded content.
func (s *ResultService) GetForStudent(ctx context.Context, resultID, studentID string) (*models.StudentResultView, error) {
	result, err := s.GetForStaff(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if result.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "result belongs to another student")
	}
	view := result.RedactedView()
	return &view, nil
}

// ListByExam returns all results for an exam (staff only).
func (s *ResultService) ListByExam(ctx context.Context, examID string) ([]models.ExamResult, error) {
	results, err := s.ledger.ListByExam(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exam results")
	}
	return results, nil
}

// ListForStaff returns a student's full result history.
func (s *ResultService) ListForStaff(ctx context.Context, studentID string) ([]models.ExamResult, error) {
	results, err := s.ledger.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student results")
	}
	return results, nil
}

// ListForStudent returns a student's own results, redacting unpublished
// entries. The projected list is cached and invalidated on publish.
func (s *ResultService) ListForStudent(ctx context.Context, studentID string) ([]models.StudentResultView, error) {
	key := studentResultsCacheKey(studentID)
	if s.cache != nil {
		var cached []models.StudentResultView
		start := time.Now()
		err := s.cache.Get(ctx, key, &cached)
		s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("result cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	results, err := s.ledger.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student results")
	}

	views := make([]models.StudentResultView, 0, len(results))
	for i := range results {
		views = append(views, results[i].RedactedView())
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, views, s.cacheTTL); err != nil {
			s.logger.Warn("result cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return views, nil
}

func (s *ResultService) invalidateStudentCache(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, studentResultsCacheKey(studentID)); err != nil {
		s.logger.Warn("result cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

func studentResultsCacheKey(studentID string) string {
	return fmt.Sprintf("results:student:%s", studentID)
}
