package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-portal-api/internal/models"
	"github.com/noah-isme/school-portal-api/pkg/config"
	appErrors "github.com/noah-isme/school-portal-api/pkg/errors"
)

// ExamResultRepository is the only writer of exam_results rows. Uniqueness is
// enforced twice: a pre-check via Exists and a unique index hit on insert,
// so two concurrent submissions under the same scope cannot both land.
type ExamResultRepository struct {
	db    *sqlx.DB
	scope string
}

// NewExamResultRepository constructs an ExamResultRepository with the
// configured uniqueness scope (per student, or per student+exam).
func NewExamResultRepository(db *sqlx.DB, scope string) *ExamResultRepository {
	if scope != config.ScopeStudentExam {
		scope = config.ScopeStudent
	}
	return &ExamResultRepository{db: db, scope: scope}
}

// Scope exposes the active uniqueness scope.
func (r *ExamResultRepository) Scope() string {
	return r.scope
}

// Exists reports whether a result already exists under the uniqueness scope.
func (r *ExamResultRepository) Exists(ctx context.Context, studentID, examID string) (bool, error) {
	query := "SELECT 1 FROM exam_results WHERE student_id = $1"
	args := []interface{}{studentID}
	if r.scope == config.ScopeStudentExam {
		query += " AND exam_id = $2"
		args = append(args, examID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check existing result: %w", err)
	}
	return true, nil
}

// Insert persists a new result with is_published=false. A unique-index
// violation is surfaced as ErrAlreadySubmitted so the race between check and
// insert stays closed at the storage layer.
func (r *ExamResultRepository) Insert(ctx context.Context, result *models.ExamResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	result.CreatedAt = now
	result.UpdatedAt = now
	result.IsPublished = false

	const query = `INSERT INTO exam_results (id, student_id, exam_id, score, total_questions, grade, status, remarks, outcomes, is_published, term, level, academic_year, created_at, updated_at)
        VALUES (:id, :student_id, :exam_id, :score, :total_questions, :grade, :status, :remarks, :outcomes, :is_published, :term, :level, :academic_year, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		if isUniqueViolation(err) {
			return appErrors.ErrAlreadySubmitted
		}
		return fmt.Errorf("insert exam result: %w", err)
	}
	return nil
}

// FindByID fetches a result by ID.
func (r *ExamResultRepository) FindByID(ctx context.Context, id string) (*models.ExamResult, error) {
	const query = `SELECT id, student_id, exam_id, score, total_questions, grade, status, remarks, outcomes, is_published, term, level, academic_year, created_at, published_at, updated_at
        FROM exam_results WHERE id = $1`
	var result models.ExamResult
	if err := r.db.GetContext(ctx, &result, query, id); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetPublished flips the publication flag. The update is a no-op when the
// flag already holds the requested value, which keeps publish idempotent.
func (r *ExamResultRepository) SetPublished(ctx context.Context, id string, published bool) (*models.ExamResult, error) {
	now := time.Now().UTC()
	var publishedAt *time.Time
	if published {
		publishedAt = &now
	}
	const query = `UPDATE exam_results
        SET is_published = $2,
            published_at = CASE WHEN is_published = $2 THEN published_at ELSE $3 END,
            updated_at = $4
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, published, publishedAt, now)
	if err != nil {
		return nil, fmt.Errorf("set published: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("set published rows: %w", err)
	}
	if affected == 0 {
		return nil, sql.ErrNoRows
	}
	return r.FindByID(ctx, id)
}

// ListByExam returns all results recorded for an exam, oldest first.
func (r *ExamResultRepository) ListByExam(ctx context.Context, examID string) ([]models.ExamResult, error) {
	const query = `SELECT id, student_id, exam_id, score, total_questions, grade, status, remarks, outcomes, is_published, term, level, academic_year, created_at, published_at, updated_at
        FROM exam_results WHERE exam_id = $1 ORDER BY created_at ASC`
	var results []models.ExamResult
	if err := r.db.SelectContext(ctx, &results, query, examID); err != nil {
		return nil, fmt.Errorf("list results by exam: %w", err)
	}
	return results, nil
}

// ListByStudent returns all results recorded for a student, oldest first.
func (r *ExamResultRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ExamResult, error) {
	const query = `SELECT id, student_id, exam_id, score, total_questions, grade, status, remarks, outcomes, is_published, term, level, academic_year, created_at, published_at, updated_at
        FROM exam_results WHERE student_id = $1 ORDER BY created_at ASC`
	var results []models.ExamResult
	if err := r.db.SelectContext(ctx, &results, query, studentID); err != nil {
		return nil, fmt.Errorf("list results by student: %w", err)
	}
	return results, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
