package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-portal-api/internal/models"
)

// ExamRepository reads and writes the exam catalog.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs an ExamRepository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// Create inserts an exam together with its ordered questions in one
// transaction. Question positions are assigned from slice order.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam, questions []models.Question) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	exam.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin exam tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const examQuery = `INSERT INTO exams (id, title, term, level, academic_year, pass_mark, created_at)
        VALUES (:id, :title, :term, :level, :academic_year, :pass_mark, :created_at)`
	if _, err := tx.NamedExecContext(ctx, examQuery, exam); err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	const questionQuery = `INSERT INTO questions (id, exam_id, position, prompt, correct_answer)
        VALUES (:id, :exam_id, :position, :prompt, :correct_answer)`
	for i := range questions {
		questions[i].ExamID = exam.ID
		questions[i].Position = i
		if questions[i].ID == "" {
			questions[i].ID = uuid.NewString()
		}
		if _, err := tx.NamedExecContext(ctx, questionQuery, questions[i]); err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exam tx: %w", err)
	}
	return nil
}

// FindByID fetches an exam without its questions.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	const query = `SELECT id, title, term, level, academic_year, pass_mark, created_at FROM exams WHERE id = $1`
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// FindWithQuestions fetches an exam and its questions ordered by position.
func (r *ExamRepository) FindWithQuestions(ctx context.Context, id string) (*models.ExamWithQuestions, error) {
	exam, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	const query = `SELECT id, exam_id, position, prompt, correct_answer FROM questions WHERE exam_id = $1 ORDER BY position ASC`
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, id); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	return &models.ExamWithQuestions{Exam: *exam, Questions: questions}, nil
}

// List returns exams matching the provided filters.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Term != "" {
		conditions = append(conditions, fmt.Sprintf("term = $%d", len(args)+1))
		args = append(args, filter.Term)
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}

	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, title, term, level, academic_year, pass_mark, created_at
        FROM exams WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, where, size, offset)

	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM exams WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}
	return exams, total, nil
}
