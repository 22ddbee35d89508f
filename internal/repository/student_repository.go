package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-portal-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, reg_no, full_name, class_level, level_history, is_graduated, year_graduated, is_suspended, is_withdrawn, created_at, updated_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("class_level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.Graduated != nil {
		conditions = append(conditions, fmt.Sprintf("is_graduated = $%d", len(args)+1))
		args = append(args, *filter.Graduated)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(reg_no) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
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

	query := fmt.Sprintf(`SELECT id, reg_no, full_name, class_level, level_history, is_graduated, year_graduated, is_suspended, is_withdrawn, created_at, updated_at
        FROM students WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, where, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if student.ClassLevel == "" {
		student.ClassLevel = models.Level100
	}
	if len(student.LevelHistory) == 0 {
		student.LevelHistory = models.LevelHistory{student.ClassLevel}
	}
	const query = `INSERT INTO students (id, reg_no, full_name, class_level, level_history, is_graduated, year_graduated, is_suspended, is_withdrawn, created_at, updated_at)
        VALUES (:id, :reg_no, :full_name, :class_level, :level_history, :is_graduated, :year_graduated, :is_suspended, :is_withdrawn, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// AdvanceLevel moves the student to the given level, appending it to the
// level history. Graduation is terminal: the guard on is_graduated means a
// concurrent or repeated promotion of a graduated student changes nothing.
func (r *StudentRepository) AdvanceLevel(ctx context.Context, id string, newLevel models.ClassLevel, graduated bool, yearGraduated *int) (*models.Student, error) {
	now := time.Now().UTC()
	const query = `UPDATE students
        SET class_level = $2,
            level_history = level_history || to_jsonb($2::text),
            is_graduated = $3,
            year_graduated = COALESCE(year_graduated, $4),
            updated_at = $5
        WHERE id = $1 AND is_graduated = false`
	res, err := r.db.ExecContext(ctx, query, id, newLevel, graduated, yearGraduated, now)
	if err != nil {
		return nil, fmt.Errorf("advance student level: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("advance student level rows: %w", err)
	}
	if affected == 0 {
		// Missing, or already graduated under a concurrent promotion.
		return nil, sql.ErrNoRows
	}
	return r.FindByID(ctx, id)
}
