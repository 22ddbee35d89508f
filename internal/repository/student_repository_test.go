package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-portal-api/internal/models"
)

func newStudentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "reg_no", "full_name", "class_level", "level_history", "is_graduated", "year_graduated", "is_suspended", "is_withdrawn", "created_at", "updated_at"}).
		AddRow("stu-1", "R001", "Ama Mensah", "LEVEL_200", []byte(`["LEVEL_100","LEVEL_200"]`), false, nil, false, false, now, now)
}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM students WHERE id = \\$1").
		WithArgs("stu-1").
		WillReturnRows(studentRows(time.Now().UTC()))

	student, err := repo.FindByID(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, models.Level200, student.ClassLevel)
	assert.Equal(t, models.LevelHistory{models.Level100, models.Level200}, student.LevelHistory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryAdvanceLevel(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("UPDATE students").
		WithArgs("stu-1", models.Level300, false, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM students WHERE id = \\$1").
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reg_no", "full_name", "class_level", "level_history", "is_graduated", "year_graduated", "is_suspended", "is_withdrawn", "created_at", "updated_at"}).
			AddRow("stu-1", "R001", "Ama Mensah", "LEVEL_300", []byte(`["LEVEL_100","LEVEL_200","LEVEL_300"]`), false, nil, false, false, now, now))

	student, err := repo.AdvanceLevel(context.Background(), "stu-1", models.Level300, false, nil)
	require.NoError(t, err)
	assert.Equal(t, models.Level300, student.ClassLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryAdvanceLevelGraduatedGuard(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("UPDATE students").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.AdvanceLevel(context.Background(), "stu-1", models.LevelGraduated, true, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
