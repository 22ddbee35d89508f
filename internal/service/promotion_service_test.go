package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-portal-api/internal/models"
	appErrors "github.com/noah-isme/school-portal-api/pkg/errors"
)

type mockPromotionStudents struct {
	students   map[string]*models.Student
	advanceErr error
	advances   int
}

func (m *mockPromotionStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPromotionStudents) AdvanceLevel(ctx context.Context, id string, newLevel models.ClassLevel, graduated bool, yearGraduated *int) (*models.Student, error) {
	if m.advanceErr != nil {
		return nil, m.advanceErr
	}
	s, ok := m.students[id]
	if !ok || s.IsGraduated {
		return nil, sql.ErrNoRows
	}
	m.advances++
	s.ClassLevel = newLevel
	s.LevelHistory = append(s.LevelHistory, newLevel)
	s.IsGraduated = graduated
	if s.YearGraduated == nil {
		s.YearGraduated = yearGraduated
	}
	copied := *s
	return &copied, nil
}

func newPromotionFixture(students ...*models.Student) (*PromotionService, *mockPromotionStudents) {
	repo := &mockPromotionStudents{students: make(map[string]*models.Student)}
	for _, s := range students {
		repo.students[s.ID] = s
	}
	svc := NewPromotionService(repo, PromotionPolicy{}, nil)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestApplyPassingAdvancesOneLevel(t *testing.T) {
	svc, repo := newPromotionFixture(&models.Student{
		ID:           "stu-1",
		ClassLevel:   models.Level300,
		LevelHistory: models.LevelHistory{models.Level100, models.Level200, models.Level300},
	})

	outcome, err := svc.ApplyPassing(context.Background(), "stu-1")
	require.NoError(t, err)

	assert.True(t, outcome.Advanced)
	assert.Equal(t, models.Level300, outcome.FromLevel)
	assert.Equal(t, models.Level400, outcome.ToLevel)
	assert.False(t, outcome.Graduated)
	assert.Equal(t, models.Level400, repo.students["stu-1"].ClassLevel)
	assert.Equal(t, models.LevelHistory{models.Level100, models.Level200, models.Level300, models.Level400}, repo.students["stu-1"].LevelHistory)
}

func TestApplyPassingGraduatesFromFinalLevel(t *testing.T) {
	svc, repo := newPromotionFixture(&models.Student{ID: "stu-1", ClassLevel: models.Level400})

	outcome, err := svc.ApplyPassing(context.Background(), "stu-1")
	require.NoError(t, err)

	assert.True(t, outcome.Advanced)
	assert.Equal(t, models.LevelGraduated, outcome.ToLevel)
	assert.True(t, outcome.Graduated)
	require.NotNil(t, outcome.YearGraduated)
	assert.Equal(t, 2025, *outcome.YearGraduated)
	assert.True(t, repo.students["stu-1"].IsGraduated)
}

func TestApplyPassingGraduationIsTerminal(t *testing.T) {
	year := 2024
	svc, repo := newPromotionFixture(&models.Student{
		ID:            "stu-1",
		ClassLevel:    models.LevelGraduated,
		IsGraduated:   true,
		YearGraduated: &year,
	})

	outcome, err := svc.ApplyPassing(context.Background(), "stu-1")
	require.NoError(t, err)

	assert.False(t, outcome.Advanced)
	assert.Equal(t, models.LevelGraduated, outcome.FromLevel)
	assert.Equal(t, models.LevelGraduated, outcome.ToLevel)
	assert.Zero(t, repo.advances)
	assert.Equal(t, 2024, *repo.students["stu-1"].YearGraduated)
}

func TestApplyPassingUnknownLevelIsNoOp(t *testing.T) {
	svc, repo := newPromotionFixture(&models.Student{ID: "stu-1", ClassLevel: "LEVEL_999"})

	outcome, err := svc.ApplyPassing(context.Background(), "stu-1")
	require.NoError(t, err)

	assert.False(t, outcome.Advanced)
	assert.Zero(t, repo.advances)
}

func TestApplyPassingMissingStudent(t *testing.T) {
	svc, _ := newPromotionFixture()

	_, err := svc.ApplyPassing(context.Background(), "ghost")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestApplyPassingLostRaceIsNoOp(t *testing.T) {
	svc, repo := newPromotionFixture(&models.Student{ID: "stu-1", ClassLevel: models.Level200})
	repo.advanceErr = sql.ErrNoRows

	outcome, err := svc.ApplyPassing(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.False(t, outcome.Advanced)
}

func TestApplyPassingPersistFailure(t *testing.T) {
	svc, repo := newPromotionFixture(&models.Student{ID: "stu-1", ClassLevel: models.Level200})
	repo.advanceErr = errors.New("connection reset")

	_, err := svc.ApplyPassing(context.Background(), "stu-1")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrPromotionFailure.Code, appErr.Code)
}
