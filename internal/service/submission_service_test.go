package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-portal-api/internal/models"
	"github.com/noah-isme/school-portal-api/pkg/config"
	appErrors "github.com/noah-isme/school-portal-api/pkg/errors"
	"github.com/noah-isme/school-portal-api/pkg/jobs"
)

type mockSubmissionStudents struct {
	students map[string]*models.Student
}

func (m *mockSubmissionStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type mockExamCatalog struct {
	exams map[string]*models.ExamWithQuestions
}

func (m *mockExamCatalog) FindWithQuestions(ctx context.Context, id string) (*models.ExamWithQuestions, error) {
	if e, ok := m.exams[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

// mockLedger enforces the uniqueness key with its own mutex, standing in for
// the unique index.
type mockLedger struct {
	mu      sync.Mutex
	scope   string
	results map[string]*models.ExamResult
	inserts int
}

func newMockLedger(scope string) *mockLedger {
	return &mockLedger{scope: scope, results: make(map[string]*models.ExamResult)}
}

func (m *mockLedger) key(studentID, examID string) string {
	if m.scope == config.ScopeStudentExam {
		return studentID + "|" + examID
	}
	return studentID
}

func (m *mockLedger) Exists(ctx context.Context, studentID, examID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.results[m.key(studentID, examID)]
	return ok, nil
}

func (m *mockLedger) Insert(ctx context.Context, result *models.ExamResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.key(result.StudentID, result.ExamID)
	if _, ok := m.results[key]; ok {
		return appErrors.ErrAlreadySubmitted
	}
	copied := *result
	m.results[key] = &copied
	m.inserts++
	return nil
}

func (m *mockLedger) Scope() string {
	return m.scope
}

type mockPromoter struct {
	mu      sync.Mutex
	calls   int
	outcome *PromotionOutcome
	err     error
}

func (m *mockPromoter) ApplyPassing(ctx context.Context, studentID string) (*PromotionOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.outcome != nil {
		return m.outcome, nil
	}
	return &PromotionOutcome{StudentID: studentID, Advanced: true, FromLevel: models.Level100, ToLevel: models.Level200}, nil
}

type mockRetryQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (m *mockRetryQueue) Enqueue(job jobs.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

type submissionFixture struct {
	svc      *SubmissionService
	students *mockSubmissionStudents
	catalog  *mockExamCatalog
	ledger   *mockLedger
	promoter *mockPromoter
	queue    *mockRetryQueue
}

func newSubmissionFixture(scope string) *submissionFixture {
	students := &mockSubmissionStudents{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", RegNo: "R001", FullName: "Ama Mensah", ClassLevel: models.Level100},
		"stu-2": {ID: "stu-2", RegNo: "R002", FullName: "Kofi Boateng", ClassLevel: models.Level200, IsSuspended: true},
	}}
	catalog := &mockExamCatalog{exams: map[string]*models.ExamWithQuestions{
		"exam-1": {
			Exam:      models.Exam{ID: "exam-1", Title: "Mid Term", Term: "T1", Level: models.Level100, AcademicYear: "2025"},
			Questions: questionsFromAnswers("A", "B", "C", "D"),
		},
	}}
	ledger := newMockLedger(scope)
	promoter := &mockPromoter{}
	queue := &mockRetryQueue{}
	svc := NewSubmissionService(students, catalog, ledger, promoter, queue, nil, nil, nil, DefaultPassThreshold)
	return &submissionFixture{svc: svc, students: students, catalog: catalog, ledger: ledger, promoter: promoter, queue: queue}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected app error, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestSubmitInvalidPayload(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudent)

	_, err := f.svc.Submit(context.Background(), SubmitExamRequest{StudentID: "stu-1"})
	require.Error(t, err)
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestSubmitStudentNotFound(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudent)

	_, err := f.svc.Submit(context.Background(), SubmitExamRequest{
		StudentID: "ghost", ExamID: "exam-1", Answers: []string{"A", "B", "C", "D"},
	})
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestSubmitExamNotFound(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudent)

	_, err := f.svc.Submit(context.Background(), SubmitExamRequest{
		StudentID: "stu-1", ExamID: "ghost", Answers: []string{"A"},
	})
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestSubmitIncompleteSubmission(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudent)

	_, err := f.svc.Submit(context.Background(), SubmitExamRequest{
		StudentID: "stu-1", ExamID: "exam-1", Answers: []string{"A", "B"},
	})
	assertCode(t, err, appErrors.ErrIncompleteSubmission.Code)
	assert.Zero(t, f.ledger.inserts)
}

func TestSubmitNotEligible(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudent)

	_, err := f.svc.Submit(context.Background(), SubmitExamRequest{
		StudentID: "stu-2", ExamID: "exam-1", Answers: []string{"A", "B", "C", "D"},
	})
	assertCode(t, err, appErrors.ErrNotEligible.Code)
	assert.Zero(t, f.ledger.inserts)
}

func TestSubmitPassRecordsResultAndPromotes(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudent)

	receipt, err := f.svc.Submit(context.Background(), SubmitExamRequest{
		StudentID: "stu-1", ExamID: "exam-1", Answers: []string{"A", "B", "X", "D"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, receipt.ResultID)
	assert.Equal(t, "submitted", receipt.Status)
	assert.False(t, receipt.PromotionPending)
	assert.Equal(t, 1, f.promoter.calls)

	stored := f.ledger.results["stu-1"]
	require.NotNil(t, stored)
	assert.Equal(t, 3, stored.Score)
	assert.Equal(t, 4, stored.TotalQuestions)
	assert.InDelta(t, 75.0, stored.Grade, 0.001)
	assert.Equal(t, models.StatusPass, stored.Status)
	assert.Equal(t, models.RemarkVeryGood, stored.Remarks)
	assert.False(t, stored.IsPublished)
	assert.Equal(t, "T1", stored.Term)
}

func TestSubmitFailDoesNotPromote(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudent)

	receipt, err := f.svc.Submit(context.Background(), SubmitExamRequest{
		StudentID: "stu-1", ExamID: "exam-1", Answers: []string{"X", "X", "X", "X"},
	})
	require.NoError(t, err)

	assert.False(t, receipt.PromotionPending)
	assert.Zero(t, f.promoter.calls)
	assert.Equal(t, models.StatusFail, f.ledger.results["stu-1"].Status)
}

func TestSubmitDuplicateRejected(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudent)
	answers := []string{"A", "B", "C", "D"}

	_, err := f.svc.Submit(context.Background(), SubmitExamRequest{StudentID: "stu-1", ExamID: "exam-1", Answers: answers})
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), SubmitExamRequest{StudentID: "stu-1", ExamID: "exam-1", Answers: answers})
	assertCode(t, err, appErrors.ErrAlreadySubmitted.Code)
	assert.Equal(t, 1, f.ledger.inserts)
}

func TestSubmitStudentScopeBlocksSecondExam(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudent)
	f.catalog.exams["exam-2"] = &models.ExamWithQuestions{
		Exam:      models.Exam{ID: "exam-2", Title: "Finals", Term: "T1", Level: models.Level100, AcademicYear: "2025"},
		Questions: questionsFromAnswers("A", "B"),
	}

	_, err := f.svc.Submit(context.Background(), SubmitExamRequest{StudentID: "stu-1", ExamID: "exam-1", Answers: []string{"A", "B", "C", "D"}})
	require.NoError(t, err)

	// Legacy scope: one submission per student, full stop.
	_, err = f.svc.Submit(context.Background(), SubmitExamRequest{StudentID: "stu-1", ExamID: "exam-2", Answers: []string{"A", "B"}})
	assertCode(t, err, appErrors.ErrAlreadySubmitted.Code)
}

func TestSubmitStudentExamScopeAllowsSecondExam(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudentExam)
	f.catalog.exams["exam-2"] = &models.ExamWithQuestions{
		Exam:      models.Exam{ID: "exam-2", Title: "Finals", Term: "T1", Level: models.Level100, AcademicYear: "2025"},
		Questions: questionsFromAnswers("A", "B"),
	}

	_, err := f.svc.Submit(context.Background(), SubmitExamRequest{StudentID: "stu-1", ExamID: "exam-1", Answers: []string{"A", "B", "C", "D"}})
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), SubmitExamRequest{StudentID: "stu-1", ExamID: "exam-2", Answers: []string{"A", "B"}})
	require.NoError(t, err)
	assert.Equal(t, 2, f.ledger.inserts)
}

func TestSubmitPromotionFailureIsDegradedSuccess(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudent)
	f.promoter.err = errors.New("db down")

	receipt, err := f.svc.Submit(context.Background(), SubmitExamRequest{
		StudentID: "stu-1", ExamID: "exam-1", Answers: []string{"A", "B", "C", "D"},
	})
	require.NoError(t, err)

	assert.True(t, receipt.PromotionPending)
	require.NotNil(t, f.ledger.results["stu-1"])

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, PromotionJobType, f.queue.jobs[0].Type)
	assert.Equal(t, receipt.ResultID, f.queue.jobs[0].ID)
	assert.Equal(t, "stu-1", f.queue.jobs[0].Payload)
}

func TestSubmitConcurrentDuplicates(t *testing.T) {
	f := newSubmissionFixture(config.ScopeStudent)
	req := SubmitExamRequest{StudentID: "stu-1", ExamID: "exam-1", Answers: []string{"A", "B", "C", "D"}}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(context.Background(), req)
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var appErr *appErrors.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, appErrors.ErrAlreadySubmitted.Code, appErr.Code)
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, f.ledger.inserts)
}
