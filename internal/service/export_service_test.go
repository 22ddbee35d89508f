package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-portal-api/internal/models"
	appErrors "github.com/noah-isme/school-portal-api/pkg/errors"
	"github.com/noah-isme/school-portal-api/pkg/storage"
)

type mockExportExams struct {
	exams map[string]*models.Exam
}

func (m *mockExportExams) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	if e, ok := m.exams[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

type mockExportResults struct {
	results []models.ExamResult
}

func (m *mockExportResults) ListByExam(ctx context.Context, examID string) ([]models.ExamResult, error) {
	return m.results, nil
}

type mockExportStudents struct {
	students map[string]*models.Student
}

func (m *mockExportStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func newExportFixture(t *testing.T) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("export-secret", time.Minute)

	exams := &mockExportExams{exams: map[string]*models.Exam{
		"exam-1": {ID: "exam-1", Title: "Mid Term", Term: "T1", Level: models.Level100, AcademicYear: "2025"},
	}}
	results := &mockExportResults{results: []models.ExamResult{
		{ID: "res-1", StudentID: "stu-1", ExamID: "exam-1", Score: 3, TotalQuestions: 4, Grade: 75, Status: models.StatusPass, Remarks: models.RemarkVeryGood, IsPublished: true},
		{ID: "res-2", StudentID: "stu-2", ExamID: "exam-1", Score: 1, TotalQuestions: 4, Grade: 25, Status: models.StatusFail, Remarks: models.RemarkPoor},
	}}
	students := &mockExportStudents{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", RegNo: "R001", FullName: "Ama Mensah"},
	}}

	return NewExportService(exams, results, students, store, signer, nil)
}

func TestExportExamResultsCSV(t *testing.T) {
	svc := newExportFixture(t)

	ticket, err := svc.ExportExamResults(context.Background(), "exam-1", FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, ticket.Format)
	assert.NotEmpty(t, ticket.Token)

	file, err := svc.Open(ticket.Token)
	require.NoError(t, err)
	defer file.Close()

	raw, err := io.ReadAll(file)
	require.NoError(t, err)
	body := string(raw)

	assert.True(t, strings.HasPrefix(body, "Reg No,Student,Score,Total,Grade,Status,Remarks,Published\n"))
	assert.Contains(t, body, "R001,Ama Mensah,3,4,75.0,Pass,Very Good,true")
	// Unknown students fall back to their ID with a blank name.
	assert.Contains(t, body, "stu-2,,1,4,25.0,Fail,Poor,false")
}

func TestExportExamResultsPDF(t *testing.T) {
	svc := newExportFixture(t)

	ticket, err := svc.ExportExamResults(context.Background(), "exam-1", FormatPDF)
	require.NoError(t, err)

	file, err := svc.Open(ticket.Token)
	require.NoError(t, err)
	defer file.Close()

	header := make([]byte, 4)
	_, err = io.ReadFull(file, header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(header))
}

func TestExportExamResultsUnknownFormat(t *testing.T) {
	svc := newExportFixture(t)

	_, err := svc.ExportExamResults(context.Background(), "exam-1", "xlsx")
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestExportExamResultsMissingExam(t *testing.T) {
	svc := newExportFixture(t)

	_, err := svc.ExportExamResults(context.Background(), "ghost", FormatCSV)
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestOpenRejectsTamperedToken(t *testing.T) {
	svc := newExportFixture(t)

	ticket, err := svc.ExportExamResults(context.Background(), "exam-1", FormatCSV)
	require.NoError(t, err)

	parts := strings.Split(ticket.Token, ".")
	parts[3] = strings.Repeat("0", len(parts[3]))
	_, err = svc.Open(strings.Join(parts, "."))
	assertCode(t, err, appErrors.ErrUnauthorized.Code)
}
