package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-portal-api/internal/models"
	appErrors "github.com/noah-isme/school-portal-api/pkg/errors"
	"github.com/noah-isme/school-portal-api/pkg/export"
	"github.com/noah-isme/school-portal-api/pkg/storage"
)

// Export formats for result sheets.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

type exportExamReader interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
}

type exportResultReader interface {
	ListByExam(ctx context.Context, examID string) ([]models.ExamResult, error)
}

type exportStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// ExportTicket is the response to an export request: a signed download token
// with its expiry.
type ExportTicket struct {
	ExportID  string    `json:"export_id"`
	Format    string    `json:"format"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService renders exam result sheets to CSV or PDF, stores them and
// hands out signed download tokens.
type ExportService struct {
	exams    exportExamReader
	results  exportResultReader
	students exportStudentReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	storage  *storage.LocalStorage
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(exams exportExamReader, results exportResultReader, students exportStudentReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		exams:    exams,
		results:  results,
		students: students,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		storage:  store,
		signer:   signer,
		logger:   logger,
	}
}

// ExportExamResults renders the full result sheet for one exam and returns a
// signed download ticket. Unpublished results are included: this is a staff
// surface and staff always see graded content.
func (s *ExportService) ExportExamResults(ctx context.Context, examID, format string) (*ExportTicket, error) {
	if format != FormatCSV && format != FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	exam, err := s.exams.FindByID(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}

	results, err := s.results.ListByExam(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list results")
	}

	sheet, err := s.buildSheet(ctx, exam, results)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case FormatCSV:
		data, err = s.csv.Render(*sheet)
	case FormatPDF:
		subtitle := fmt.Sprintf("%s | %s | %s", exam.Term, exam.Level, exam.AcademicYear)
		data, err = s.pdf.Render(*sheet, subtitle)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render result sheet")
	}

	exportID := uuid.NewString()
	filename := fmt.Sprintf("%s/%s.%s", examID, exportID, format)
	relPath, err := s.storage.Save(filename, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}

	s.logger.Info("result sheet exported",
		zap.String("exam_id", examID),
		zap.String("export_id", exportID),
		zap.String("format", format),
		zap.Int("rows", len(results)))

	return &ExportTicket{ExportID: exportID, Format: format, Token: token, ExpiresAt: expiresAt}, nil
}

// Open validates a download token and returns a handle to the stored file.
func (s *ExportService) Open(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	return file, nil
}

func (s *ExportService) buildSheet(ctx context.Context, exam *models.Exam, results []models.ExamResult) (*export.Sheet, error) {
	headers := []string{"Reg No", "Student", "Score", "Total", "Grade", "Status", "Remarks", "Published"}
	rows := make([]map[string]string, 0, len(results))
	for i := range results {
		r := &results[i]
		regNo, name := r.StudentID, ""
		student, err := s.students.FindByID(ctx, r.StudentID)
		if err == nil {
			regNo, name = student.RegNo, student.FullName
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student for export")
		}
		rows = append(rows, map[string]string{
			"Reg No":    regNo,
			"Student":   name,
			"Score":     strconv.Itoa(r.Score),
			"Total":     strconv.Itoa(r.TotalQuestions),
			"Grade":     strconv.FormatFloat(r.Grade, 'f', 1, 64),
			"Status":    string(r.Status),
			"Remarks":   r.Remarks,
			"Published": strconv.FormatBool(r.IsPublished),
		})
	}
	return &export.Sheet{
		Title:   fmt.Sprintf("%s Result Sheet", exam.Title),
		Headers: headers,
		Rows:    rows,
	}, nil
}
