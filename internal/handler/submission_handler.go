package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-portal-api/internal/models"
	"github.com/noah-isme/school-portal-api/internal/service"
	appErrors "github.com/noah-isme/school-portal-api/pkg/errors"
	"github.com/noah-isme/school-portal-api/pkg/response"
)

// SubmissionHandler accepts exam submissions.
type SubmissionHandler struct {
	submissions *service.SubmissionService
}

// NewSubmissionHandler constructs SubmissionHandler.
func NewSubmissionHandler(submissions *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// Submit godoc
// @Summary Submit exam answers
// @Description Records and grades one submission. Students submit for
// themselves only; staff may submit on a student's behalf.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body service.SubmitExamRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}

	if claims.Role == models.RoleStudent {
		if claims.StudentID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "account is not linked to a student record"))
			return
		}
		if req.StudentID != "" && req.StudentID != claims.StudentID {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students may only submit their own answers"))
			return
		}
		req.StudentID = claims.StudentID
	}

	receipt, err := h.submissions.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, receipt)
}
