package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openlms/quiz-service/internal/models"
	"github.com/openlms/quiz-service/internal/repositories"
	"github.com/openlms/quiz-service/internal/services"
	"github.com/openlms/quiz-service/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// StartAttempt starts (or resumes) the caller's attempt on a quiz.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	var req services.StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Code:    "validation_failed",
			Details: err.Error(),
		})
		return
	}
	req.ClientIP = c.ClientIP()

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting attempt", "quiz_id", req.QuizID)

	detail, err := h.attemptService.Start(c.Request.Context(), &req, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, detail)
}

// SaveAnswer upserts one answer on an in-progress attempt.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	attemptID := parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	var req services.SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Code:    "validation_failed",
			Details: err.Error(),
		})
		return
	}

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	if err := h.attemptService.SaveAnswer(c.Request.Context(), attemptID, &req, principal); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Answer saved"})
}

// SubmitAttempt grades and finalizes the attempt.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	attemptID := parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", attemptID)

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetResults returns the graded review of an attempt, subject to the quiz's
// show-results policy.
func (h *AttemptHandler) GetResults(c *gin.Context) {
	attemptID := parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	results, err := h.attemptService.GetResults(c.Request.Context(), attemptID, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// ListAttemptsByQuiz lists attempts on a quiz. Students get their own rows,
// course staff get everyone's.
func (h *AttemptHandler) ListAttemptsByQuiz(c *gin.Context) {
	quizID := parseIDParam(c, "id")
	if quizID == 0 {
		return
	}

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	page := parseIntQuery(c, "page", 1)
	size := parseIntQuery(c, "size", 20)
	filters := repositories.AttemptFilters{
		Status:    models.AttemptStatus(c.Query("status")),
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if studentID := c.Query("student_id"); studentID != "" {
		filters.StudentID = &studentID
	}

	attempts, total, err := h.attemptService.ListByQuiz(c.Request.Context(), quizID, filters, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: attempts, Total: total})
}
