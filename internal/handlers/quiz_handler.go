package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openlms/quiz-service/internal/repositories"
	"github.com/openlms/quiz-service/internal/services"
	"github.com/openlms/quiz-service/internal/utils"
)

type QuizHandler struct {
	BaseHandler
	quizService   services.QuizService
	exportService services.ExportService
}

func NewQuizHandler(quizService services.QuizService, exportService services.ExportService, logger utils.Logger) *QuizHandler {
	return &QuizHandler{
		BaseHandler:   NewBaseHandler(logger),
		quizService:   quizService,
		exportService: exportService,
	}
}

func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	var req services.CreateQuizRequest
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

	h.LogRequest(c, "Creating quiz", "course_id", req.CourseID)

	quiz, err := h.quizService.Create(c.Request.Context(), &req, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, quiz)
}

func (h *QuizHandler) GetQuiz(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), id, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

// GetQuizWithQuestions is the authoring view: it includes correct answers,
// so the service restricts it to course staff.
func (h *QuizHandler) GetQuizWithQuestions(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	quiz, err := h.quizService.GetByIDWithQuestions(c.Request.Context(), id, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

func (h *QuizHandler) UpdateQuiz(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateQuizRequest
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

	h.LogRequest(c, "Updating quiz", "quiz_id", id)

	quiz, err := h.quizService.Update(c.Request.Context(), id, &req, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Deleting quiz", "quiz_id", id)

	if err := h.quizService.Delete(c.Request.Context(), id, principal); err != nil {
		handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *QuizHandler) PublishQuiz(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Publishing quiz", "quiz_id", id)

	quiz, err := h.quizService.Publish(c.Request.Context(), id, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	page := parseIntQuery(c, "page", 1)
	size := parseIntQuery(c, "size", 20)
	filters := repositories.QuizFilters{
		CourseID:  parseUintQueryPtr(c, "course_id"),
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if createdBy := c.Query("created_by"); createdBy != "" {
		filters.CreatedBy = &createdBy
	}

	quizzes, total, err := h.quizService.List(c.Request.Context(), filters, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: quizzes, Total: total})
}

// ExportQuizResults streams an xlsx workbook of all attempts on the quiz.
func (h *QuizHandler) ExportQuizResults(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Exporting quiz results", "quiz_id", id)

	data, err := h.exportService.ExportQuizResults(c.Request.Context(), id, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("quiz_%d_results.xlsx", id)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
