package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openlms/quiz-service/internal/services"
	"github.com/openlms/quiz-service/internal/utils"
)

type QuestionHandler struct {
	BaseHandler
	questionService services.QuestionService
}

func NewQuestionHandler(questionService services.QuestionService, logger utils.Logger) *QuestionHandler {
	return &QuestionHandler{
		BaseHandler:     NewBaseHandler(logger),
		questionService: questionService,
	}
}

// ReorderQuestionsRequest carries the full id list in the desired order.
type ReorderQuestionsRequest struct {
	QuestionIDs []uint `json:"question_ids" validate:"required,min=1"`
}

func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	quizID := parseIDParam(c, "id")
	if quizID == 0 {
		return
	}

	var req services.CreateQuestionRequest
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

	h.LogRequest(c, "Creating question", "quiz_id", quizID)

	question, err := h.questionService.Create(c.Request.Context(), quizID, &req, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, question)
}

func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateQuestionRequest
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

	question, err := h.questionService.Update(c.Request.Context(), id, &req, principal)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), id, principal); err != nil {
		handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *QuestionHandler) ReorderQuestions(c *gin.Context) {
	quizID := parseIDParam(c, "id")
	if quizID == 0 {
		return
	}

	var req ReorderQuestionsRequest
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

	h.LogRequest(c, "Reordering questions", "quiz_id", quizID)

	if err := h.questionService.Reorder(c.Request.Context(), quizID, req.QuestionIDs, principal); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Questions reordered"})
}
