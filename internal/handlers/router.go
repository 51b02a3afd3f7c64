package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openlms/quiz-service/internal/services"
	"github.com/openlms/quiz-service/internal/utils"
)

type HandlerManager struct {
	quizHandler     *QuizHandler
	questionHandler *QuestionHandler
	attemptHandler  *AttemptHandler
}

func NewHandlerManager(
	quizService services.QuizService,
	questionService services.QuestionService,
	attemptService services.AttemptService,
	exportService services.ExportService,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		quizHandler:     NewQuizHandler(quizService, exportService, logger),
		questionHandler: NewQuestionHandler(questionService, logger),
		attemptHandler:  NewAttemptHandler(attemptService, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "quiz-service",
		})
	})

	v1 := router.Group("/api/v1")
	v1.Use(PrincipalMiddleware())
	{
		quizzes := v1.Group("/quizzes")
		{
			quizzes.POST("", hm.quizHandler.CreateQuiz)
			quizzes.GET("", hm.quizHandler.ListQuizzes)
			quizzes.GET("/:id", hm.quizHandler.GetQuiz)
			quizzes.GET("/:id/questions", hm.quizHandler.GetQuizWithQuestions)
			quizzes.PUT("/:id", hm.quizHandler.UpdateQuiz)
			quizzes.DELETE("/:id", hm.quizHandler.DeleteQuiz)
			quizzes.POST("/:id/publish", hm.quizHandler.PublishQuiz)
			quizzes.GET("/:id/attempts/export", hm.quizHandler.ExportQuizResults)

			// Question authoring
			quizzes.POST("/:id/questions", hm.questionHandler.CreateQuestion)
			quizzes.PUT("/:id/questions/reorder", hm.questionHandler.ReorderQuestions)

			// Attempt listing for a quiz
			quizzes.GET("/:id/attempts", hm.attemptHandler.ListAttemptsByQuiz)
		}

		questions := v1.Group("/questions")
		{
			questions.PUT("/:id", hm.questionHandler.UpdateQuestion)
			questions.DELETE("/:id", hm.questionHandler.DeleteQuestion)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.POST("/:id/answer", hm.attemptHandler.SaveAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/results", hm.attemptHandler.GetResults)
		}
	}
}
