package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openlms/quiz-service/internal/models"
)

const principalContextKey = "principal"

// PrincipalMiddleware builds the request principal from the identity headers
// set by the API gateway after it has verified the caller's token. Requests
// without them are rejected; this service never sees raw credentials.
func PrincipalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		role := models.UserRole(c.GetHeader("X-User-Role"))

		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "User not authenticated",
				Code:    "unauthenticated",
			})
			return
		}

		switch role {
		case models.RoleStudent, models.RoleInstructor, models.RoleAdmin:
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Unknown user role",
				Code:    "unauthenticated",
			})
			return
		}

		c.Set(principalContextKey, models.Principal{ID: userID, Role: role})
		c.Next()
	}
}

// CurrentPrincipal returns the authenticated principal for the request.
func CurrentPrincipal(c *gin.Context) (models.Principal, bool) {
	value, exists := c.Get(principalContextKey)
	if !exists {
		return models.Principal{}, false
	}
	principal, ok := value.(models.Principal)
	return principal, ok
}

// requirePrincipal fetches the principal or writes a 401 and reports false.
func requirePrincipal(c *gin.Context) (models.Principal, bool) {
	principal, ok := CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
			Code:    "unauthenticated",
		})
	}
	return principal, ok
}
