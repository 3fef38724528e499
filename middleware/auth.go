package middleware

import (
	"net/http"
	"strings"

	"helpnet/services"
	"helpnet/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AuthMiddleware struct {
	authService *services.AuthService
}

func NewAuthMiddleware(authService *services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// RequireAuth validates the bearer token and loads the caller's identity
// into the request context. Inactive and blocked accounts are rejected.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := am.extractToken(c)
		if token == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Authentication token required", nil)
			c.Abort()
			return
		}

		user, err := am.authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			logrus.Warnf("Authentication failed: %v", err)
			utils.HandleServiceError(c, err)
			c.Abort()
			return
		}

		c.Set("userID", user.ID.Hex())
		c.Set("userEmail", user.Email)
		c.Next()
	}
}

func (am *AuthMiddleware) extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" && strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Websocket handshakes cannot set headers from browsers.
	return c.Query("token")
}
