package httpapi

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/geoupload/internal/auth"
	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// sessionAuth resolves the caller from the session bearer token.
func (s *HTTPServer) sessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, common.BearerPrefix)
		if !ok || token == "" {
			abort(c, http.StatusUnauthorized, "missing token")
			return
		}

		userID, err := auth.GetUserIDFromToken(token, s.sessionSecret)
		if err != nil {
			abort(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
