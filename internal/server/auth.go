package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// #region auth

// authMiddleware enforces a bearer token on every request it wraps. The
// comparison is constant-time so response timing leaks nothing about how
// much of a guessed token matched.
func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or missing bearer token",
				"kind":  "auth",
			})
			return
		}
		c.Next()
	}
}

// #endregion auth
