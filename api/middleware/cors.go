package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS opens the relay to every origin. The endpoint carries no
// credential of its own; the access token lives server-side only, so
// there is nothing an origin restriction would protect. Preflight
// requests get an empty 200.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// ValidatePayload rejects non-JSON bodies before they reach the handler.
func ValidatePayload() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.GetHeader("Content-Type"), "application/json") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Content-Type must be application/json"})
			c.Abort()
			return
		}

		if c.Request.Body == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Empty request body"})
			c.Abort()
			return
		}

		c.Next()
	}
}
