package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// internalTokenHeader gates the trace endpoint.
const internalTokenHeader = "X-Internal-Token"

// requireInternalToken rejects requests without the configured
// internal token. An unconfigured token closes the endpoint entirely.
func (s *Server) requireInternalToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := c.GetHeader(internalTokenHeader)
		if s.traceToken == "" || supplied == "" ||
			subtle.ConstantTimeCompare([]byte(supplied), []byte(s.traceToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
