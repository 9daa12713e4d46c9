// Package httpkit holds the gin plumbing shared by every module: bearer
// authentication, request logging, rate limiting and the error envelope.
package httpkit

import (
	"time"

	"bbys_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogger writes one line per request once the handler chain is done.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		var err error
		if last := c.Errors.Last(); last != nil {
			err = last.Err
		}
		log.WithContext(c.Request.Context()).HTTPRequest(logger.HTTPEntry{
			Method:   c.Request.Method,
			Route:    c.FullPath(),
			Path:     c.Request.URL.Path,
			Status:   c.Writer.Status(),
			Latency:  time.Since(start),
			ClientIP: c.ClientIP(),
			Err:      err,
		})
	}
}

// SecurityHeaders sets the headers every JSON API response carries.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		if c.Request.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
