package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/gin-gonic/gin"
)

// RequestTimeout bounds the request context by d. Handlers must honor
// ctx.Done(); a handler that gives up without writing gets a 504 with a
// Retry-After hint so polling clients ask again on their next cycle.
// A zero or negative d disables the deadline.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	retryAfter := strconv.Itoa(max(1, int(d.Round(time.Second)/time.Second)))

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Writer.Written() {
			return
		}
		logger.WithComponent("http").Warnf("%s %s gave up after %s", c.Request.Method, c.FullPath(), d)
		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{
			"error": "request timeout",
		})
	}
}
