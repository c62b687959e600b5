package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/bassista/go_chatwall/internal/cache"
	"github.com/bassista/go_chatwall/internal/directory"
	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/bassista/go_chatwall/internal/render"
	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cache.ErrScreenNotFound),
		errors.Is(err, render.ErrNoScreen),
		errors.Is(err, directory.ErrUnknownGuild),
		errors.Is(err, directory.ErrUnknownChannel):
		return http.StatusNotFound
	case errors.Is(err, cache.ErrScreenLocked):
		return http.StatusConflict
	case errors.Is(err, cache.ErrInvalidSize),
		errors.Is(err, cache.ErrInvalidLayout),
		errors.Is(err, cache.ErrInvalidState),
		errors.Is(err, directory.ErrChannelNotLinkable),
		errors.Is(err, directory.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err under component and writes it as a JSON error body.
// Internal errors are not echoed to the client.
func writeError(c *gin.Context, component, op string, err error) {
	status := statusFor(err)
	log := logger.WithComponent(component)
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		log.Errorf("%s: %v", op, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	log.Debugf("%s: %v", op, err)
	c.JSON(status, gin.H{"error": err.Error()})
}
