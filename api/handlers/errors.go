// Package handlers provides the HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thiemotorres/spawn/internal/model"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// sendCommandError maps an error from the command surface to a response.
func sendCommandError(c *gin.Context, err error) {
	var spawnErr *model.SpawnError
	var ioErr *model.IOError

	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
	case errors.Is(err, model.ErrAgentConfigNotFound):
		sendError(c, http.StatusNotFound, "AGENT_CONFIG_NOT_FOUND", err.Error())
	case errors.Is(err, model.ErrDefaultAgentConfig):
		sendError(c, http.StatusConflict, "DEFAULT_AGENT_CONFIG", err.Error())
	case errors.Is(err, model.ErrCommandRequired):
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.As(err, &spawnErr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "SPAWN_FAILED",
				Message: err.Error(),
				Details: map[string]interface{}{"command": spawnErr.Command},
			},
		})
	case errors.As(err, &ioErr):
		sendError(c, http.StatusInternalServerError, "IO_ERROR", err.Error())
	default:
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
