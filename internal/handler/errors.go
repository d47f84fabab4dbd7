package handler

import (
	"errors"
	"net/http"

	"dealdesk/internal/importer"
	"dealdesk/internal/lifecycle"
	"dealdesk/internal/logger"
	"dealdesk/internal/middleware"
	"dealdesk/internal/pricing"
	"dealdesk/internal/service"
	"dealdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Error codes returned alongside the HTTP status
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeImportRejected = "IMPORT_REJECTED"
	CodeNotFound       = "NOT_FOUND"
	CodeAlreadyExists  = "ALREADY_EXISTS"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeInternal       = "INTERNAL_ERROR"
	CodeInvalidPayload = "INVALID_PAYLOAD"
)

const persistenceFailedMsg = "The deal could not be updated, nothing was changed. Please retry."

// writeError maps a service error onto the response envelope. Unknown errors
// are logged and reported as a generic 500.
func writeError(c *gin.Context, err error) {
	var (
		ve *pricing.ValidationError
		ae *lifecycle.ActionError
		ie *importer.ImportError
	)
	switch {
	case errors.As(err, &ie):
		c.JSON(http.StatusBadRequest, response.Response{
			Status:     "error",
			StatusCode: http.StatusBadRequest,
			Code:       CodeImportRejected,
			Error:      ie.Error(),
			Data:       ie.Errors,
		})
	case errors.As(err, &ae):
		writeActionError(c, ae)
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, CodeValidation, ve.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, response.ErrorWithCode(http.StatusNotFound, CodeNotFound, err.Error()))
	case errors.Is(err, service.ErrAlreadyExists):
		c.JSON(http.StatusConflict, response.ErrorWithCode(http.StatusConflict, CodeAlreadyExists, err.Error()))
	case errors.Is(err, service.ErrBootstrapClosed):
		c.JSON(http.StatusForbidden, response.ErrorWithCode(http.StatusForbidden, string(lifecycle.Forbidden), err.Error()))
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, response.ErrorWithCode(http.StatusUnauthorized, CodeUnauthorized, err.Error()))
	default:
		logger.FromContext(c.Request.Context()).Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, response.ErrorWithCode(http.StatusInternalServerError, CodeInternal, "An internal error occurred"))
	}
}

func writeActionError(c *gin.Context, ae *lifecycle.ActionError) {
	status := http.StatusInternalServerError
	msg := ae.Error()
	switch ae.Kind {
	case lifecycle.InvalidTransition, lifecycle.Conflict:
		status = http.StatusConflict
	case lifecycle.PreconditionFailed:
		status = http.StatusUnprocessableEntity
	case lifecycle.Forbidden:
		status = http.StatusForbidden
	case lifecycle.NotFound:
		status = http.StatusNotFound
	default:
		logger.FromContext(c.Request.Context()).Error("deal action failed",
			zap.String("deal_id", ae.DealID), zap.String("action", string(ae.Action)), zap.Error(ae.Err))
		msg = persistenceFailedMsg
	}
	c.JSON(status, response.ErrorWithCode(status, string(ae.Kind), msg))
}

func badPayload(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, CodeInvalidPayload, "Invalid request payload: "+err.Error()))
}

// actorFrom reads the identity RequireAuth placed on the context.
func actorFrom(c *gin.Context) service.Actor {
	var actor service.Actor
	if raw, ok := c.Get(middleware.ContextUserID); ok {
		if s, ok := raw.(string); ok {
			actor.UserID, _ = uuid.Parse(s)
		}
	}
	actor.Role = c.GetString(middleware.ContextUserRole)
	return actor
}
