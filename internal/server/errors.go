package server

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatform/chatform/internal/errors"
)

// statusFor maps an error to the HTTP status it is reported with
func statusFor(err error) int {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch errors.GetType(err) {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeConflict:
		return http.StatusConflict
	case errors.ErrorTypeInitialization, errors.ErrorTypeMessageProcessing,
		errors.ErrorTypeNetwork, errors.ErrorTypeExternal:
		return http.StatusBadGateway
	case errors.ErrorTypeConfig:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON body of every non-2xx response
type errorBody struct {
	Error     string `json:"error"`
	Type      string `json:"type"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"requestId,omitempty"`
}

func retryable(err error) bool {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Recoverable()
	}
	return false
}

// abortWithError writes err with its mapped status. Internal details of
// unexpected errors are logged, not returned.
func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger(c).Error("request failed", "error", err)
		msg = "internal server error"
	} else {
		logger(c).Warn("request rejected", "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, errorBody{
		Error:     msg,
		Type:      errors.GetType(err).String(),
		Retryable: retryable(err),
		RequestID: c.GetString(requestIDKey),
	})
}

func badRequest(c *gin.Context, err error) {
	abortWithError(c, errors.ValidationErrorf("invalid request body: %v", err))
}
