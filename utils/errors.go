package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorKind classifies failures so the HTTP boundary can pick a status and
// a client-safe message without inspecting error strings.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindModelUnavailable
	KindGeneration
	KindInvalidInput
	KindInvalidDocument
	KindUpstream
	KindQueueUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindModelUnavailable:
		return "model_unavailable"
	case KindGeneration:
		return "generation_error"
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidDocument:
		return "invalid_document"
	case KindUpstream:
		return "upstream_error"
	case KindQueueUnavailable:
		return "queue_unavailable"
	default:
		return "internal_error"
	}
}

// Client-visible messages for the chat faults.
const (
	MsgModelUnavailable = "Model failed to load. Check logs."
	MsgGeneration       = "Error during model generation"
)

// AppError is a typed failure. Err holds the internal cause, which is logged
// but never written to a response body.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(kind ErrorKind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first AppError in err's chain.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// StatusFor maps an error kind to its transport status. Chat-level faults are
// reported in-band with 200.
func StatusFor(kind ErrorKind) int {
	switch kind {
	case KindModelUnavailable, KindGeneration:
		return http.StatusOK
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindInvalidDocument:
		return http.StatusUnprocessableEntity
	case KindUpstream:
		return http.StatusBadGateway
	case KindQueueUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithAppError is the single translation point from internal errors to
// HTTP responses. In-band chat faults produce exactly {"error": msg}.
func RespondWithAppError(c *gin.Context, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = NewAppError(KindInternal, "Internal server error", err)
	}

	status := StatusFor(appErr.Kind)
	if status == http.StatusOK {
		c.JSON(status, gin.H{"error": appErr.Message})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      appErr.Message,
		"error_code": appErr.Kind.String(),
	})
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}
