// Package response holds the JSON envelope written for every API reply and
// the structured error value handlers return.
package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/metrics"
)

// Response is the success envelope
type Response struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

// Error is a failure carrying the HTTP status it should be reported with
type Error struct {
	StatusCode int
	Message    string
	Errors     []string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error that is logged but never sent
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// New creates an error with an explicit status code
func New(status int, message string, details ...string) *Error {
	return &Error{StatusCode: status, Message: message, Errors: details}
}

func Validation(message string, details ...string) *Error {
	return New(http.StatusBadRequest, message, details...)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

// InvalidToken reports a credential that failed verification or no longer
// matches stored state
func InvalidToken(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, message)
}

func Internal(message string) *Error {
	return New(http.StatusInternalServerError, message)
}

func TooManyRequests(message string) *Error {
	return New(http.StatusTooManyRequests, message)
}

type failure struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
	Errors     []string    `json:"errors,omitempty"`
}

// OK writes a success envelope
func OK(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, Response{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

// Fail writes the failure envelope for err and aborts the chain. Errors that
// are not *Error are reported as a generic 500.
func Fail(c *gin.Context, logger *logging.Logger, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Internal("Something went wrong").WithCause(err)
	}

	if apiErr.StatusCode >= http.StatusInternalServerError {
		metrics.RecordError("http", http.StatusText(apiErr.StatusCode))
		if logger != nil {
			logger.WithField("path", c.Request.URL.Path).ErrorWithErr(apiErr.Message, err)
		}
	}

	c.AbortWithStatusJSON(apiErr.StatusCode, failure{
		StatusCode: apiErr.StatusCode,
		Data:       nil,
		Message:    apiErr.Message,
		Success:    false,
		Errors:     apiErr.Errors,
	})
}

// HandlerFunc is a gin handler that reports failures by returning them
type HandlerFunc func(c *gin.Context) error

// Handle adapts fn into a gin handler, converting any returned error into
// the failure envelope.
func Handle(logger *logging.Logger, fn HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c); err != nil {
			Fail(c, logger, err)
		}
	}
}
