package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ruuviproxy/internal/authorization"
	ingestdomain "github.com/smallbiznis/ruuviproxy/internal/ingest/domain"
	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
	retrievaldomain "github.com/smallbiznis/ruuviproxy/internal/retrieval/domain"
)

const (
	CodeValidationError        = "VALIDATION_ERROR"
	CodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	CodeForbidden              = "FORBIDDEN"
	CodeNotFound               = "NOT_FOUND"
	CodeRateLimited            = "RATE_LIMITED"
	CodeInternalError          = "INTERNAL_ERROR"
)

const resultError = "error"

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal_error")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Result string       `json:"result"`
	Error  errorPayload `json:"error"`
}

// RequestError carries a client-facing message for a sentinel error.
type RequestError struct {
	Err     error
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return e.Err }

func requestError(err error, message string) error {
	return &RequestError{Err: err, Message: message}
}

// AdminError is rendered as {"error": message} on the configuration API.
type AdminError struct {
	Status  int
	Message string
}

func (e *AdminError) Error() string { return e.Message }

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		var adminErr *AdminError
		if errors.As(lastErr.Err, &adminErr) {
			c.AbortWithStatusJSON(adminErr.Status, gin.H{"error": adminErr.Message})
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Result: resultError, Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	message := func(def string) string {
		var reqErr *RequestError
		if errors.As(err, &reqErr) && reqErr.Message != "" {
			return reqErr.Message
		}
		return def
	}

	var validationErr *ingestdomain.ValidationError
	var queryErr *retrievaldomain.QueryError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, errorPayload{Code: CodeValidationError, Message: validationErr.Error()}
	case errors.As(err, &queryErr):
		return http.StatusBadRequest, errorPayload{Code: CodeValidationError, Message: queryErr.Error()}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, readingdomain.ErrInvalidDeviceID),
		errors.Is(err, readingdomain.ErrInvalidGatewayID),
		errors.Is(err, readingdomain.ErrInvalidRange):
		return http.StatusBadRequest, errorPayload{Code: CodeValidationError, Message: message("Invalid request")}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Code: CodeAuthenticationRequired, Message: message("Valid authentication is required")}
	case errors.Is(err, ErrForbidden), errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{Code: CodeForbidden, Message: "Access denied"}
	case errors.Is(err, retrievaldomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Code: CodeRateLimited, Message: "Too many requests"}
	default:
		return http.StatusInternalServerError, errorPayload{Code: CodeInternalError, Message: "Internal server error"}
	}
}

// classifyErrorForLog returns the error type and code written to request logs.
func classifyErrorForLog(err error) (string, string) {
	var adminErr *AdminError
	if errors.As(err, &adminErr) {
		switch {
		case adminErr.Status == http.StatusUnauthorized:
			return "unauthorized", CodeAuthenticationRequired
		case adminErr.Status < http.StatusInternalServerError:
			return "validation_error", CodeValidationError
		default:
			return "internal_error", CodeInternalError
		}
	}

	status, payload := mapError(err)
	switch status {
	case http.StatusBadRequest:
		return "validation_error", payload.Code
	case http.StatusUnauthorized:
		return "unauthorized", payload.Code
	case http.StatusForbidden:
		return "forbidden", payload.Code
	case http.StatusNotFound:
		return "not_found", payload.Code
	case http.StatusTooManyRequests:
		return "rate_limited", payload.Code
	default:
		if errors.Is(err, ingestdomain.ErrStorage) {
			return "storage_error", payload.Code
		}
		return "internal_error", payload.Code
	}
}
