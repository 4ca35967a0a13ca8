package dto

import "net/http"

// Error codes carried in ErrorInfo.Code. Domain errors use the same codes.
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnsupportedFile = "UNSUPPORTED_FILE"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeParseFailed     = "PARSE_FAILED"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAlreadyExists   = "ALREADY_EXISTS"
	ErrCodeInvalidState    = "INVALID_STATE"
	ErrCodeAccounting      = "ACCOUNTING_ERROR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeTokenExpired    = "TOKEN_EXPIRED"
	ErrCodeInvalidToken    = "INVALID_TOKEN"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	// Rejected input -> 400 Bad Request
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeUnsupportedFile: http.StatusBadRequest,
	ErrCodeParseFailed:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeInvalidToken: http.StatusUnauthorized,

	// Resource errors
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState: http.StatusUnprocessableEntity,

	// Upstream accounting system rejected or failed the call
	ErrCodeAccounting:  http.StatusBadGateway,
	ErrCodeUnavailable: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500 Internal Server Error.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
