/*
Package middleware provides error handling utilities and structured error responses.
*/
package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCode represents different types of application errors
type ErrorCode string

const (
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
)

// FieldErrors maps a request field to its validation messages
type FieldErrors map[string][]string

// Add appends a message for field
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// APIError represents a structured error response
type APIError struct {
	Success   bool        `json:"success"`
	Error     ErrorCode   `json:"error"`
	Message   string      `json:"message"`
	Details   string      `json:"details,omitempty"`
	Errors    FieldErrors `json:"errors,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// ErrorHandler provides structured error responses with the default message for code
func ErrorHandler(w http.ResponseWriter, err error, code ErrorCode, statusCode int, requestID string) {
	WriteError(w, APIError{
		Error:     code,
		Message:   getErrorMessage(code),
		Details:   errDetails(err),
		RequestID: requestID,
	}, statusCode)
}

// WriteError logs and writes apiErr with the given status
func WriteError(w http.ResponseWriter, apiErr APIError, statusCode int) {
	apiErr.Success = false
	if apiErr.Message == "" {
		apiErr.Message = getErrorMessage(apiErr.Error)
	}
	apiErr.Timestamp = getCurrentTimestamp()

	fields := logrus.Fields{
		"error_code":  apiErr.Error,
		"status_code": statusCode,
		"request_id":  apiErr.RequestID,
		"error":       apiErr.Details,
	}
	if statusCode >= http.StatusInternalServerError {
		Logger.WithFields(fields).Error("API error occurred")
	} else {
		Logger.WithFields(fields).Info("API request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErr)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// getErrorMessage returns a user-friendly message for each error code
func getErrorMessage(code ErrorCode) string {
	switch code {
	case ErrCodeBadRequest:
		return "The request is invalid or malformed"
	case ErrCodeUnauthorized:
		return "Authentication is required to access this resource"
	case ErrCodeForbidden:
		return "You don't have permission to access this resource"
	case ErrCodeNotFound:
		return "not found"
	case ErrCodeRateLimited:
		return "Rate limit exceeded. Please try again later"
	case ErrCodeInternalError:
		return "An internal server error occurred"
	case ErrCodeServiceUnavailable:
		return "The service is temporarily unavailable"
	case ErrCodeValidation:
		return "Request validation failed"
	default:
		return "An unknown error occurred"
	}
}

// getCurrentTimestamp returns the current time in RFC3339 format
func getCurrentTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// RespondJSON writes v as JSON with the given status
func RespondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.WithError(err).Error("Failed to encode response")
	}
}

// Common error response helpers
func RespondBadRequest(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeBadRequest, http.StatusBadRequest, requestID)
}

func RespondUnauthorized(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeUnauthorized, http.StatusUnauthorized, requestID)
}

func RespondForbidden(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeForbidden, http.StatusForbidden, requestID)
}

// RespondNotFound writes a 404 with message, or "not found" when message is empty
func RespondNotFound(w http.ResponseWriter, message string, requestID string) {
	WriteError(w, APIError{Error: ErrCodeNotFound, Message: message, RequestID: requestID}, http.StatusNotFound)
}

func RespondRateLimited(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeRateLimited, http.StatusTooManyRequests, requestID)
}

func RespondInternalError(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeInternalError, http.StatusInternalServerError, requestID)
}

func RespondServiceUnavailable(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeServiceUnavailable, http.StatusServiceUnavailable, requestID)
}

// RespondValidationError writes a 422 listing the offending fields
func RespondValidationError(w http.ResponseWriter, fieldErrors FieldErrors, requestID string) {
	WriteError(w, APIError{
		Error:     ErrCodeValidation,
		Message:   getErrorMessage(ErrCodeValidation),
		Errors:    fieldErrors,
		RequestID: requestID,
	}, http.StatusUnprocessableEntity)
}
