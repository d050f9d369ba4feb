package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// ErrorType defines distinct categories for errors originating from MP3presso components.
type ErrorType string

const (
	// ValidationError represents errors caused by invalid input files or configuration,
	// such as a selected file that is neither a video nor an MP3.
	ValidationError ErrorType = "validation_error"
	// EngineError represents failures while initializing or probing the ffmpeg engine.
	EngineError ErrorType = "engine_error"
	// ConversionError represents errors occurring during the MP3 conversion itself
	// (staging the input, running ffmpeg, reading the result back).
	ConversionError ErrorType = "conversion_error"
	// DownloadError represents errors occurring while fetching a remote input file.
	DownloadError ErrorType = "download_error"
	// SystemError represents underlying system issues, such as file I/O errors.
	SystemError ErrorType = "system_error"
)

// StructuredError represents a detailed error originating from MP3presso operations.
// It includes a type, message, optional details, timestamp, and a specific error code.
// It implements the standard Go `error` interface.
//
// User-facing surfaces only show Message; Details carries the underlying cause
// for diagnostics and logs.
type StructuredError struct {
	// Type categorizes the error (e.g., ValidationError, ConversionError).
	Type ErrorType `json:"type"`
	// Message provides a concise, human-readable description of the error.
	Message string `json:"message"`
	// Details offers additional context or the underlying error message, if available.
	Details string `json:"details,omitempty"`
	// Timestamp marks when the error occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
	// Code provides a specific integer code unique to the error source within its type.
	Code int `json:"code"`
}

// Error implements the standard `error` interface for StructuredError.
// It returns a formatted string including the error type, message, and details.
func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Message, e.Details)
}

// JSON returns the StructuredError serialized as a JSON string.
// Returns an empty string and an error if marshalling fails.
func (e *StructuredError) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// New creates a new StructuredError instance.
// It automatically sets the Timestamp to the current time.
func New(errorType ErrorType, message, details string, code int) *StructuredError {
	return &StructuredError{
		Type:      errorType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Format(time.RFC3339),
		Code:      code,
	}
}

// Wrap creates a new StructuredError, using the message from an existing standard Go error
// as the Details field.
// If the input error `err` is nil, Details will be empty.
func Wrap(err error, errorType ErrorType, message string, code int) *StructuredError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return New(errorType, message, details, code)
}

// IsType reports whether err is a StructuredError of the given type.
func IsType(err error, errorType ErrorType) bool {
	se, ok := err.(*StructuredError)
	return ok && se.Type == errorType
}

// UserMessage extracts the message suitable for end users from an error.
// StructuredErrors contribute only their Message; any other error is replaced
// by the provided fallback so that internal details never leak to the UI.
func UserMessage(err error, fallback string) string {
	if se, ok := err.(*StructuredError); ok {
		return se.Message
	}
	return fallback
}
