package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"

	// Game profile errors
	ErrGameUnknown   ErrorCode = "GAME_UNKNOWN"
	ErrGameDuplicate ErrorCode = "GAME_DUPLICATE"

	// Mod store errors
	ErrModInvalidTree ErrorCode = "MOD_INVALID_TREE"
	ErrModDuplicate   ErrorCode = "MOD_DUPLICATE"
	ErrModUnknown     ErrorCode = "MOD_UNKNOWN"
	ErrModInUse       ErrorCode = "MOD_IN_USE"

	// Overlay errors
	ErrAlreadyDeployed ErrorCode = "ALREADY_DEPLOYED"
	ErrDeployPartial   ErrorCode = "DEPLOY_PARTIAL"
	ErrDeployBusy      ErrorCode = "DEPLOY_BUSY"

	// Ledger errors
	ErrLedgerCorrupt ErrorCode = "LEDGER_CORRUPT"

	// FileSystem errors
	ErrFileAccess ErrorCode = "FILE_ACCESS"
	ErrFileCreate ErrorCode = "FILE_CREATE"
	ErrDirCreate  ErrorCode = "DIR_CREATE"

	// Download errors
	ErrDownloadFailed ErrorCode = "DOWNLOAD_FAILED"
)

// TmmError represents a structured error with code and details
type TmmError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *TmmError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *TmmError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *TmmError) Is(target error) bool {
	var targetErr *TmmError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new TmmError with the given code and message
func New(code ErrorCode, message string) *TmmError {
	return &TmmError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new TmmError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *TmmError {
	return &TmmError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a TmmError
func Wrap(err error, code ErrorCode, message string) *TmmError {
	if err == nil {
		return nil
	}
	return &TmmError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *TmmError {
	if err == nil {
		return nil
	}
	return &TmmError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *TmmError) WithDetail(key string, value interface{}) *TmmError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var tmmErr *TmmError
	if errors.As(err, &tmmErr) {
		return tmmErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a TmmError
func GetErrorCode(err error) ErrorCode {
	var tmmErr *TmmError
	if errors.As(err, &tmmErr) {
		return tmmErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a TmmError
func GetErrorDetails(err error) map[string]interface{} {
	var tmmErr *TmmError
	if errors.As(err, &tmmErr) {
		return tmmErr.Details
	}
	return nil
}
