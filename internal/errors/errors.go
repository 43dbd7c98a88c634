package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping the code of the wrapped error
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// GetCode returns the code of the outermost AppError in the chain, or "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether any AppError in the chain carries code
func HasCode(err error, code string) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Error codes. Everything except CodeInvariantViolation and CodeConfigInvalid
// describes a degraded-data condition that the pipeline recovers from.
const (
	CodeSourceUnavailable  = "SOURCE_UNAVAILABLE"
	CodeMalformedRecord    = "MALFORMED_RECORD"
	CodeInsufficientSample = "INSUFFICIENT_SAMPLE"
	CodeFitDivergence      = "FIT_DIVERGENCE"
	CodeEmptyDataset       = "EMPTY_DATASET"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeInternalError      = "INTERNAL_ERROR"
)

func SourceUnavailable(source string, cause error) *AppError {
	return &AppError{
		Code:    CodeSourceUnavailable,
		Message: fmt.Sprintf("catalog %s unavailable", source),
		Cause:   cause,
	}
}

func MalformedRecord(cause error) *AppError {
	return &AppError{
		Code:    CodeMalformedRecord,
		Message: "malformed record",
		Cause:   cause,
	}
}

func InsufficientSample(test string, have, need int) *AppError {
	return New(CodeInsufficientSample, fmt.Sprintf("%s needs %d samples, have %d", test, need, have))
}

func FitDivergence(model string, cause error) *AppError {
	return &AppError{
		Code:    CodeFitDivergence,
		Message: fmt.Sprintf("%s fit did not converge", model),
		Cause:   cause,
	}
}

func EmptyDataset(stage string) *AppError {
	return New(CodeEmptyDataset, fmt.Sprintf("no records after %s", stage))
}

func InvariantViolation(message string) *AppError {
	return New(CodeInvariantViolation, message)
}

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

// IsDegraded reports whether err is a recoverable data condition rather than a fault
func IsDegraded(err error) bool {
	switch GetCode(err) {
	case CodeSourceUnavailable, CodeMalformedRecord, CodeInsufficientSample, CodeFitDivergence, CodeEmptyDataset:
		return true
	}
	return false
}
