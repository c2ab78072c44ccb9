// Package errors defines stable error codes for collaborator and storage
// failures. The assembly pipeline itself never fails: parse degradation,
// cache misses, and unsatisfiable budgets all produce degraded output
// instead of errors.
package errors

import "fmt"

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// TreeUnavailable indicates no syntax-tree provider for the document's language
	TreeUnavailable ErrorCode = "TREE_UNAVAILABLE"
	// AnalyzerUnavailable indicates the dependency analyzer is not configured
	AnalyzerUnavailable ErrorCode = "ANALYZER_UNAVAILABLE"
	// IndexMissing indicates the SCIP index file was not found
	IndexMissing ErrorCode = "INDEX_MISSING"
	// ParseDegraded indicates structural extraction fell back to a coarser unit
	ParseDegraded ErrorCode = "PARSE_DEGRADED"
	// StoreError indicates a warm-state store read/write failed
	StoreError ErrorCode = "STORE_ERROR"
	// DocumentUnreadable indicates a source file could not be snapshotted
	DocumentUnreadable ErrorCode = "DOCUMENT_UNREADABLE"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// CwbError carries an error code, a message, and an optional cause
type CwbError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a new CwbError
func New(code ErrorCode, message string, cause error) *CwbError {
	return &CwbError{Code: code, Message: message, cause: cause}
}

// Error implements the error interface
func (e *CwbError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CwbError) Unwrap() error {
	return e.cause
}

// WithDetails attaches structured details to the error
func (e *CwbError) WithDetails(details interface{}) *CwbError {
	e.Details = details
	return e
}

// CodeOf extracts the error code from err, or InternalError for foreign errors
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if ce, ok := err.(*CwbError); ok {
		return ce.Code
	}
	return InternalError
}
