// Package errors provides the categorized errors used across the scan pipeline
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ErrorCategory identifies which failure class of the scan pipeline an error belongs to
type ErrorCategory string

const (
	CategoryCameraUnavailable ErrorCategory = "camera-unavailable" // permission denied or no device
	CategoryCaptureFailed     ErrorCategory = "capture-failed"     // frame or encode failure
	CategoryMissingInput      ErrorCategory = "missing-input"      // analysis attempted with no artifact
	CategoryMissingCredential ErrorCategory = "missing-credential" // no service secret configured
	CategoryNetwork           ErrorCategory = "network"            // transport-level failure
	CategoryUnsupportedImage  ErrorCategory = "unsupported-image"  // service rejected the payload format
	CategoryRequestRejected   ErrorCategory = "request-rejected"   // service-side validation or quota rejection
	CategoryMalformedResponse ErrorCategory = "malformed-response" // reply did not parse or validate
	CategoryUnknown           ErrorCategory = "unknown"
)

// Reasons refine CategoryRequestRejected. They travel in the "reason" context key.
const (
	ReasonModelUnavailable   = "model_unavailable"
	ReasonCredentialRejected = "credential_rejected"
	ReasonQuota              = "quota"
	ReasonBlocked            = "blocked"
	ReasonInvalidRequest     = "invalid_request"
)

// Context keys shared by the packages that build enhanced errors
const (
	ContextReason  = "reason"
	ContextExcerpt = "excerpt"
	ContextStatus  = "status"
)

// CategorizedError is an interface for errors that can specify their own category
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

// EnhancedError wraps an error with a category and diagnostic context
type EnhancedError struct {
	Err       error          // Original error
	Category  ErrorCategory  // Error category for classification
	Context   map[string]any // Diagnostic data, never shown to end users
	Timestamp time.Time      // When the error occurred
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, otherwise defers to the wrapped error
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// ErrorCategory implements CategorizedError
func (ee *EnhancedError) ErrorCategory() ErrorCategory {
	return ee.Category
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// Reason returns the "reason" context value, if any
func (ee *EnhancedError) Reason() string {
	reason, _ := ee.Context[ContextReason].(string)
	return reason
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err      error
	category ErrorCategory
	context  map[string]any
}

// New creates a new error builder around err
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error builder
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Category sets the error category
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build creates the EnhancedError. An unset category becomes CategoryUnknown.
func (eb *ErrorBuilder) Build() *EnhancedError {
	category := eb.category
	if category == "" {
		category = CategoryUnknown
	}
	err := eb.err
	if err == nil {
		err = stderrors.New(string(category))
	}
	return &EnhancedError{
		Err:       err,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
}

// CategoryOf returns the category of the first categorized error in err's chain,
// or an empty category if there is none.
func CategoryOf(err error) ErrorCategory {
	var categorized CategorizedError
	if As(err, &categorized) {
		return categorized.ErrorCategory()
	}
	return ""
}

// HasCategory reports whether err carries the given category
func HasCategory(err error, category ErrorCategory) bool {
	return CategoryOf(err) == category
}

// ReasonOf returns the refinement reason carried by err, if any
func ReasonOf(err error) string {
	var ee *EnhancedError
	if As(err, &ee) {
		return ee.Reason()
	}
	return ""
}

// NewStd creates a plain error, for sentinels in packages importing this one as "errors"
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is wraps the standard errors.Is
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As wraps the standard errors.As
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join wraps the standard errors.Join
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
