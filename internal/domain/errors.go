package domain

import "fmt"

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	// ErrKindValidation marks missing or malformed caller input. Terminal,
	// never retried.
	ErrKindValidation ErrorKind = "validation"
	// ErrKindUpstream marks a boundary-collaborator failure. Diagnostic
	// detail is logged; callers see a generic message.
	ErrKindUpstream ErrorKind = "upstream"
	// ErrKindPartialCompletion marks a failure after earlier steps already
	// created external resources. Nothing is rolled back.
	ErrKindPartialCompletion ErrorKind = "partial_completion"
	// ErrKindDerivedAmbiguity marks an unrecognized value from a
	// collaborator, mapped to a generic status rather than raised.
	ErrKindDerivedAmbiguity ErrorKind = "derived_ambiguity"
)

// PipelineError couples a failure classification with its cause.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewValidationError builds a validation-kind pipeline error.
func NewValidationError(message string) *PipelineError {
	return &PipelineError{Kind: ErrKindValidation, Message: message}
}

// NewUpstreamError wraps a collaborator failure.
func NewUpstreamError(message string, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindUpstream, Message: message, Err: err}
}

// NewPartialCompletionError wraps a failure that leaves orphaned resources.
func NewPartialCompletionError(message string, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindPartialCompletion, Message: message, Err: err}
}
