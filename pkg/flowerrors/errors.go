// Package flowerrors defines the closed set of error kinds produced by a
// flow run. Every error the interpreter raises is one of these, or wraps
// one of these via %w, so callers can discriminate with errors.Is/As
// without string matching.
package flowerrors

import "fmt"

// Kind identifies which stage of evaluation failed.
type Kind string

const (
	KindFlowMalformed        Kind = "FlowMalformed"
	KindInvalidFunction      Kind = "InvalidFunction"
	KindArgumentError        Kind = "ArgumentError"
	KindKeywordArgumentError Kind = "KeywordArgumentError"
	KindSetExceptionsError   Kind = "SetExceptionsError"
	KindFunctionCallError    Kind = "FunctionCallError"
	KindFunctionRunError     Kind = "FunctionRunError"
	KindBranchError          Kind = "BranchError"
	KindForEachError         Kind = "ForEachError"
	KindSequenceError        Kind = "SequenceError"
	KindJSONExtractionError  Kind = "JSONExtractionError"
	KindProcessRunError      Kind = "ProcessRunError"
	KindModuleNotFound       Kind = "ModuleNotFoundError"
)

// Error is the concrete type behind every sentinel below. Two Errors are
// errors.Is-equal when their Kind matches, regardless of message, so
// callers can write `errors.Is(err, flowerrors.ErrBranch)`.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports equality by Kind only, so sentinels below work with errors.Is
// even when wrapped with additional context via fmt.Errorf("...: %w", err).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons, e.g. errors.Is(err, flowerrors.ErrBranch).
var (
	ErrFlowMalformed        = &Error{Kind: KindFlowMalformed}
	ErrInvalidFunction      = &Error{Kind: KindInvalidFunction}
	ErrArgument             = &Error{Kind: KindArgumentError}
	ErrKeywordArgument      = &Error{Kind: KindKeywordArgumentError}
	ErrSetExceptions        = &Error{Kind: KindSetExceptionsError}
	ErrFunctionCall         = &Error{Kind: KindFunctionCallError}
	ErrFunctionRun          = &Error{Kind: KindFunctionRunError}
	ErrBranch               = &Error{Kind: KindBranchError}
	ErrForEach              = &Error{Kind: KindForEachError}
	ErrSequence             = &Error{Kind: KindSequenceError}
	ErrJSONExtraction       = &Error{Kind: KindJSONExtractionError}
	ErrProcessRun           = &Error{Kind: KindProcessRunError}
	ErrModuleNotFound       = &Error{Kind: KindModuleNotFound}
)

// New builds an Error of the given kind wrapping cause, formatting Message
// with fmt.Sprintf(format, args...).
func New(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Dump is the serialisable payload ProcessRunError carries: the flow and
// the environment snapshot at the moment of failure, matching spec §7's
// `{ error: string, dump: { flow, variables } }` shape.
type Dump struct {
	Flow      interface{} `json:"flow"`
	Variables interface{} `json:"variables"`
}

// ProcessError is the top-level error Run returns on any unrecovered
// failure. It is always a *flowerrors.Error with Kind ==
// KindProcessRunError, carrying the original error as Cause and the run's
// state as Dump.
type ProcessError struct {
	*baseError
	Dump Dump
}

// baseError lets ProcessError embed *Error under a field name other than
// "Error", so the field does not shadow the promoted Error() method.
type baseError = Error

// NewProcessError wraps cause as a ProcessRunError with the given dump.
func NewProcessError(cause error, dump Dump) *ProcessError {
	return &ProcessError{
		baseError: &Error{Kind: KindProcessRunError, Message: "process run failed", Cause: cause},
		Dump:      dump,
	}
}
