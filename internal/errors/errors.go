package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - invalid request or application data
	ErrorTypeValidation
	// Network errors - connectivity or timeout talking to a provider
	ErrorTypeNetwork
	// External errors - a provider answered with a failure
	ErrorTypeExternal
	// Internal errors - unexpected internal state
	ErrorTypeInternal
	// Initialization errors - first assistant turn could not be produced
	ErrorTypeInitialization
	// MessageProcessing errors - a conversation turn failed before a reply was produced
	ErrorTypeMessageProcessing
	// ToolExecution errors - a verification tool failed
	ErrorTypeToolExecution
	// MalformedOutput errors - model output did not honor the action contract
	ErrorTypeMalformedOutput
	// DuplicateTool errors - a tool name was registered twice
	ErrorTypeDuplicateTool
	// Conflict errors - operation not allowed in the current conversation state
	ErrorTypeConflict
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, the current operation failed
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Sentinels for errors.Is matching by type.
var (
	ErrConfig            = &Error{Type: ErrorTypeConfig}
	ErrValidation        = &Error{Type: ErrorTypeValidation}
	ErrNetwork           = &Error{Type: ErrorTypeNetwork}
	ErrExternal          = &Error{Type: ErrorTypeExternal}
	ErrInternal          = &Error{Type: ErrorTypeInternal}
	ErrInitialization    = &Error{Type: ErrorTypeInitialization}
	ErrMessageProcessing = &Error{Type: ErrorTypeMessageProcessing}
	ErrToolExecution     = &Error{Type: ErrorTypeToolExecution}
	ErrMalformedOutput   = &Error{Type: ErrorTypeMalformedOutput}
	ErrDuplicateTool     = &Error{Type: ErrorTypeDuplicateTool}
	ErrConflict          = &Error{Type: ErrorTypeConflict}
)

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// Recoverable reports whether the caller may simply retry the same operation.
func (e *Error) Recoverable() bool {
	switch e.Type {
	case ErrorTypeInitialization, ErrorTypeMessageProcessing, ErrorTypeNetwork, ErrorTypeExternal:
		return true
	}
	return false
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		e.Type.String(),
		e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

// String returns the wire name of the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeNetwork:
		return "NETWORK"
	case ErrorTypeExternal:
		return "EXTERNAL"
	case ErrorTypeInternal:
		return "INTERNAL"
	case ErrorTypeInitialization:
		return "INITIALIZATION"
	case ErrorTypeMessageProcessing:
		return "MESSAGE_PROCESSING"
	case ErrorTypeToolExecution:
		return "TOOL_EXECUTION"
	case ErrorTypeMalformedOutput:
		return "MALFORMED_MODEL_OUTPUT"
	case ErrorTypeDuplicateTool:
		return "DUPLICATE_TOOL"
	case ErrorTypeConflict:
		return "CONFLICT"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Convenience constructors for common error types

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// ValidationError creates a validation error
func ValidationError(message string) *Error {
	return New(ErrorTypeValidation, SeverityHigh, message)
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// NetworkError wraps a network error
func NetworkError(err error, message string) *Error {
	return Wrap(err, ErrorTypeNetwork, SeverityHigh, message)
}

// ExternalError wraps an external service error
func ExternalError(err error, message string) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityMedium, message)
}

// ExternalErrorf wraps an external service error with formatting
func ExternalErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityMedium, fmt.Sprintf(format, args...))
}

// InternalError creates an internal error
func InternalError(message string) *Error {
	return New(ErrorTypeInternal, SeverityCritical, message)
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// InitializationError wraps a failure to produce the opening assistant turn.
// Nothing is committed, so the caller can retry with the same inputs.
func InitializationError(err error, rule string) *Error {
	return Wrap(err, ErrorTypeInitialization, SeverityHigh, "failed to start conversation").
		WithContext("rule", rule)
}

// MessageProcessingError wraps a failed turn. The user message stays in the
// transcript and the conversation can be resent.
func MessageProcessingError(err error, rule string) *Error {
	return Wrap(err, ErrorTypeMessageProcessing, SeverityHigh, "failed to process message").
		WithContext("rule", rule)
}

// ToolExecutionError wraps a tool handler failure
func ToolExecutionError(err error, tool string) *Error {
	return Wrap(err, ErrorTypeToolExecution, SeverityLow, fmt.Sprintf("tool %s failed", tool)).
		WithContext("tool", tool)
}

// MalformedOutputError records model output that could not be parsed into an action
func MalformedOutputError(reason string, raw string) *Error {
	return New(ErrorTypeMalformedOutput, SeverityLow, "malformed model output: "+reason).
		WithContext("raw_length", len(raw))
}

// DuplicateToolError is raised when a tool name is registered twice
func DuplicateToolError(name string) *Error {
	return New(ErrorTypeDuplicateTool, SeverityCritical, fmt.Sprintf("tool %q already registered", name)).
		WithContext("tool", name)
}

// ConflictError reports an operation rejected by the conversation state
func ConflictError(format string, args ...interface{}) *Error {
	return New(ErrorTypeConflict, SeverityMedium, fmt.Sprintf(format, args...))
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	if e, ok := err.(*Error); ok {
		return e.IsFatal()
	}

	return false
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}

	if e, ok := err.(*Error); ok {
		return e.Severity
	}

	return SeverityMedium
}

// GetType returns the type of an error, looking through wrapped causes
func GetType(err error) ErrorType {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Type
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrorTypeInternal
}
