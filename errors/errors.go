package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the lifecycle the error occurred
type Phase string

const (
	PhaseProbe     Phase = "probe"     // capability detection
	PhaseFetch     Phase = "fetch"     // artifact retrieval
	PhaseLoad      Phase = "load"      // artifact compilation
	PhaseEntry     Phase = "entry"     // module entry point
	PhaseConstruct Phase = "construct" // native resource construction
	PhaseRelease   Phase = "release"   // native resource teardown
	PhaseRuntime   Phase = "runtime"   // lifecycle operations
	PhaseConfig    Phase = "config"    // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupported          Kind = "unsupported"
	KindArtifactLoad         Kind = "artifact_load"
	KindModuleEntry          Kind = "module_entry"
	KindResourceConstruction Kind = "resource_construction"
	KindRelease              Kind = "release"
	KindNotInitialized       Kind = "not_initialized"
	KindAlreadyExists        Kind = "already_exists"
	KindInvalidInput         Kind = "invalid_input"
	KindInvalidData          Kind = "invalid_data"
	KindNotFound             Kind = "not_found"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Mode   string
	Stage  string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Stage != "" {
		b.WriteString(" at ")
		b.WriteString(e.Stage)
	}

	if e.Mode != "" {
		b.WriteString(" (")
		b.WriteString(e.Mode)
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return stderrors.Is(err, &Error{Kind: kind})
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Mode sets the runtime mode the error relates to
func (b *Builder) Mode(m string) *Builder {
	b.err.Mode = m
	return b
}

// Stage sets the native resource stage
func (b *Builder) Stage(s string) *Builder {
	b.err.Stage = s
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Unsupported creates an unsupported environment error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// ArtifactLoad creates an artifact fetch/compile error
func ArtifactLoad(mode string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindArtifactLoad,
		Mode:   mode,
		Detail: "load module artifact",
		Cause:  cause,
	}
}

// ModuleEntry creates an error for a failed module entry point
func ModuleEntry(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseEntry,
		Kind:   KindModuleEntry,
		Detail: detail,
		Cause:  cause,
	}
}

// ResourceConstruction creates an error for a failed native constructor
func ResourceConstruction(stage string, cause error) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindResourceConstruction,
		Stage:  stage,
		Detail: fmt.Sprintf("construct %s", stage),
		Cause:  cause,
	}
}

// Release creates an error for a failed native release
func Release(stage string, cause error) *Error {
	return &Error{
		Phase:  PhaseRelease,
		Kind:   KindRelease,
		Stage:  stage,
		Detail: fmt.Sprintf("release %s", stage),
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error for accessors used before Ready
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// AlreadyExists creates an error for a second owner of a process-wide singleton
func AlreadyExists(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAlreadyExists,
		Detail: fmt.Sprintf("%s already exists", what),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
