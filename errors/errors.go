package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Phase indicates where in the host lifecycle the error occurred
type Phase string

const (
	PhaseEngine        Phase = "engine"        // engine construction
	PhaseEnvironment   Phase = "environment"   // inherited environment setup
	PhaseCapability    Phase = "capability"    // capability state construction
	PhaseLinking       Phase = "linking"       // import table wiring
	PhaseLoad          Phase = "load"          // guest binary loading
	PhaseInstantiation Phase = "instantiation" // guest instantiation
	PhaseRuntime       Phase = "runtime"       // calls into a live instance
	PhaseConfig        Phase = "config"        // configuration files
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupported      Kind = "unsupported"
	KindInvalidInput     Kind = "invalid_input"
	KindInvalidData      Kind = "invalid_data"
	KindNotFound         Kind = "not_found"
	KindArgumentEncoding Kind = "argument_encoding"
	KindSetup            Kind = "setup"
	KindInitialization   Kind = "initialization"
	KindCollision        Kind = "collision"
	KindDuplicate        Kind = "duplicate"
	KindMissingImport    Kind = "missing_import"
	KindInstantiation    Kind = "instantiation"
	KindConsumed         Kind = "consumed"
	KindPoisoned         Kind = "poisoned"
	KindExit             Kind = "exit"
	KindTrap             Kind = "trap"
)

// Error is the structured error type used throughout the host
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Resource string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Resource != "" {
		b.WriteString(" (")
		b.WriteString(e.Resource)
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
// A target with an empty Kind matches any error of the same phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Phase != t.Phase {
		return false
	}
	return t.Kind == "" || e.Kind == t.Kind
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

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Resource names the capability, module or file the error concerns
func (b *Builder) Resource(r string) *Builder {
	b.err.Resource = r
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
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

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Taxonomy constructors

// EngineConfig creates an engine-configuration error
func EngineConfig(kind Kind, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// EnvironmentSetup creates an environment-setup error for a host resource
func EnvironmentSetup(resource, detail string, cause error) *Error {
	return &Error{
		Phase:    PhaseEnvironment,
		Kind:     KindSetup,
		Resource: resource,
		Detail:   detail,
		Cause:    cause,
	}
}

// ArgumentEncoding reports an inherited argument the guest cannot represent
func ArgumentEncoding(index int, value string) *Error {
	return &Error{
		Phase:  PhaseEnvironment,
		Kind:   KindArgumentEncoding,
		Detail: fmt.Sprintf("argument %d is not valid UTF-8", index),
		Value:  value,
	}
}

// CapabilityInit creates a capability-initialization error
func CapabilityInit(resource string, cause error) *Error {
	return &Error{
		Phase:    PhaseCapability,
		Kind:     KindInitialization,
		Resource: resource,
		Detail:   "build capability state",
		Cause:    cause,
	}
}

// Collision creates a linking error for an already-claimed import
func Collision(module, name string) *Error {
	detail := fmt.Sprintf("namespace %q already defined", module)
	if name != "" {
		detail = fmt.Sprintf("import %s.%s already defined", module, name)
	}
	return &Error{
		Phase:    PhaseLinking,
		Kind:     KindCollision,
		Resource: module,
		Detail:   detail,
	}
}

// Duplicate reports a second capability linked under the same config
func Duplicate(resource string) *Error {
	return &Error{
		Phase:    PhaseLinking,
		Kind:     KindDuplicate,
		Resource: resource,
		Detail:   "capability already linked under this config",
	}
}

// Linking wraps an error raised while wiring a capability or module
func Linking(resource string, cause error) *Error {
	return &Error{
		Phase:    PhaseLinking,
		Kind:     KindInvalidInput,
		Resource: resource,
		Detail:   "link",
		Cause:    cause,
	}
}

// Load creates a module loading error
func Load(path, detail string, cause error) *Error {
	return &Error{
		Phase:    PhaseLoad,
		Kind:     KindInvalidData,
		Resource: path,
		Detail:   detail,
		Cause:    cause,
	}
}

// LoadNotFound reports an unreadable or missing guest path
func LoadNotFound(path string, cause error) *Error {
	return &Error{
		Phase:    PhaseLoad,
		Kind:     KindNotFound,
		Resource: path,
		Detail:   "read guest module",
		Cause:    cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(resource string, cause error) *Error {
	kind := KindInstantiation
	if _, ok := cause.(*MissingImportsError); ok {
		kind = KindMissingImport
	}
	return &Error{
		Phase:    PhaseInstantiation,
		Kind:     kind,
		Resource: resource,
		Detail:   "instantiate module",
		Cause:    cause,
	}
}

// Consumed is returned by a builder used after Build
func Consumed() *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindConsumed,
		Detail: "builder already consumed by Build",
	}
}

// Poisoned is returned by a builder used after a failed link step
func Poisoned(cause error) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindPoisoned,
		Detail: "builder unusable after earlier failure",
		Cause:  cause,
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

// Exit reports a guest that exited with a non-zero code
func Exit(code uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindExit,
		Detail: fmt.Sprintf("guest exited with code %d", code),
		Value:  code,
		Cause:  cause,
	}
}

// Trap reports a host function that failed while serving a guest call
func Trap(function string, cause error) *Error {
	return &Error{
		Phase:    PhaseRuntime,
		Kind:     KindTrap,
		Resource: function,
		Detail:   "host function trapped",
		Cause:    cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module   string // e.g., "slight:kv"
	Function string // e.g., "open"
}

// String renders the import as module.function
func (m MissingImport) String() string {
	return m.Module + "." + m.Function
}

// MissingImportsError is returned when a guest imports functions nothing linked
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from (module, function) pairs.
// Imports are sorted so the message is stable.
func NewMissingImportsError(imports []MissingImport) *MissingImportsError {
	sorted := append([]MissingImport(nil), imports...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Module != sorted[j].Module {
			return sorted[i].Module < sorted[j].Module
		}
		return sorted[i].Function < sorted[j].Function
	})
	return &MissingImportsError{Imports: sorted}
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[instantiation] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host function(s):\n", len(e.Imports)))

	byModule := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp.Function)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, fn := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}

// Has reports whether module.function is among the missing imports
func (e *MissingImportsError) Has(module, function string) bool {
	for _, imp := range e.Imports {
		if imp.Module == module && imp.Function == function {
			return true
		}
	}
	return false
}
