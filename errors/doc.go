// Package errors provides structured error types for the capability host.
//
// Errors are categorized by Phase (where in the host lifecycle the error
// occurred) and Kind (error category). Phases follow the builder's lifecycle:
// engine, environment, capability, linking, load, instantiation, runtime.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLinking, errors.KindCollision).
//		Resource("slight:kv").
//		Detail("import %s already defined", "get").
//		Build()
//
// Or use the taxonomy constructors:
//
//	err := errors.CapabilityInit("kv.filesystem/orders", cause)
//	err := errors.Instantiation(path, errors.NewMissingImportsError(missing))
//
// Match by phase and kind with errors.Is:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindNotFound}) { ... }
//
// A target with an empty Kind matches every error of that phase.
package errors
