// Package engine produces the configured wazero runtime every guest runs in.
//
// The default configuration enables extended diagnostics (DWARF-backed trap
// backtraces) and module linking (guests composed of named sub-modules).
// Multi-memory is a configuration knob wazero rejects, so asking for it
// yields an engine-configuration error rather than a silently ignored flag.
//
//	eng, err := engine.New(ctx, engine.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
// An Engine is safe for concurrent use; it is owned by exactly one runtime
// builder and, after Build, by the instance it produced.
package engine
