// Package wasi produces the inherited environment granted to every guest:
// standard streams, process arguments, environment variables and pre-opened
// directories, served through wazero's wasi_snapshot_preview1 host module.
//
// # Defaults
//
// DefaultConfig inherits os.Stdin, os.Stdout, os.Stderr and os.Args and
// pre-opens the host's ./target directory as /cache:
//
//	env, err := wasi.New(wasi.DefaultConfig())
//	if err != nil {
//	    // argument-encoding or environment-setup error
//	}
//
// # Failure modes
//
// New never aborts the process. Arguments that are not valid UTF-8 yield a
// KindArgumentEncoding error; a missing or unreadable pre-open directory
// yields a KindSetup error. Both carry PhaseEnvironment.
package wasi
