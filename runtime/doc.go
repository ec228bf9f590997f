// Package runtime links capabilities into a WebAssembly host and builds
// guest instances against them.
//
// # Quick Start
//
//	ctx := context.Background()
//	b, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := b.LinkEnvironment(); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := host.ResourceConfig{Resource: "kv.filesystem", Name: "orders"}
//	if err := b.LinkCapability(ctx, kv.New(), cfg); err != nil {
//	    log.Fatal(err)
//	}
//	inst, err := b.Build(ctx, "app.wasm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	if err := inst.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Builder lifecycle
//
// A Builder is single-use. Build consumes it; every later call returns a
// KindConsumed error. A failed link step is not rolled back: the builder
// keeps whatever was linked before the failure and returns a KindPoisoned
// error from every later call.
//
// # Sharing resources between capabilities
//
// WithResourceMap injects a registry at construction, so every capability
// receives a clone before it links. LinkResourceMap is the late form: it
// reaches only the capabilities linked before the call.
//
// # Import checking
//
// Build lists every function the guest imports and fails with an
// *errors.MissingImportsError naming each one nothing linked provides,
// before any module is instantiated.
package runtime
