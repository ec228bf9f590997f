// Package wasmhost is a capability-linking WebAssembly host built on wazero.
//
// A host assembles an engine, a per-instance Host Context and a set of
// capabilities, then wires them so a guest module can call host
// functionality through its imports.
//
// # Architecture Overview
//
//	wasmhost/
//	├── engine/          wazero runtime construction from engine.Config
//	├── wasi/            inherited environment (stdio, args, env, pre-opens)
//	├── resource/        handle table and the shared resource registry
//	├── host/            capability contract, Host Context, import table
//	├── runtime/         single-use Builder and the built Instance
//	├── capabilities/    kv.filesystem, configs.local, pubsub.memory
//	├── config/          slightfile and secret store
//	├── scaffold/        interface download and project templates
//	├── errors/          structured errors (phase + kind)
//	└── cmd/slight/      command line
//
// # Quick Start
//
//	b, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := b.LinkEnvironment(); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := host.ResourceConfig{Resource: kv.Kind, Name: "orders"}
//	if err := b.LinkCapability(ctx, kv.New(), cfg); err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := b.Build(ctx, "app.wasm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	err = inst.Run(ctx)
//
// # Capabilities
//
// A capability implements host.Capability. Build produces the state stored
// in the Host Context under its host.ResourceConfig; Link defines the host
// functions guests import. Handlers receive the Host Context and find their
// state by config:
//
//	func (c *Counter) Link(l *host.Linker, cfg host.ResourceConfig) error {
//	    return l.Define("example:counter", "inc", host.Func{
//	        Results: []api.ValueType{api.ValueTypeI32},
//	        Handler: func(ctx context.Context, hc *host.Context, mod api.Module, stack []uint64) {
//	            st, _ := host.StateAs[*counterState](hc, cfg)
//	            st.n++
//	            stack[0] = host.I32(st.n)
//	        },
//	    })
//	}
//
// Capabilities that share values do so through a resource.Map, given to
// every state either at construction (runtime.WithResourceMap) or by
// Builder.LinkResourceMap.
//
// # Error Handling
//
// Every failure is an *errors.Error carrying the lifecycle phase and a
// kind:
//
//	var herr *errors.Error
//	if errors.As(err, &herr) && herr.Kind == errors.KindMissingImport {
//	    // herr.Cause is an *errors.MissingImportsError
//	}
package wasmhost
