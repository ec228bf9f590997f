// Package host defines the contract between the runtime builder and the
// capabilities it links.
//
// A Capability builds one State per ResourceConfig. States live in the
// instance's Context, the mutable data every host function receives. Host
// functions are registered on a Linker, grouped by import namespace, and
// read their own state back through StateAs:
//
//	func (c *Capability) Link(l *host.Linker, cfg host.ResourceConfig) error {
//	    return l.Define("slight:kv", "open", host.Func{
//	        Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
//	        Results: []api.ValueType{api.ValueTypeI32},
//	        Handler: func(ctx context.Context, hc *host.Context, mod api.Module, stack []uint64) {
//	            st, _ := host.StateAs[*State](hc, cfg)
//	            ...
//	        },
//	    })
//	}
//
// Guest memory is accessed through ReadBytes, ReadString and WriteBytes.
// Results that are lengths use negative status codes for failure.
package host
