// Package resource provides the handle table and the shared registry used
// to pass resources between capabilities.
//
// Table maps small integer handles to values and reuses freed slots. Guest
// code sees only the handle; the value stays on the host side.
//
// Map is a named registry over a Table. It is shared by reference: Clone
// returns another handle onto the same registry, so a value registered by
// one capability is visible to every other capability holding a clone.
//
//	m := resource.NewMap()
//	h, err := m.Register("kv.filesystem/orders", kvType, store)
//	v, ok := resource.LookupAs[*kv.Store](m.Clone(), "kv.filesystem/orders")
package resource
