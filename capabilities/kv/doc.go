// Package kv implements the kv.filesystem capability: named key-value
// stores kept as one file per key.
//
// Guests import from slight:kv:
//
//	open(name_ptr, name_len) -> handle
//	get(handle, key_ptr, key_len, out_ptr, out_cap) -> len | status
//	set(handle, key_ptr, key_len, val_ptr, val_len) -> status
//	delete(handle, key_ptr, key_len) -> status
//	close(handle) -> status
//
// Each linked store is also published in the shared resource registry
// under its config string so other capabilities can write to it.
package kv
