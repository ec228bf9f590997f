// Package configs implements the configs.local capability. Guests read
// values with
//
//	slight:configs.get(key_ptr, key_len, out_ptr, out_cap) -> len | status
//
// Values come from the secret store, the builder's raw configuration list
// and the capability's own options, in increasing precedence.
package configs
