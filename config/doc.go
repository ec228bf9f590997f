// Package config loads the slightfile that lists the capabilities an
// application links, and the secret store that backs configs.local.
//
//	specversion = "0.1"
//	secret_store = ".slight/secrets.toml"
//
//	[[capability]]
//	resource = "kv.filesystem"
//	name = "orders"
//	  [capability.configs]
//	  dir = "/tmp/orders"
package config
