package configs

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-host/config"
	"github.com/wippyai/wasm-host/host"
)

const (
	// Kind is the resource name used in slightfiles.
	Kind = "configs.local"

	// Namespace is the import module guests use.
	Namespace = "slight:configs"
)

// Capability serves read-only configuration values.
type Capability struct {
	secrets *config.SecretStore
}

// New returns the configs.local capability. Secrets, when non-nil, is
// consulted after the capability options and the builder settings.
func New(secrets *config.SecretStore) *Capability {
	return &Capability{secrets: secrets}
}

// State is a snapshot of the values visible to the guest.
type State struct {
	host.Resources
	values map[string]string
}

// Get returns the value for key.
func (s *State) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of visible values.
func (s *State) Len() int {
	return len(s.values)
}

// Build snapshots secrets, then builder settings, then capability options.
// Later sources override earlier ones. The "secrets" option names a secret
// store file to use instead of the one given to New.
func (c *Capability) Build(_ context.Context, bc host.BuildContext) (host.State, error) {
	values := make(map[string]string)

	secrets := c.secrets
	if path, ok := bc.Option("secrets"); ok {
		secrets = config.OpenSecretStore(path)
	}
	if secrets != nil {
		all, err := secrets.All()
		if err != nil {
			return nil, err
		}
		for k, v := range all {
			values[k] = v
		}
	}
	for _, kv := range bc.Settings {
		values[kv.Key] = kv.Value
	}
	for _, kv := range bc.Options {
		if kv.Key == "secrets" {
			continue
		}
		values[kv.Key] = kv.Value
	}

	return &State{values: values}, nil
}

// Link defines slight:configs.get.
func (c *Capability) Link(l *host.Linker, _ host.ResourceConfig) error {
	i32 := api.ValueTypeI32
	return l.Define(Namespace, "get", host.Func{
		Params:  []api.ValueType{i32, i32, i32, i32},
		Results: []api.ValueType{i32},
		Handler: get,
	})
}

// get(key_ptr, key_len, out_ptr, out_cap) -> len | status
// Every configs.local state is searched in link order.
func get(_ context.Context, hc *host.Context, mod api.Module, stack []uint64) {
	key, ok := host.ReadString(mod, host.U32(stack[0]), host.U32(stack[1]))
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}

	for _, cfg := range hc.Configs() {
		if cfg.Resource != Kind {
			continue
		}
		st, ok := host.StateAs[*State](hc, cfg)
		if !ok {
			continue
		}
		if v, ok := st.Get(key); ok {
			stack[0] = host.I32(host.WriteBytes(mod, host.U32(stack[2]), host.U32(stack[3]), []byte(v)))
			return
		}
	}
	stack[0] = host.I32(host.StatusNotFound)
}
