package kv

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/wasi"
)

const (
	// Kind is the resource name used in slightfiles.
	Kind = "kv.filesystem"

	// Namespace is the import module guests use.
	Namespace = "slight:kv"

	// TypeStore tags *Store values in the shared registry.
	TypeStore resource.TypeID = 0x6b760001

	// TypeHandle tags open stores in the Host Context handle table.
	TypeHandle resource.TypeID = 0x6b760002
)

var (
	i32  = api.ValueTypeI32
	sig1 = []api.ValueType{i32}
)

// Capability provides kv.filesystem stores.
type Capability struct{}

// New returns the kv.filesystem capability.
func New() *Capability {
	return &Capability{}
}

// State is one named store.
type State struct {
	host.Resources
	store *Store
	log   *zap.Logger
	cfg   host.ResourceConfig
}

// Store returns the backing store.
func (s *State) Store() *Store {
	return s.store
}

// AttachResources keeps m and publishes the store in it under the config
// string, e.g. "kv.filesystem/orders".
func (s *State) AttachResources(m *resource.Map) error {
	if err := s.Resources.AttachResources(m); err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	_, err := m.Set(s.cfg.String(), TypeStore, s.store)
	return err
}

// Close withdraws the store from the registry.
func (s *State) Close() error {
	if s.Map != nil {
		if v, ok := s.Map.LookupTyped(s.cfg.String(), TypeStore); ok && v == s.store {
			s.Map.Remove(s.cfg.String())
		}
	}
	return nil
}

// Build opens the store. The "dir" option sets its directory; otherwise it
// lives under the host side of the /cache pre-open.
func (c *Capability) Build(_ context.Context, bc host.BuildContext) (host.State, error) {
	dir, ok := bc.Option("dir")
	if !ok {
		if err := bc.Config.Validate(); err != nil {
			return nil, err
		}
		dir = filepath.Join(cacheDir(bc.Environment), "kv", bc.Config.Name)
	}

	store, err := OpenStore(dir)
	if err != nil {
		return nil, err
	}

	log := bc.Log()
	log.Debug("kv store opened", zap.String("dir", dir))
	return &State{store: store, log: log, cfg: bc.Config}, nil
}

func cacheDir(env *wasi.Environment) string {
	if env != nil {
		if dir, ok := env.PreopenDir(wasi.CacheGuestPath); ok {
			return dir
		}
	}
	return wasi.CacheHostDir
}

// Link defines the slight:kv functions. Every kv.filesystem config shares
// them; open selects the store by name.
func (c *Capability) Link(l *host.Linker, _ host.ResourceConfig) error {
	defs := []struct {
		name string
		fn   host.Func
	}{
		{"open", host.Func{Params: []api.ValueType{i32, i32}, Results: sig1, Handler: open}},
		{"get", host.Func{Params: []api.ValueType{i32, i32, i32, i32, i32}, Results: sig1, Handler: get}},
		{"set", host.Func{Params: []api.ValueType{i32, i32, i32, i32, i32}, Results: sig1, Handler: set}},
		{"delete", host.Func{Params: []api.ValueType{i32, i32, i32}, Results: sig1, Handler: del}},
		{"close", host.Func{Params: sig1, Results: sig1, Handler: closeHandle}},
	}
	for _, d := range defs {
		if err := l.Define(Namespace, d.name, d.fn); err != nil {
			return err
		}
	}
	return nil
}

// Lookup finds the kv.filesystem state linked under name.
func Lookup(hc *host.Context, name string) (*State, bool) {
	return host.StateAs[*State](hc, host.ResourceConfig{Resource: Kind, Name: name})
}

// open(name_ptr, name_len) -> handle
func open(_ context.Context, hc *host.Context, mod api.Module, stack []uint64) {
	name, ok := host.ReadString(mod, host.U32(stack[0]), host.U32(stack[1]))
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	st, ok := Lookup(hc, name)
	if !ok {
		stack[0] = host.I32(host.StatusNotFound)
		return
	}
	h, err := hc.Handles().Insert(TypeHandle, st)
	if err != nil {
		stack[0] = host.I32(host.StatusFailed)
		return
	}
	stack[0] = host.I32(int32(h))
}

func stateFor(hc *host.Context, h uint64) (*State, bool) {
	v, ok := hc.Handles().GetTyped(resource.Handle(host.U32(h)), TypeHandle)
	if !ok {
		return nil, false
	}
	return v.(*State), true
}

// get(h, key_ptr, key_len, out_ptr, out_cap) -> len | status
func get(_ context.Context, hc *host.Context, mod api.Module, stack []uint64) {
	st, ok := stateFor(hc, stack[0])
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	key, ok := host.ReadString(mod, host.U32(stack[1]), host.U32(stack[2]))
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	val, err := st.store.Get(key)
	if err != nil {
		stack[0] = host.I32(st.status(err, "get", key))
		return
	}
	stack[0] = host.I32(host.WriteBytes(mod, host.U32(stack[3]), host.U32(stack[4]), val))
}

// set(h, key_ptr, key_len, val_ptr, val_len) -> status
func set(_ context.Context, hc *host.Context, mod api.Module, stack []uint64) {
	st, ok := stateFor(hc, stack[0])
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	key, ok := host.ReadString(mod, host.U32(stack[1]), host.U32(stack[2]))
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	val, ok := host.ReadBytes(mod, host.U32(stack[3]), host.U32(stack[4]))
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	if err := st.store.Set(key, val); err != nil {
		stack[0] = host.I32(st.status(err, "set", key))
		return
	}
	stack[0] = host.I32(host.StatusOK)
}

// delete(h, key_ptr, key_len) -> status
func del(_ context.Context, hc *host.Context, mod api.Module, stack []uint64) {
	st, ok := stateFor(hc, stack[0])
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	key, ok := host.ReadString(mod, host.U32(stack[1]), host.U32(stack[2]))
	if !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	if err := st.store.Delete(key); err != nil {
		stack[0] = host.I32(st.status(err, "delete", key))
		return
	}
	stack[0] = host.I32(host.StatusOK)
}

// close(h) -> status
func closeHandle(_ context.Context, hc *host.Context, _ api.Module, stack []uint64) {
	h := resource.Handle(host.U32(stack[0]))
	if _, ok := hc.Handles().GetTyped(h, TypeHandle); !ok {
		stack[0] = host.I32(host.StatusInvalid)
		return
	}
	hc.Handles().Remove(h)
	stack[0] = host.I32(host.StatusOK)
}

func (s *State) status(err error, op, key string) int32 {
	switch {
	case errors.Is(err, ErrNotFound):
		return host.StatusNotFound
	case errors.Is(err, ErrInvalidKey):
		return host.StatusInvalid
	default:
		s.log.Warn("kv operation failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
		return host.StatusFailed
	}
}
