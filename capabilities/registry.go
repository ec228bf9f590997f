// Package capabilities maps slightfile resource kinds to the capabilities
// that serve them.
package capabilities

import (
	"context"
	"sort"
	"sync"

	"github.com/wippyai/wasm-host/capabilities/configs"
	"github.com/wippyai/wasm-host/capabilities/kv"
	"github.com/wippyai/wasm-host/capabilities/pubsub"
	"github.com/wippyai/wasm-host/config"
	hosterrors "github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/runtime"
)

// Factory constructs a capability for one slightfile entry.
type Factory func() host.Capability

// Registry is a set of capability factories keyed by resource kind.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry with every built-in capability. Secrets backs
// configs.local and may be nil.
func Default(secrets *config.SecretStore) *Registry {
	r := NewRegistry()
	_ = r.Register(kv.Kind, func() host.Capability { return kv.New() })
	_ = r.Register(pubsub.Kind, func() host.Capability { return pubsub.New() })
	_ = r.Register(configs.Kind, func() host.Capability { return configs.New(secrets) })
	return r
}

// Register adds f under kind.
func (r *Registry) Register(kind string, f Factory) error {
	if kind == "" || f == nil {
		return hosterrors.InvalidInput(hosterrors.PhaseConfig, "capability kind and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindDuplicate).
			Resource(kind).
			Detail("capability kind already registered").
			Build()
	}
	r.factories[kind] = f
	return nil
}

// New constructs the capability registered under kind.
func (r *Registry) New(kind string) (host.Capability, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, hosterrors.NotFound(hosterrors.PhaseConfig, "capability", kind)
	}
	return f(), nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LinkAll links one capability per slightfile entry, in file order.
func (r *Registry) LinkAll(ctx context.Context, b *runtime.Builder, caps []config.Capability) error {
	for _, c := range caps {
		capability, err := r.New(c.Config.Resource)
		if err != nil {
			return err
		}
		if err := b.LinkCapability(ctx, capability, c.Config, runtime.WithOptions(c.Options...)); err != nil {
			return err
		}
	}
	return nil
}
