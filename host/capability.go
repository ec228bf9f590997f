package host

import (
	"context"

	"github.com/wippyai/wasm-host/resource"
)

// Capability is a host-side feature exposed to guests. Build produces the
// per-instance state; Link registers the host functions that operate on it.
type Capability interface {
	Build(ctx context.Context, bc BuildContext) (State, error)
	Link(l *Linker, cfg ResourceConfig) error
}

// State is the per-instance data of one linked capability.
//
// AttachResources hands the state a clone of the shared registry. A later
// call replaces the clone held from an earlier one. States that also
// implement io.Closer are closed with the Host Context.
type State interface {
	AttachResources(m *resource.Map) error
}

// Resources is embeddable by states that only need to keep the registry.
type Resources struct {
	Map *resource.Map
}

// AttachResources stores m.
func (r *Resources) AttachResources(m *resource.Map) error {
	r.Map = m
	return nil
}
