package host

import (
	"errors"
	"io"
	"sync"

	hosterrors "github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/wasi"
)

// Context is the per-instance mutable data every host function receives.
// It holds the inherited environment, one state per linked capability and
// a handle table for guest-visible resources.
type Context struct {
	env     *wasi.Environment
	states  map[ResourceConfig]State
	handles *resource.Table
	order   []ResourceConfig
	mu      sync.RWMutex
	closed  bool
}

// NewContext creates an empty Host Context around env.
func NewContext(env *wasi.Environment) *Context {
	return &Context{
		env:     env,
		states:  make(map[ResourceConfig]State),
		handles: resource.NewTable(),
	}
}

// Environment returns the inherited environment.
func (c *Context) Environment() *wasi.Environment {
	return c.env
}

// Handles returns the per-instance handle table.
func (c *Context) Handles() *resource.Table {
	return c.handles
}

// Insert stores state under cfg. An existing entry is an error unless
// override is set, in which case it is replaced and returned.
func (c *Context) Insert(cfg ResourceConfig, state State, override bool) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, hosterrors.New(hosterrors.PhaseLinking, hosterrors.KindInvalidInput).
			Resource(cfg.String()).
			Detail("host context closed").
			Build()
	}

	old, exists := c.states[cfg]
	if exists && !override {
		return nil, hosterrors.Duplicate(cfg.String())
	}

	c.states[cfg] = state
	if !exists {
		c.order = append(c.order, cfg)
	}
	return old, nil
}

// State returns the state linked under cfg.
func (c *Context) State(cfg ResourceConfig) (State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[cfg]
	return s, ok
}

// StateAs returns the state under cfg converted to T.
func StateAs[T State](c *Context, cfg ResourceConfig) (T, bool) {
	var zero T
	s, ok := c.State(cfg)
	if !ok {
		return zero, false
	}
	t, ok := s.(T)
	return t, ok
}

// Len returns the number of linked states.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.states)
}

// Configs returns the linked configs in first-insertion order.
func (c *Context) Configs() []ResourceConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ResourceConfig(nil), c.order...)
}

// Each calls fn for every state in first-insertion order and stops at the
// first error.
func (c *Context) Each(fn func(ResourceConfig, State) error) error {
	for _, cfg := range c.Configs() {
		s, ok := c.State(cfg)
		if !ok {
			continue
		}
		if err := fn(cfg, s); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the handle table and closes every state that implements
// io.Closer, newest first.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	order := c.order
	states := c.states
	c.order = nil
	c.states = make(map[ResourceConfig]State)
	c.mu.Unlock()

	var errs []error
	if err := c.handles.Close(); err != nil {
		errs = append(errs, err)
	}
	for i := len(order) - 1; i >= 0; i-- {
		if err := CloseState(states[order[i]]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseState closes s if it implements io.Closer.
func CloseState(s State) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
