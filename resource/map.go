package resource

import (
	"sort"
	"sync"
)

// Map is a shared registry that lets one capability find resources owned by
// another. A Map is a handle onto shared state: Clone is cheap and every
// clone observes the same registrations. All methods are safe for
// concurrent use.
//
// The registry only references values; ownership stays with the capability
// that registered them, so Remove and Close never drop values.
type Map struct {
	reg *registry
}

type registry struct {
	table     *Table
	names     map[string]Handle
	observers []observerEntry
	nextObs   ObserverID
	mu        sync.RWMutex
	closed    bool
}

// NewMap creates an empty registry.
func NewMap() *Map {
	return &Map{
		reg: &registry{
			table: NewTable(),
			names: make(map[string]Handle),
		},
	}
}

// Clone returns another handle onto the same registry.
func (m *Map) Clone() *Map {
	return &Map{reg: m.reg}
}

// Same reports whether m and other share one registry.
func (m *Map) Same(other *Map) bool {
	return other != nil && m.reg == other.reg
}

// Register adds value under name. It fails if name is already taken.
func (m *Map) Register(name string, typeID TypeID, value any) (Handle, error) {
	return m.put(name, typeID, value, false)
}

// Set adds or replaces the value under name.
func (m *Map) Set(name string, typeID TypeID, value any) (Handle, error) {
	return m.put(name, typeID, value, true)
}

func (m *Map) put(name string, typeID TypeID, value any, replace bool) (Handle, error) {
	if name == "" {
		return 0, ErrInvalidName
	}

	r := m.reg
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}

	evType := EventRegistered
	if old, ok := r.names[name]; ok {
		if !replace {
			r.mu.Unlock()
			return 0, ErrNameTaken
		}
		r.table.take(old)
		evType = EventReplaced
	}

	h, err := r.table.Insert(typeID, value)
	if err != nil {
		r.mu.Unlock()
		return 0, err
	}
	r.names[name] = h
	observers := r.snapshotObservers()
	r.mu.Unlock()

	notify(observers, Event{Type: evType, Name: name, Handle: h, TypeID: typeID, Value: value})
	return h, nil
}

// Handle returns the handle registered under name.
func (m *Map) Handle(name string) (Handle, bool) {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()
	h, ok := m.reg.names[name]
	return h, ok
}

// Lookup returns the value registered under name.
func (m *Map) Lookup(name string) (any, bool) {
	h, ok := m.Handle(name)
	if !ok {
		return nil, false
	}
	return m.reg.table.Get(h)
}

// LookupTyped returns the value under name only if it carries typeID.
func (m *Map) LookupTyped(name string, typeID TypeID) (any, bool) {
	h, ok := m.Handle(name)
	if !ok {
		return nil, false
	}
	return m.reg.table.GetTyped(h, typeID)
}

// Get returns the value behind a handle.
func (m *Map) Get(h Handle) (any, bool) {
	return m.reg.table.Get(h)
}

// LookupAs returns the value under name converted to T.
func LookupAs[T any](m *Map, name string) (T, bool) {
	var zero T
	if m == nil {
		return zero, false
	}
	v, ok := m.Lookup(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Remove unregisters name and returns the value it referenced.
func (m *Map) Remove(name string) (any, bool) {
	r := m.reg
	r.mu.Lock()
	h, ok := r.names[name]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	typeID, _ := r.table.TypeID(h)
	value, _ := r.table.take(h)
	delete(r.names, name)
	observers := r.snapshotObservers()
	r.mu.Unlock()

	notify(observers, Event{Type: EventRemoved, Name: name, Handle: h, TypeID: typeID, Value: value})
	return value, true
}

// Names returns every registered name in sorted order.
func (m *Map) Names() []string {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()

	names := make([]string, 0, len(m.reg.names))
	for name := range m.reg.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered names.
func (m *Map) Len() int {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()
	return len(m.reg.names)
}

// ObserverID identifies a subscription made with Subscribe.
type ObserverID uint64

type observerEntry struct {
	id ObserverID
	o  Observer
}

// Subscribe adds an observer for lifecycle events. The returned ID removes
// it again.
func (m *Map) Subscribe(o Observer) ObserverID {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	m.reg.nextObs++
	m.reg.observers = append(m.reg.observers, observerEntry{id: m.reg.nextObs, o: o})
	return m.reg.nextObs
}

// Unsubscribe removes the observer registered under id. Unknown IDs are
// ignored.
func (m *Map) Unsubscribe(id ObserverID) {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	for i, e := range m.reg.observers {
		if e.id == id {
			m.reg.observers = append(m.reg.observers[:i:i], m.reg.observers[i+1:]...)
			return
		}
	}
}

// Close unregisters everything and rejects later registrations. It closes
// the registry for every clone.
func (m *Map) Close() error {
	r := m.reg
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for name, h := range r.names {
		r.table.take(h)
		delete(r.names, name)
	}
	observers := r.snapshotObservers()
	r.mu.Unlock()

	notify(observers, Event{Type: EventClosed})
	return r.table.Close()
}

func (r *registry) snapshotObservers() []Observer {
	if len(r.observers) == 0 {
		return nil
	}
	out := make([]Observer, len(r.observers))
	for i, e := range r.observers {
		out[i] = e.o
	}
	return out
}

func notify(observers []Observer, e Event) {
	for _, o := range observers {
		o.OnResourceEvent(e)
	}
}
