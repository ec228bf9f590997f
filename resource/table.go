package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed      = errors.New("resource table closed")
	ErrNameTaken   = errors.New("resource name already registered")
	ErrInvalidName = errors.New("resource name cannot be empty")
)

// Table is an in-memory handle table with slot reuse.
// Values implementing Dropper are dropped when removed or when the table
// is closed.
type Table struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value  any
	typeID TypeID
	valid  bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 16),
		freeList: make([]Handle, 0, 4),
	}
}

// Insert stores a value and returns its handle.
func (t *Table) Insert(typeID TypeID, value any) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrClosed
	}

	e := entry{typeID: typeID, value: value, valid: true}

	if n := len(t.freeList); n > 0 {
		handle := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[handle-1] = e
		return handle, nil
	}

	t.entries = append(t.entries, e)
	return Handle(len(t.entries)), nil
}

func (t *Table) lookup(handle Handle) (entry, bool) {
	if handle == 0 {
		return entry{}, false
	}
	idx := int(handle - 1)
	if idx >= len(t.entries) || !t.entries[idx].valid {
		return entry{}, false
	}
	return t.entries[idx], true
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.lookup(handle)
	return e.value, ok
}

// GetTyped retrieves a value only if it carries the expected type.
func (t *Table) GetTyped(handle Handle, typeID TypeID) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.lookup(handle)
	if !ok || e.typeID != typeID {
		return nil, false
	}
	return e.value, true
}

// TypeID returns the type tag for a handle.
func (t *Table) TypeID(handle Handle) (TypeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.lookup(handle)
	return e.typeID, ok
}

// Remove frees a handle, drops its value and returns it.
func (t *Table) Remove(handle Handle) (any, bool) {
	value, ok := t.take(handle)
	if !ok {
		return nil, false
	}
	drop(value)
	return value, true
}

// take frees a handle without dropping its value.
func (t *Table) take(handle Handle) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.lookup(handle); !ok {
		return nil, false
	}
	e := &t.entries[handle-1]
	value := e.value
	*e = entry{}
	t.freeList = append(t.freeList, handle)
	return value, true
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over live handles until fn returns false.
// fn must not call back into the table.
func (t *Table) Each(fn func(Handle, TypeID, any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid && !fn(Handle(i+1), e.typeID, e.value) {
			return
		}
	}
}

// Close drops every live value. Later inserts fail with ErrClosed.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	entries := t.entries
	t.entries = nil
	t.freeList = nil
	t.mu.Unlock()

	for _, e := range entries {
		if e.valid {
			drop(e.value)
		}
	}
	return nil
}

func drop(value any) {
	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
}
