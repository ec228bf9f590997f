package resource

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type testObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

func (o *testObserver) types() []EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]EventType, len(o.events))
	for i, e := range o.events {
		out[i] = e.Type
	}
	return out
}

func TestMap_RegisterLookup(t *testing.T) {
	m := NewMap()

	h, err := m.Register("kv/orders", 7, "store")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	v, ok := m.Lookup("kv/orders")
	if !ok || v != "store" {
		t.Fatalf("Lookup = %v, %v", v, ok)
	}
	if got, ok := m.Handle("kv/orders"); !ok || got != h {
		t.Fatalf("Handle = %v, %v", got, ok)
	}
	if v, ok := m.Get(h); !ok || v != "store" {
		t.Fatalf("Get = %v, %v", v, ok)
	}
	if _, ok := m.LookupTyped("kv/orders", 8); ok {
		t.Fatal("LookupTyped should reject wrong type")
	}
	if _, ok := m.Lookup("missing"); ok {
		t.Fatal("Lookup of missing name succeeded")
	}

	s, ok := LookupAs[string](m, "kv/orders")
	if !ok || s != "store" {
		t.Fatalf("LookupAs = %q, %v", s, ok)
	}
	if _, ok := LookupAs[int](m, "kv/orders"); ok {
		t.Fatal("LookupAs should fail on type mismatch")
	}
}

func TestMap_Errors(t *testing.T) {
	m := NewMap()

	if _, err := m.Register("", 0, 1); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("empty name: %v", err)
	}

	m.Register("a", 0, 1)
	if _, err := m.Register("a", 0, 2); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("duplicate name: %v", err)
	}

	m.Close()
	if _, err := m.Register("b", 0, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("after close: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("Len after close = %d", m.Len())
	}
}

func TestMap_CloneSharesRegistry(t *testing.T) {
	m := NewMap()
	c := m.Clone()

	if !m.Same(c) {
		t.Fatal("clone should share registry")
	}
	if m.Same(NewMap()) {
		t.Fatal("fresh map must not share registry")
	}

	c.Register("late", 0, "v")
	if v, ok := m.Lookup("late"); !ok || v != "v" {
		t.Fatal("registration through clone not visible to original")
	}
}

func TestMap_SetRemoveNames(t *testing.T) {
	m := NewMap()
	obs := &testObserver{}
	id := m.Subscribe(obs)

	m.Register("b", 0, 1)
	m.Register("a", 0, 2)
	m.Set("a", 0, 3)

	if v, _ := m.Lookup("a"); v != 3 {
		t.Fatalf("Set did not replace: %v", v)
	}
	if names := m.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("Names = %v", names)
	}

	v, ok := m.Remove("b")
	if !ok || v != 1 {
		t.Fatalf("Remove = %v, %v", v, ok)
	}
	if _, ok := m.Remove("b"); ok {
		t.Fatal("second Remove succeeded")
	}

	m.Unsubscribe(id)
	m.Register("c", 0, 4)

	want := []EventType{EventRegistered, EventRegistered, EventReplaced, EventRemoved}
	got := obs.types()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestMap_RemoveDoesNotDrop(t *testing.T) {
	m := NewMap()
	d := &dropCounter{}
	m.Register("x", 0, d)
	m.Remove("x")
	m.Register("y", 0, d)
	m.Close()
	if d.drops != 0 {
		t.Fatalf("registry dropped a value it does not own: %d", d.drops)
	}
}

func TestMap_Concurrent(t *testing.T) {
	m := NewMap()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := m.Clone()
			name := fmt.Sprintf("r%d", i)
			if _, err := c.Register(name, 0, i); err != nil {
				t.Errorf("Register %s: %v", name, err)
				return
			}
			if v, ok := c.Lookup(name); !ok || v != i {
				t.Errorf("Lookup %s = %v, %v", name, v, ok)
			}
			c.Names()
		}(i)
	}
	wg.Wait()

	if m.Len() != 16 {
		t.Fatalf("Len = %d, want 16", m.Len())
	}
}

func TestMap_UnsubscribeFunc(t *testing.T) {
	m := NewMap()
	var first, second int
	id1 := m.Subscribe(ObserverFunc(func(Event) { first++ }))
	m.Subscribe(ObserverFunc(func(Event) { second++ }))

	m.Register("a", 0, 1)
	m.Unsubscribe(id1)
	m.Unsubscribe(id1)
	m.Register("b", 0, 2)

	if first != 1 {
		t.Fatalf("first observer saw %d events, want 1", first)
	}
	if second != 2 {
		t.Fatalf("second observer saw %d events, want 2", second)
	}
}
