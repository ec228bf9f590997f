package resource

import (
	"errors"
	"testing"
)

type dropCounter struct {
	drops int
}

func (d *dropCounter) Drop() { d.drops++ }

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h, err := table.Insert(1, "value")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	v, ok := table.Get(h)
	if !ok || v != "value" {
		t.Fatalf("Get = %v, %v", v, ok)
	}

	if _, ok := table.GetTyped(h, 2); ok {
		t.Fatal("GetTyped should reject wrong type")
	}
	if v, ok := table.GetTyped(h, 1); !ok || v != "value" {
		t.Fatalf("GetTyped = %v, %v", v, ok)
	}

	if id, ok := table.TypeID(h); !ok || id != 1 {
		t.Fatalf("TypeID = %v, %v", id, ok)
	}

	if _, ok := table.Remove(h); !ok {
		t.Fatal("Remove failed")
	}
	if _, ok := table.Get(h); ok {
		t.Fatal("Get should fail after Remove")
	}
	if _, ok := table.Remove(h); ok {
		t.Fatal("second Remove should fail")
	}
}

func TestTable_ZeroHandle(t *testing.T) {
	table := NewTable()
	if _, ok := table.Get(0); ok {
		t.Fatal("handle 0 must be invalid")
	}
}

func TestTable_SlotReuse(t *testing.T) {
	table := NewTable()

	h1, _ := table.Insert(1, "a")
	h2, _ := table.Insert(1, "b")
	table.Remove(h1)

	h3, _ := table.Insert(1, "c")
	if h3 != h1 {
		t.Fatalf("expected slot %d reused, got %d", h1, h3)
	}
	if table.Len() != 2 {
		t.Fatalf("Len = %d, want 2", table.Len())
	}
	if v, _ := table.Get(h2); v != "b" {
		t.Fatalf("h2 = %v", v)
	}
}

func TestTable_DropOnRemoveAndClose(t *testing.T) {
	table := NewTable()
	removed := &dropCounter{}
	kept := &dropCounter{}

	h, _ := table.Insert(1, removed)
	table.Insert(1, kept)

	table.Remove(h)
	if removed.drops != 1 {
		t.Fatalf("removed drops = %d", removed.drops)
	}

	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if kept.drops != 1 {
		t.Fatalf("kept drops = %d", kept.drops)
	}

	// second close is a no-op
	table.Close()
	if kept.drops != 1 {
		t.Fatalf("kept dropped twice")
	}

	if _, err := table.Insert(1, "late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Insert after Close = %v", err)
	}
}

func TestTable_Each(t *testing.T) {
	table := NewTable()
	table.Insert(1, "a")
	table.Insert(2, "b")
	table.Insert(3, "c")

	var seen []any
	table.Each(func(_ Handle, _ TypeID, v any) bool {
		seen = append(seen, v)
		return len(seen) < 2
	})
	if len(seen) != 2 {
		t.Fatalf("Each visited %d, want 2", len(seen))
	}
}
