package willowmap

import (
	"errors"
	"testing"
)

func TestCollectionPushAndEvents(t *testing.T) {
	c := NewCollection[string]()
	var adds []CollectionEvent[string]
	var lengths []int
	c.OnAdd(func(ev CollectionEvent[string]) {
		// Listeners see the updated slice.
		if c.At(ev.Index) != ev.Element {
			t.Errorf("At(%d) = %q during add of %q", ev.Index, c.At(ev.Index), ev.Element)
		}
		adds = append(adds, ev)
	})
	c.OnLengthChange(func(n int) { lengths = append(lengths, n) })

	if n, err := c.Push("a"); err != nil || n != 1 {
		t.Fatalf("Push = %d, %v", n, err)
	}
	c.Push("c")
	if err := c.InsertAt(1, "b"); err != nil {
		t.Fatal(err)
	}

	got := c.Items()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("Items = %v, want [a b c]", got)
	}
	if len(adds) != 3 || adds[2].Index != 1 {
		t.Errorf("adds = %+v", adds)
	}
	if len(lengths) != 3 || lengths[2] != 3 {
		t.Errorf("lengths = %v, want [1 2 3]", lengths)
	}
}

func TestCollectionRemove(t *testing.T) {
	c := NewCollection("a", "b", "c")
	var removed []CollectionEvent[string]
	c.OnRemove(func(ev CollectionEvent[string]) { removed = append(removed, ev) })

	if !c.Remove("b") {
		t.Fatal("Remove(b) = false")
	}
	if c.Remove("zzz") {
		t.Error("Remove of missing element = true")
	}
	if _, ok := c.RemoveAt(5); ok {
		t.Error("RemoveAt out of range = ok")
	}
	if el, ok := c.Pop(); !ok || el != "c" {
		t.Errorf("Pop = %q, %v", el, ok)
	}
	if len(removed) != 2 || removed[0].Element != "b" || removed[0].Index != 1 {
		t.Errorf("removed = %+v", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCollectionClearRemovesLastFirst(t *testing.T) {
	c := NewCollection(1, 2, 3)
	var order []int
	c.OnRemove(func(ev CollectionEvent[int]) { order = append(order, ev.Element) })
	c.Clear()
	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Errorf("remove order = %v, want [3 2 1]", order)
	}
}

func TestCollectionSetAt(t *testing.T) {
	c := NewCollection("a", "b")
	var events []string
	c.OnRemove(func(ev CollectionEvent[string]) { events = append(events, "-"+ev.Element) })
	c.OnAdd(func(ev CollectionEvent[string]) { events = append(events, "+"+ev.Element) })

	if err := c.SetAt(1, "x"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAt(2, "y"); err != nil {
		t.Fatal(err)
	}
	want := []string{"-b", "+x", "+y"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestUniqueCollection(t *testing.T) {
	if _, err := NewUniqueCollection(1, 2, 1); !errors.Is(err, ErrDuplicate) {
		t.Errorf("NewUniqueCollection with duplicate: err = %v, want ErrDuplicate", err)
	}
	c, err := NewUniqueCollection(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Push(2); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Push duplicate: err = %v, want ErrDuplicate", err)
	}
	if err := c.SetAt(0, 2); !errors.Is(err, ErrDuplicate) {
		t.Errorf("SetAt duplicate: err = %v, want ErrDuplicate", err)
	}
	if err := c.SetAt(1, 2); err != nil {
		t.Errorf("SetAt same index: %v", err)
	}
	if err := c.Extend([]int{3, 1, 4}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Extend: err = %v, want ErrDuplicate", err)
	}
	if c.Len() != 3 {
		t.Errorf("Len after partial Extend = %d, want 3", c.Len())
	}
}

func TestCollectionInsertAtPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("InsertAt(-1) did not panic")
		}
	}()
	NewCollection[int]().InsertAt(-1, 0)
}

func TestCollectionForEachSnapshot(t *testing.T) {
	c := NewCollection(1, 2, 3)
	var seen []int
	c.ForEach(func(_ int, v int) {
		seen = append(seen, v)
		c.Remove(v)
	})
	if len(seen) != 3 || c.Len() != 0 {
		t.Errorf("seen = %v, Len = %d", seen, c.Len())
	}
}
