package willowmap

import (
	"errors"
	"fmt"
)

// ErrDuplicate is returned when an element is added to a unique Collection
// that already contains it.
var ErrDuplicate = errors.New("willowmap: duplicate element in unique collection")

// CollectionEvent carries the element added to or removed from a
// Collection and its index at the time of the change.
type CollectionEvent[T any] struct {
	Element T
	Index   int
}

// Collection is an observable ordered sequence. Add and remove listeners
// fire after the slice has been updated.
type Collection[T comparable] struct {
	items  []T
	unique bool

	add    Emitter[CollectionEvent[T]]
	remove Emitter[CollectionEvent[T]]
	change Emitter[int]
}

// NewCollection creates a collection holding items.
func NewCollection[T comparable](items ...T) *Collection[T] {
	c := &Collection[T]{}
	c.items = append(c.items, items...)
	return c
}

// NewUniqueCollection creates a collection that rejects duplicates.
// Returns ErrDuplicate if items itself contains one.
func NewUniqueCollection[T comparable](items ...T) (*Collection[T], error) {
	c := &Collection[T]{unique: true}
	for _, it := range items {
		if c.Contains(it) {
			return nil, fmt.Errorf("new collection: %w", ErrDuplicate)
		}
		c.items = append(c.items, it)
	}
	return c, nil
}

// Len returns the number of elements.
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// At returns the element at index i.
func (c *Collection[T]) At(i int) T {
	return c.items[i]
}

// Items returns a copy of the elements.
func (c *Collection[T]) Items() []T {
	return append([]T(nil), c.items...)
}

// ForEach calls fn for every element in order over a snapshot, so fn may
// mutate the collection.
func (c *Collection[T]) ForEach(fn func(int, T)) {
	for i, it := range c.Items() {
		fn(i, it)
	}
}

// Contains reports whether el is an element.
func (c *Collection[T]) Contains(el T) bool {
	return c.IndexOf(el) >= 0
}

// IndexOf returns the index of el or -1.
func (c *Collection[T]) IndexOf(el T) int {
	for i, it := range c.items {
		if it == el {
			return i
		}
	}
	return -1
}

// Push appends el and returns the new length.
func (c *Collection[T]) Push(el T) (int, error) {
	if err := c.InsertAt(len(c.items), el); err != nil {
		return len(c.items), err
	}
	return len(c.items), nil
}

// Extend pushes every element of els, stopping at the first error.
func (c *Collection[T]) Extend(els []T) error {
	for _, el := range els {
		if _, err := c.Push(el); err != nil {
			return err
		}
	}
	return nil
}

// InsertAt inserts el at index.
// Panics if index is out of range.
func (c *Collection[T]) InsertAt(index int, el T) error {
	if index < 0 || index > len(c.items) {
		panic("willowmap: collection index out of range")
	}
	if c.unique && c.Contains(el) {
		return fmt.Errorf("insert: %w", ErrDuplicate)
	}
	var zero T
	c.items = append(c.items, zero)
	copy(c.items[index+1:], c.items[index:])
	c.items[index] = el
	c.change.Emit(len(c.items))
	c.add.Emit(CollectionEvent[T]{Element: el, Index: index})
	return nil
}

// RemoveAt removes and returns the element at index. ok is false if index
// is out of range.
func (c *Collection[T]) RemoveAt(index int) (el T, ok bool) {
	if index < 0 || index >= len(c.items) {
		return el, false
	}
	el = c.items[index]
	var zero T
	copy(c.items[index:], c.items[index+1:])
	c.items[len(c.items)-1] = zero
	c.items = c.items[:len(c.items)-1]
	c.change.Emit(len(c.items))
	c.remove.Emit(CollectionEvent[T]{Element: el, Index: index})
	return el, true
}

// Remove removes the first occurrence of el.
func (c *Collection[T]) Remove(el T) bool {
	i := c.IndexOf(el)
	if i < 0 {
		return false
	}
	c.RemoveAt(i)
	return true
}

// Pop removes and returns the last element.
func (c *Collection[T]) Pop() (T, bool) {
	return c.RemoveAt(len(c.items) - 1)
}

// SetAt replaces the element at index, emitting remove then add. Setting
// index == Len appends.
func (c *Collection[T]) SetAt(index int, el T) error {
	n := len(c.items)
	if index > n || index < 0 {
		panic("willowmap: collection index out of range")
	}
	if index == n {
		return c.InsertAt(index, el)
	}
	if c.unique {
		if j := c.IndexOf(el); j >= 0 && j != index {
			return fmt.Errorf("set: %w", ErrDuplicate)
		}
	}
	prev := c.items[index]
	c.items[index] = el
	c.remove.Emit(CollectionEvent[T]{Element: prev, Index: index})
	c.add.Emit(CollectionEvent[T]{Element: el, Index: index})
	return nil
}

// Clear removes every element, last first, emitting a remove for each.
func (c *Collection[T]) Clear() {
	for len(c.items) > 0 {
		c.Pop()
	}
}

// OnAdd registers fn for element additions.
func (c *Collection[T]) OnAdd(fn func(CollectionEvent[T])) ListenerKey {
	return c.add.On(fn)
}

// OnRemove registers fn for element removals.
func (c *Collection[T]) OnRemove(fn func(CollectionEvent[T])) ListenerKey {
	return c.remove.On(fn)
}

// OnLengthChange registers fn for changes of Len.
func (c *Collection[T]) OnLengthChange(fn func(int)) ListenerKey {
	return c.change.On(fn)
}
