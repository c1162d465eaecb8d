package willowmap

// handler is one registered listener.
type handler[E any] struct {
	id uint32
	fn func(E)
}

// Emitter is a typed listener list. Listeners run synchronously in
// registration order. Adding or removing listeners while an event is being
// emitted affects the next Emit, not the current one.
//
// Emitter is not safe for concurrent use; willowmap mutates listener lists
// only from the goroutine driving the Map.
type Emitter[E any] struct {
	handlers []handler[E]
	nextID   uint32
}

// ListenerKey allows removing a registered listener.
type ListenerKey struct {
	unlisten func()
}

// Remove unregisters the listener so it no longer fires. Calling Remove on a
// zero ListenerKey, or more than once, is a no-op.
func (k ListenerKey) Remove() {
	if k.unlisten != nil {
		k.unlisten()
	}
}

// Unlisten removes every key in keys.
func Unlisten(keys []ListenerKey) {
	for _, k := range keys {
		k.Remove()
	}
}

// On registers fn and returns a key that removes it.
func (e *Emitter[E]) On(fn func(E)) ListenerKey {
	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, handler[E]{id: id, fn: fn})
	return ListenerKey{unlisten: func() { e.remove(id) }}
}

// Once registers fn for a single emission.
func (e *Emitter[E]) Once(fn func(E)) ListenerKey {
	var key ListenerKey
	key = e.On(func(ev E) {
		key.Remove()
		fn(ev)
	})
	return key
}

// Emit calls every listener with ev.
func (e *Emitter[E]) Emit(ev E) {
	if len(e.handlers) == 0 {
		return
	}
	snapshot := e.handlers
	if len(snapshot) > 1 {
		snapshot = append([]handler[E](nil), e.handlers...)
	}
	for _, h := range snapshot {
		h.fn(ev)
	}
}

// Len returns the number of registered listeners.
func (e *Emitter[E]) Len() int {
	return len(e.handlers)
}

// remove drops the listener with the given id.
// Uses copy+zero to avoid retaining the closure in the backing array.
func (e *Emitter[E]) remove(id uint32) {
	for i := range e.handlers {
		if e.handlers[i].id == id {
			copy(e.handlers[i:], e.handlers[i+1:])
			e.handlers[len(e.handlers)-1] = handler[E]{}
			e.handlers = e.handlers[:len(e.handlers)-1]
			return
		}
	}
}
