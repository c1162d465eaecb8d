package willowmap

import "reflect"

// PropertyChange describes a single property update on an Object.
type PropertyChange struct {
	Key      string
	OldValue any
}

// Object is an observable key/value store. Setting a property to a value
// different from the current one emits a PropertyChange; Changed bumps the
// revision counter and emits a generic change event.
//
// Maps, views and layers embed an Object and expose typed accessors on top
// of it.
type Object struct {
	values   map[string]any
	revision int

	propertyChange Emitter[PropertyChange]
	change         Emitter[struct{}]
	keyed          map[string]*Emitter[PropertyChange]
}

// NewObject creates an Object holding the given initial values. No events
// are emitted for them.
func NewObject(values map[string]any) *Object {
	o := &Object{}
	for k, v := range values {
		o.setSilent(k, v)
	}
	return o
}

// Get returns the value stored under key, or nil.
func (o *Object) Get(key string) any {
	return o.values[key]
}

// Has reports whether a value is stored under key.
func (o *Object) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// Keys returns the stored keys in no particular order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	return keys
}

// Set stores value under key and emits a PropertyChange if it differs from
// the previous value.
func (o *Object) Set(key string, value any) {
	old, had := o.values[key]
	o.setSilent(key, value)
	if had && sameValue(old, value) {
		return
	}
	o.NotifyPropertyChange(key, old)
}

// SetProperties sets every entry of values.
func (o *Object) SetProperties(values map[string]any) {
	for k, v := range values {
		o.Set(k, v)
	}
}

// Unset removes key and emits a PropertyChange if it was present.
func (o *Object) Unset(key string) {
	old, had := o.values[key]
	if !had {
		return
	}
	delete(o.values, key)
	o.NotifyPropertyChange(key, old)
}

// NotifyPropertyChange emits a PropertyChange for key to generic and
// key-specific listeners.
func (o *Object) NotifyPropertyChange(key string, old any) {
	ev := PropertyChange{Key: key, OldValue: old}
	if e := o.keyed[key]; e != nil {
		e.Emit(ev)
	}
	o.propertyChange.Emit(ev)
}

// Changed increments the revision counter and emits a change event.
func (o *Object) Changed() {
	o.revision++
	o.change.Emit(struct{}{})
}

// Revision returns the number of Changed calls so far.
func (o *Object) Revision() int {
	return o.revision
}

// OnPropertyChange registers fn for every property change.
func (o *Object) OnPropertyChange(fn func(PropertyChange)) ListenerKey {
	return o.propertyChange.On(fn)
}

// OnPropertyChangeOf registers fn for changes of a single key.
func (o *Object) OnPropertyChangeOf(key string, fn func(PropertyChange)) ListenerKey {
	if o.keyed == nil {
		o.keyed = make(map[string]*Emitter[PropertyChange])
	}
	e := o.keyed[key]
	if e == nil {
		e = &Emitter[PropertyChange]{}
		o.keyed[key] = e
	}
	return e.On(fn)
}

// OnChange registers fn for generic change events.
func (o *Object) OnChange(fn func()) ListenerKey {
	return o.change.On(func(struct{}) { fn() })
}

// HasPropertyListeners reports whether any property-change listener is
// registered, generic or keyed.
func (o *Object) HasPropertyListeners() bool {
	if o.propertyChange.Len() > 0 {
		return true
	}
	for _, e := range o.keyed {
		if e.Len() > 0 {
			return true
		}
	}
	return false
}

// HasChangeListeners reports whether any change listener is registered.
func (o *Object) HasChangeListeners() bool {
	return o.change.Len() > 0
}

func (o *Object) setSilent(key string, value any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	o.values[key] = value
}

// sameValue compares two property values without panicking on
// uncomparable dynamic types; those always count as changed.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
