package willowmap

// Interaction handles Map browser events. HandleEvent returns false to stop
// the event from reaching interactions added before this one.
type Interaction interface {
	HandleEvent(ev *MapBrowserEvent) bool
	Active() bool
	Map() *Map
	// SetMap is called by the Map when the interaction is added (m) or
	// removed (nil).
	SetMap(m *Map)
}

// BaseInteraction provides the Active and Map bookkeeping for an
// Interaction. Embed it and implement HandleEvent.
type BaseInteraction struct {
	m        *Map
	inactive bool
}

// Active reports whether the interaction receives events.
func (b *BaseInteraction) Active() bool { return !b.inactive }

// SetActive enables or disables the interaction.
func (b *BaseInteraction) SetActive(active bool) { b.inactive = !active }

// Map returns the Map the interaction is attached to.
func (b *BaseInteraction) Map() *Map { return b.m }

// SetMap records the attached Map.
func (b *BaseInteraction) SetMap(m *Map) { b.m = m }

// GestureCanceler is implemented by interactions that hold pointer gesture
// state across events. The Map calls CancelGesture when a pointer release
// arrives while it has no frame to dispatch the release with.
type GestureCanceler interface {
	CancelGesture()
}

// FuncInteraction adapts a function to the Interaction interface.
type FuncInteraction struct {
	BaseInteraction
	fn func(*MapBrowserEvent) bool
}

// NewInteraction creates an active interaction calling fn for every event.
func NewInteraction(fn func(*MapBrowserEvent) bool) *FuncInteraction {
	return &FuncInteraction{fn: fn}
}

// HandleEvent implements Interaction.
func (f *FuncInteraction) HandleEvent(ev *MapBrowserEvent) bool {
	return f.fn(ev)
}

// Control is a widget attached to a Map.
type Control interface {
	Map() *Map
	SetMap(m *Map)
}

// BaseControl attaches to a Map and, if Render is set, calls it after every
// painted frame.
type BaseControl struct {
	Render func(*MapEvent)

	m   *Map
	key ListenerKey
}

// Map returns the attached Map.
func (c *BaseControl) Map() *Map { return c.m }

// SetMap moves the control to m, or detaches it when m is nil.
func (c *BaseControl) SetMap(m *Map) {
	c.key.Remove()
	c.key = ListenerKey{}
	c.m = m
	if m != nil && c.Render != nil {
		c.key = m.OnPostRender(c.Render)
	}
}
