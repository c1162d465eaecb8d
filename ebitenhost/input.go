package ebitenhost

import (
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/phanxgames/willowmap"
)

// wheelPixels converts one wheel notch to a pixel delta.
const wheelPixels = 100

// pointerState is one pointer as sampled on a tick.
type pointerState struct {
	pos     willowmap.Vec2
	pressed bool
	button  willowmap.MouseButton
}

// inputState is everything polled from ebiten on one tick.
type inputState struct {
	mouse          pointerState
	wheelX, wheelY float64
	mods           willowmap.KeyModifiers
	keysDown       []string
	keysUp         []string
	// touches maps pointer ids (1 and up; 0 is the mouse) to positions.
	touches map[int]willowmap.Vec2
}

// poller samples ebiten input and turns the difference between ticks into
// raw browser events.
type poller struct {
	prev     inputState
	keys     []ebiten.Key
	touchIDs []ebiten.TouchID
}

// readModifiers reads the current keyboard modifier state.
func readModifiers() willowmap.KeyModifiers {
	var mods willowmap.KeyModifiers
	if ebiten.IsKeyPressed(ebiten.KeyShift) {
		mods |= willowmap.ModShift
	}
	if ebiten.IsKeyPressed(ebiten.KeyControl) {
		mods |= willowmap.ModCtrl
	}
	if ebiten.IsKeyPressed(ebiten.KeyAlt) {
		mods |= willowmap.ModAlt
	}
	if ebiten.IsKeyPressed(ebiten.KeyMeta) {
		mods |= willowmap.ModMeta
	}
	return mods
}

// read samples the current ebiten input state.
func (p *poller) read() inputState {
	var s inputState
	s.mods = readModifiers()

	mx, my := ebiten.CursorPosition()
	s.mouse.pos = willowmap.Vec2{X: float64(mx), Y: float64(my)}
	left := ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
	right := ebiten.IsMouseButtonPressed(ebiten.MouseButtonRight)
	middle := ebiten.IsMouseButtonPressed(ebiten.MouseButtonMiddle)
	switch {
	case left:
		s.mouse.pressed, s.mouse.button = true, willowmap.MouseButtonLeft
	case right:
		s.mouse.pressed, s.mouse.button = true, willowmap.MouseButtonRight
	case middle:
		s.mouse.pressed, s.mouse.button = true, willowmap.MouseButtonMiddle
	}

	s.wheelX, s.wheelY = ebiten.Wheel()

	p.keys = inpututil.AppendJustPressedKeys(p.keys[:0])
	for _, k := range p.keys {
		s.keysDown = append(s.keysDown, keyName(k))
	}
	p.keys = inpututil.AppendJustReleasedKeys(p.keys[:0])
	for _, k := range p.keys {
		s.keysUp = append(s.keysUp, keyName(k))
	}

	p.touchIDs = ebiten.AppendTouchIDs(p.touchIDs[:0])
	if len(p.touchIDs) > 0 {
		s.touches = make(map[int]willowmap.Vec2, len(p.touchIDs))
		for _, tid := range p.touchIDs {
			tx, ty := ebiten.TouchPosition(tid)
			s.touches[int(tid)+1] = willowmap.Vec2{X: float64(tx), Y: float64(ty)}
		}
	}
	return s
}

// poll reads the current state and returns the events since the last poll.
func (p *poller) poll(now time.Time) []willowmap.BrowserEvent {
	cur := p.read()
	events := translate(p.prev, cur, now)
	p.prev = cur
	return events
}

// translate derives raw events from two consecutive input samples.
func translate(prev, cur inputState, now time.Time) []willowmap.BrowserEvent {
	var out []willowmap.BrowserEvent
	emit := func(typ willowmap.BrowserEventType, id int, pos willowmap.Vec2, button willowmap.MouseButton) {
		out = append(out, willowmap.BrowserEvent{
			Type:      typ,
			Pixel:     pos,
			Button:    button,
			PointerID: id,
			Modifiers: cur.mods,
			Target:    pos,
			Time:      now,
		})
	}

	// Mouse is pointer 0.
	pm, cm := prev.mouse, cur.mouse
	if !pm.pressed && cm.pressed {
		emit(willowmap.PointerDown, 0, cm.pos, cm.button)
	}
	if pm.pos != cm.pos {
		button := cm.button
		if pm.pressed {
			button = pm.button
		}
		emit(willowmap.PointerMove, 0, cm.pos, button)
	}
	if pm.pressed && !cm.pressed {
		emit(willowmap.PointerUp, 0, cm.pos, pm.button)
	}

	if cur.wheelX != 0 || cur.wheelY != 0 {
		out = append(out, willowmap.BrowserEvent{
			Type:      willowmap.Wheel,
			Pixel:     cm.pos,
			DeltaX:    -cur.wheelX * wheelPixels,
			DeltaY:    -cur.wheelY * wheelPixels,
			Modifiers: cur.mods,
			Target:    cm.pos,
			Time:      now,
		})
	}

	for _, k := range cur.keysDown {
		out = append(out, willowmap.BrowserEvent{Type: willowmap.KeyDown, Key: k, Modifiers: cur.mods, Target: cm.pos, Time: now})
	}
	for _, k := range cur.keysUp {
		out = append(out, willowmap.BrowserEvent{Type: willowmap.KeyUp, Key: k, Modifiers: cur.mods, Target: cm.pos, Time: now})
	}

	// Touches behave as left-button pointers.
	for id, pos := range cur.touches {
		last, seen := prev.touches[id]
		switch {
		case !seen:
			emit(willowmap.PointerDown, id, pos, willowmap.MouseButtonLeft)
		case last != pos:
			emit(willowmap.PointerMove, id, pos, willowmap.MouseButtonLeft)
		}
	}
	for id, pos := range prev.touches {
		if _, ok := cur.touches[id]; !ok {
			emit(willowmap.PointerUp, id, pos, willowmap.MouseButtonLeft)
		}
	}
	return out
}

// keyName maps ebiten keys to the key names interactions match on.
func keyName(k ebiten.Key) string {
	switch k {
	case ebiten.KeyArrowLeft:
		return "ArrowLeft"
	case ebiten.KeyArrowRight:
		return "ArrowRight"
	case ebiten.KeyArrowUp:
		return "ArrowUp"
	case ebiten.KeyArrowDown:
		return "ArrowDown"
	case ebiten.KeyEqual, ebiten.KeyNumpadAdd:
		return "+"
	case ebiten.KeyMinus, ebiten.KeyNumpadSubtract:
		return "-"
	default:
		return k.String()
	}
}
