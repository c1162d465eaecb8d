package willowmap

import (
	"context"
	"sync"
	"time"
)

// Handle identifies a scheduled callback. The zero Handle is never issued.
type Handle uint64

// Scheduler is the cooperative clock a Map schedules work on. All callbacks
// run on the goroutine driving the scheduler.
type Scheduler interface {
	// RequestFrame arms fn for the next frame.
	RequestFrame(fn func(now time.Time)) Handle
	CancelFrame(h Handle)
	// SetTimeout arms fn to run after the current frame's callbacks.
	SetTimeout(fn func()) Handle
	ClearTimeout(h Handle)
	Now() time.Time
}

type scheduled struct {
	id    Handle
	frame func(time.Time)
	task  func()
}

// Loop is the default Scheduler. A host drives it by calling RunFrame once
// per display frame (ebiten Update, a headless runner, a test).
//
// Post is the only method safe for use from other goroutines.
type Loop struct {
	now    func() time.Time
	nextID Handle
	frames []scheduled
	tasks  []scheduled

	mu     sync.Mutex
	posted []func()
	wake   chan struct{}
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(now func() time.Time) LoopOption {
	return func(l *Loop) { l.now = now }
}

// NewLoop creates a Loop.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{now: time.Now, wake: make(chan struct{}, 1)}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Now implements Scheduler.
func (l *Loop) Now() time.Time { return l.now() }

// RequestFrame implements Scheduler.
func (l *Loop) RequestFrame(fn func(now time.Time)) Handle {
	l.nextID++
	l.frames = append(l.frames, scheduled{id: l.nextID, frame: fn})
	return l.nextID
}

// CancelFrame implements Scheduler.
func (l *Loop) CancelFrame(h Handle) {
	l.frames = removeScheduled(l.frames, h)
}

// SetTimeout implements Scheduler.
func (l *Loop) SetTimeout(fn func()) Handle {
	l.nextID++
	l.tasks = append(l.tasks, scheduled{id: l.nextID, task: fn})
	return l.nextID
}

// ClearTimeout implements Scheduler.
func (l *Loop) ClearTimeout(h Handle) {
	l.tasks = removeScheduled(l.tasks, h)
}

// Post queues fn to run on the loop goroutine at the start of the next
// RunFrame or RunTasks. Safe for concurrent use.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until work is posted or ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	l.mu.Lock()
	n := len(l.posted)
	l.mu.Unlock()
	if n > 0 {
		return nil
	}
	select {
	case <-l.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FramePending reports whether a frame callback is armed.
func (l *Loop) FramePending() bool { return len(l.frames) > 0 }

// Pending reports whether any frame, task or posted callback is waiting.
func (l *Loop) Pending() bool {
	l.mu.Lock()
	n := len(l.posted)
	l.mu.Unlock()
	return n > 0 || len(l.frames) > 0 || len(l.tasks) > 0
}

// RunFrame runs posted work, then the frame callbacks armed before the call,
// then drains the task lane. Frame callbacks armed while it runs wait for
// the next RunFrame. It returns the number of frame callbacks run.
func (l *Loop) RunFrame(now time.Time) int {
	l.runPosted()
	last := l.nextID
	n := 0
	for len(l.frames) > 0 && l.frames[0].id <= last {
		f := l.frames[0]
		l.frames = l.frames[1:]
		f.frame(now)
		n++
	}
	l.RunTasks()
	return n
}

// RunTasks runs posted work and task callbacks until both are empty.
func (l *Loop) RunTasks() {
	for {
		l.runPosted()
		if len(l.tasks) == 0 {
			return
		}
		t := l.tasks[0]
		l.tasks = l.tasks[1:]
		t.task()
	}
}

func (l *Loop) runPosted() {
	l.mu.Lock()
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()
	for _, fn := range posted {
		fn()
	}
}

func removeScheduled(s []scheduled, h Handle) []scheduled {
	for i := range s {
		if s[i].id == h {
			copy(s[i:], s[i+1:])
			s[len(s)-1] = scheduled{}
			return s[:len(s)-1]
		}
	}
	return s
}
