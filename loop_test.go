package willowmap

import (
	"context"
	"testing"
	"time"
)

func TestLoopRunFrameOrder(t *testing.T) {
	l := NewLoop()
	var order []string
	l.SetTimeout(func() { order = append(order, "task") })
	l.RequestFrame(func(time.Time) { order = append(order, "frame1") })
	l.Post(func() { order = append(order, "posted") })
	l.RequestFrame(func(time.Time) { order = append(order, "frame2") })

	if n := l.RunFrame(time.Unix(1, 0)); n != 2 {
		t.Errorf("RunFrame ran %d frames, want 2", n)
	}
	want := []string{"posted", "frame1", "frame2", "task"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if l.Pending() {
		t.Error("loop still pending after RunFrame")
	}
}

func TestLoopFrameArmedDuringFrameWaits(t *testing.T) {
	l := NewLoop()
	var frames int
	var tick func(time.Time)
	tick = func(time.Time) {
		frames++
		l.RequestFrame(tick)
	}
	l.RequestFrame(tick)

	l.RunFrame(time.Unix(1, 0))
	if frames != 1 {
		t.Fatalf("frames = %d, want 1", frames)
	}
	if !l.FramePending() {
		t.Fatal("re-armed frame should be pending")
	}
	l.RunFrame(time.Unix(2, 0))
	if frames != 2 {
		t.Errorf("frames = %d, want 2", frames)
	}
}

func TestLoopCancel(t *testing.T) {
	l := NewLoop()
	ran := false
	f := l.RequestFrame(func(time.Time) { ran = true })
	task := l.SetTimeout(func() { ran = true })
	if f == 0 || task == 0 || f == task {
		t.Fatalf("handles %d, %d should be distinct and non-zero", f, task)
	}
	l.CancelFrame(f)
	l.ClearTimeout(task)
	l.CancelFrame(999)

	l.RunFrame(time.Unix(1, 0))
	if ran {
		t.Error("cancelled callbacks ran")
	}
}

func TestLoopTasksPostedByTasksRun(t *testing.T) {
	l := NewLoop()
	var n int
	l.SetTimeout(func() {
		n++
		l.SetTimeout(func() { n++ })
	})
	l.RunTasks()
	if n != 2 {
		t.Errorf("tasks run = %d, want 2", n)
	}
}

func TestLoopWait(t *testing.T) {
	l := NewLoop()
	go l.Post(func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	l.RunFrame(time.Now())

	idle := NewLoop()
	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	if err := idle.Wait(short); err == nil {
		t.Error("Wait with nothing posted should time out")
	}
}

func TestLoopClock(t *testing.T) {
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLoop(WithClock(func() time.Time { return fixed }))
	if !l.Now().Equal(fixed) {
		t.Errorf("Now = %v, want %v", l.Now(), fixed)
	}
}
