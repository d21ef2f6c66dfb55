package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_TicksOnlyWhileRunning(t *testing.T) {
	s := newTestStore(t)
	e := NewEngine(s)
	e.TickInterval = 10 * time.Millisecond
	var ticks atomic.Int32
	e.OnTick = func(Snapshot) { ticks.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.RunTicks(ctx)

	time.Sleep(50 * time.Millisecond)
	if d := s.Snapshot().Stats.Day; d != 1 {
		t.Fatalf("day=%d before start", d)
	}

	s.Start()
	waitFor(t, "ticks after start", func() bool { return s.Snapshot().Stats.Day >= 3 })

	s.SetPaused(true)
	time.Sleep(30 * time.Millisecond)
	paused := s.Snapshot().Stats.Day
	time.Sleep(60 * time.Millisecond)
	if d := s.Snapshot().Stats.Day; d != paused {
		t.Fatalf("day moved from %d to %d while paused", paused, d)
	}

	s.SetPaused(false)
	waitFor(t, "ticks after resume", func() bool { return s.Snapshot().Stats.Day > paused })
	if ticks.Load() == 0 {
		t.Fatalf("OnTick never called")
	}
}

func TestEngine_FramesRunWhilePaused(t *testing.T) {
	s := newTestStore(t)
	s.Start()
	s.SetPaused(true)
	e := NewEngine(s)
	e.FrameInterval = 5 * time.Millisecond

	var frames atomic.Int32
	e.OnFrame = func(dt time.Duration, fs FrameState) {
		if dt > 0 && fs.Grid.Size() > 0 {
			frames.Add(1)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.RunFrames(ctx)

	waitFor(t, "frames", func() bool { return frames.Load() >= 3 })
}
