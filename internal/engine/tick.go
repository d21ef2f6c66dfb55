package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/talgya/tilecity/internal/city"
)

// Driver defaults.
const (
	DefaultTickInterval  = 2 * time.Second
	DefaultFrameInterval = time.Second / 30
)

// FrameState is handed to each frame callback. It is a copy; callbacks never
// reach back into the store.
type FrameState struct {
	Grid        city.Grid
	GridVersion uint64
	Population  int
}

// Engine owns the two periodic drivers: the economy tick and the visual frame.
type Engine struct {
	Store         *Store
	TickInterval  time.Duration
	FrameInterval time.Duration

	// OnTick runs after each applied tick with the resulting snapshot.
	OnTick func(snap Snapshot)
	// OnFrame runs once per frame with the elapsed time since the previous frame.
	OnFrame func(dt time.Duration, fs FrameState)
}

// NewEngine creates drivers with the reference intervals.
func NewEngine(store *Store) *Engine {
	return &Engine{
		Store:         store,
		TickInterval:  DefaultTickInterval,
		FrameInterval: DefaultFrameInterval,
	}
}

// RunTicks drives Store.Tick on a fixed interval. The ticker only exists while
// the game is started and unpaused; it is torn down on pause and rebuilt on
// resume. Blocks until ctx is done.
func (e *Engine) RunTicks(ctx context.Context) {
	subID, updates := e.Store.Subscribe()
	defer e.Store.Unsubscribe(subID)

	var ticker *time.Ticker
	var tickC <-chan time.Time
	sync := func(running bool) {
		switch {
		case running && ticker == nil:
			ticker = time.NewTicker(e.TickInterval)
			tickC = ticker.C
			slog.Info("tick driver running", "interval", e.TickInterval)
		case !running && ticker != nil:
			ticker.Stop()
			ticker, tickC = nil, nil
			slog.Info("tick driver suspended")
		}
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	sync(e.Store.Running())
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			sync(e.Store.Running())
		case <-tickC:
			if !e.Store.Tick() {
				sync(e.Store.Running())
				continue
			}
			if e.OnTick != nil {
				e.OnTick(e.Store.Snapshot())
			}
		}
	}
}

// RunFrames calls OnFrame at FrameInterval regardless of pause state.
// Blocks until ctx is done.
func (e *Engine) RunFrames(ctx context.Context) {
	ticker := time.NewTicker(e.FrameInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if e.OnFrame != nil {
				e.OnFrame(dt, e.Store.FrameState())
			}
		}
	}
}
