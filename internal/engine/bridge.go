package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/tilecity/internal/city"
	"github.com/talgya/tilecity/internal/llm"
)

// GoalSource produces a validated goal for the current city.
type GoalSource interface {
	GenerateGoal(ctx context.Context, req llm.GoalRequest) (*city.Goal, error)
}

// NewsSource produces a validated headline for the current city.
type NewsSource interface {
	GenerateHeadline(ctx context.Context, req llm.NewsRequest) (*llm.Headline, error)
}

// Bridge feeds generated goals and headlines into the store without ever
// blocking the tick or frame drivers.
type Bridge struct {
	Store        *Store
	Goals        GoalSource
	News         NewsSource // nil disables headlines
	GoalRetry    time.Duration
	NewsInterval time.Duration
	Timeout      time.Duration

	goalFlight flight
	newsFlight flight
	wg         sync.WaitGroup
}

// NewBridge creates a bridge with the reference cadence.
func NewBridge(store *Store, goals GoalSource, news NewsSource) *Bridge {
	return &Bridge{
		Store:        store,
		Goals:        goals,
		News:         news,
		GoalRetry:    15 * time.Second,
		NewsInterval: 45 * time.Second,
		Timeout:      20 * time.Second,
	}
}

// flight guards a single outstanding request.
type flight struct {
	busy   atomic.Bool
	mu     sync.Mutex
	cancel context.CancelFunc
	epoch  uint64
}

func (f *flight) begin(parent context.Context, epoch uint64, timeout time.Duration) (context.Context, bool) {
	if !f.busy.CompareAndSwap(false, true) {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	f.mu.Lock()
	f.cancel = cancel
	f.epoch = epoch
	f.mu.Unlock()
	return ctx, true
}

func (f *flight) end() {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.mu.Unlock()
	f.busy.Store(false)
}

// abortIfStale cancels the outstanding request when the city moved on.
func (f *flight) abortIfStale(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel == nil {
		return
	}
	if snap.Epoch != f.epoch || snap.Paused || !snap.AIEnabled {
		f.cancel()
	}
}

// InFlight reports whether a goal request is outstanding.
func (b *Bridge) InFlight() bool {
	return b.goalFlight.busy.Load()
}

// Wait blocks until outstanding requests have finished.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// RequestGoal starts a goal request for snap if the city needs one and no
// request is outstanding. Returns true if a request was started.
func (b *Bridge) RequestGoal(ctx context.Context, snap Snapshot) bool {
	if b.Goals == nil || !snap.AIEnabled || !snap.Running() || snap.Goal != nil {
		return false
	}
	fctx, ok := b.goalFlight.begin(ctx, snap.Epoch, b.Timeout)
	if !ok {
		return false
	}

	req := llm.GoalRequest{
		Stats:  snap.Stats,
		Counts: snap.Grid.Counts(),
		Costs:  b.Store.Catalog().Costs(),
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.goalFlight.end()

		goal, err := b.Goals.GenerateGoal(fctx, req)
		if err != nil {
			logGenerationError("goal", err)
			return
		}
		if b.Store.OfferGoal(goal, snap.Epoch) {
			slog.Info("new goal",
				"description", goal.Description,
				"target_type", goal.TargetType,
				"target_value", goal.TargetValue,
				"reward", goal.Reward,
			)
		} else {
			slog.Debug("goal discarded, city moved on", "epoch", snap.Epoch)
		}
	}()
	return true
}

// RequestNews starts a headline request if none is outstanding.
func (b *Bridge) RequestNews(ctx context.Context, snap Snapshot) bool {
	if b.News == nil || !snap.AIEnabled || !snap.Running() {
		return false
	}
	fctx, ok := b.newsFlight.begin(ctx, snap.Epoch, b.Timeout)
	if !ok {
		return false
	}

	req := llm.NewsRequest{Stats: snap.Stats, Counts: snap.Grid.Counts()}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.newsFlight.end()

		h, err := b.News.GenerateHeadline(fctx, req)
		if err != nil {
			logGenerationError("news", err)
			return
		}
		b.Store.OfferNews(h.Text, h.Type, snap.Epoch)
	}()
	return true
}

// Run drives the request cadence until ctx is done. A missing goal is retried
// every GoalRetry and requested right away when a goal is claimed, the city is
// reset, the game starts or AI is switched on.
func (b *Bridge) Run(ctx context.Context) {
	subID, updates := b.Store.Subscribe()
	defer b.Store.Unsubscribe(subID)

	goalTicker := time.NewTicker(b.GoalRetry)
	defer goalTicker.Stop()
	newsTicker := time.NewTicker(b.NewsInterval)
	defer newsTicker.Stop()

	prev := b.Store.Snapshot()
	b.RequestGoal(ctx, prev)

	for {
		select {
		case <-ctx.Done():
			b.Wait()
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			snap := u.Snapshot
			b.goalFlight.abortIfStale(snap)
			b.newsFlight.abortIfStale(snap)
			if needsImmediateGoal(prev, snap) {
				b.RequestGoal(ctx, snap)
			}
			prev = snap
		case <-goalTicker.C:
			b.RequestGoal(ctx, b.Store.Snapshot())
		case <-newsTicker.C:
			b.RequestNews(ctx, b.Store.Snapshot())
		}
	}
}

func needsImmediateGoal(prev, cur Snapshot) bool {
	if cur.Goal != nil {
		return false
	}
	return prev.Goal != nil ||
		prev.Epoch != cur.Epoch ||
		(!prev.AIEnabled && cur.AIEnabled) ||
		(!prev.Running() && cur.Running())
}

func logGenerationError(kind string, err error) {
	var ve *llm.ValidationError
	switch {
	case errors.As(err, &ve):
		slog.Warn("generated response rejected", "kind", kind, "error", ve.Err, "raw", ve.Raw)
	case errors.Is(err, context.Canceled):
		slog.Debug("generation cancelled", "kind", kind)
	default:
		slog.Warn("generation failed", "kind", kind, "error", err)
	}
}
