// Package engine provides the city state store, the economy tick, goal
// validation, and the periodic drivers around them.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/tilecity/internal/city"
)

// Outcome is the result of a player command. Rejections are outcomes, not errors.
type Outcome uint8

const (
	OutcomeNoop              Outcome = iota // Nothing to do (occupied tile, empty tile, no goal)
	OutcomeBuilt                            // A building was placed
	OutcomeDemolished                       // A tile was cleared
	OutcomeClaimed                          // A goal reward was paid out
	OutcomeInsufficientFunds                // Not enough money; news emitted
	OutcomePaused                           // Rejected while paused
	OutcomeOutOfBounds                      // Coordinates outside the grid
)

var outcomeNames = [...]string{"noop", "built", "demolished", "claimed", "insufficient_funds", "paused", "out_of_bounds"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Cue is a side effect for the presentation layer, usually a sound.
type Cue string

const (
	CueNone     Cue = ""
	CueBuild    Cue = "build"
	CueDemolish Cue = "demolish"
	CueError    Cue = "error"
	CueGoal     Cue = "goal"
	CueReward   Cue = "reward"
)

// Update is delivered to subscribers after every committed change.
type Update struct {
	Snapshot Snapshot `json:"state"`
	Cue      Cue      `json:"cue,omitempty"`
}

// Persister stores the flat document after each change.
type Persister interface {
	Save(doc Document) error
}

// Options configures a Store.
type Options struct {
	GridSize   int
	StartMoney int
	DecayRate  int
	NewsLimit  int
	Catalog    *city.Catalog
	Persister  Persister        // nil disables saving
	Now        func() time.Time // nil means time.Now
}

// DefaultOptions returns the reference setup.
func DefaultOptions() Options {
	return Options{
		GridSize:   city.DefaultSize,
		StartMoney: 1000,
		DecayRate:  DefaultDecayRate,
		NewsLimit:  13,
		Catalog:    city.DefaultCatalog(),
	}
}

type state struct {
	grid        city.Grid
	stats       city.CityStats
	goal        *city.Goal
	news        []city.NewsItem
	aiEnabled   bool
	gameStarted bool
	paused      bool
	volume      float64
	tool        city.BuildingType
}

// Store owns the grid, stats, goal and news. It is the single writer: every
// command runs to completion under one lock before any tick or frame reads.
type Store struct {
	opts Options

	mu          sync.RWMutex
	st          state
	epoch       uint64 // bumped on reset, pause and AI disable; stale generator results are dropped
	version     uint64
	gridVersion uint64

	subs    map[int]chan Update
	nextSub int

	saveMu       sync.Mutex
	savedVersion uint64
}

// NewStore creates a store holding a fresh city.
func NewStore(opts Options) *Store {
	if opts.Catalog == nil {
		opts.Catalog = city.DefaultCatalog()
	}
	if opts.GridSize <= 0 {
		opts.GridSize = city.DefaultSize
	}
	if opts.NewsLimit <= 0 {
		opts.NewsLimit = 13
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		opts: opts,
		subs: make(map[int]chan Update),
	}
	s.st = s.freshState()
	s.st.aiEnabled = true
	s.st.volume = 0.5
	s.st.tool = city.Road
	return s
}

func (s *Store) freshState() state {
	return state{
		grid:  city.NewGrid(s.opts.GridSize),
		stats: city.InitialStats(s.opts.StartMoney),
	}
}

// Catalog returns the read-only building table.
func (s *Store) Catalog() *city.Catalog {
	return s.opts.Catalog
}

// apply runs fn under the write lock. When fn reports a change the version is
// bumped, subscribers are notified and the document is persisted.
func (s *Store) apply(fn func(st *state) (Cue, bool)) {
	s.mu.Lock()
	cue, changed := fn(&s.st)
	if !changed {
		s.mu.Unlock()
		return
	}
	s.version++
	snap := s.snapshotLocked()
	s.broadcastLocked(Update{Snapshot: snap, Cue: cue})
	s.mu.Unlock()

	s.persist(snap)
}

// SelectTool sets the tool used by PlaceBuilding. None is the demolish tool.
func (s *Store) SelectTool(b city.BuildingType) bool {
	if !b.Valid() {
		return false
	}
	s.apply(func(st *state) (Cue, bool) {
		if st.tool == b {
			return CueNone, false
		}
		st.tool = b
		return CueNone, true
	})
	return true
}

// PlaceBuilding applies the current tool at (x, y).
func (s *Store) PlaceBuilding(x, y int) Outcome {
	outcome := OutcomeNoop
	s.apply(func(st *state) (Cue, bool) {
		if st.paused {
			outcome = OutcomePaused
			return CueNone, false
		}
		tile, ok := st.grid.At(x, y)
		if !ok {
			outcome = OutcomeOutOfBounds
			return CueNone, false
		}
		cat := s.opts.Catalog

		if st.tool == city.None {
			if tile.BuildingType == city.None {
				return CueNone, false
			}
			if !cat.CanAfford(st.stats.Money, city.None) {
				outcome = OutcomeInsufficientFunds
				s.pushNewsLocked(st, fmt.Sprintf("Not enough money to demolish (costs $%d).", cat.DemolitionCost), city.NewsNegative)
				return CueError, true
			}
			st.grid.Set(x, y, city.None)
			st.stats.Money -= cat.DemolitionCost
			s.gridVersion++
			outcome = OutcomeDemolished
			return CueDemolish, true
		}

		if tile.BuildingType != city.None {
			return CueNone, false
		}
		if !cat.CanAfford(st.stats.Money, st.tool) {
			outcome = OutcomeInsufficientFunds
			s.pushNewsLocked(st, fmt.Sprintf("Not enough money to build %s (costs $%d).", st.tool, cat.PriceOf(st.tool)), city.NewsNegative)
			return CueError, true
		}
		st.grid.Set(x, y, st.tool)
		st.stats.Money -= cat.PriceOf(st.tool)
		s.gridVersion++
		outcome = OutcomeBuilt
		return CueBuild, true
	})
	if outcome == OutcomeInsufficientFunds {
		slog.Debug("placement rejected", "x", x, "y", y, "reason", outcome)
	}
	return outcome
}

// Tick advances the economy by one day and checks the open goal.
// It does nothing unless the game is started and not paused.
func (s *Store) Tick() bool {
	ticked := false
	s.apply(func(st *state) (Cue, bool) {
		if !st.gameStarted || st.paused {
			return CueNone, false
		}
		st.stats = NextStats(st.stats, st.grid, s.opts.Catalog, s.opts.DecayRate)
		ticked = true

		if st.goal != nil && !st.goal.Completed && IsGoalMet(st.grid, st.stats, st.goal) {
			st.goal.Completed = true
			s.pushNewsLocked(st, fmt.Sprintf("Goal complete: %s Claim your $%d reward.", st.goal.Description, st.goal.Reward), city.NewsPositive)
			return CueGoal, true
		}
		return CueNone, true
	})
	return ticked
}

// ClaimReward pays out a completed goal and clears it.
func (s *Store) ClaimReward() Outcome {
	outcome := OutcomeNoop
	s.apply(func(st *state) (Cue, bool) {
		if st.goal == nil || !st.goal.Completed {
			return CueNone, false
		}
		reward := st.goal.Reward
		st.stats.Money += reward
		st.goal = nil
		s.pushNewsLocked(st, fmt.Sprintf("Reward claimed: +$%d for the city treasury.", reward), city.NewsPositive)
		outcome = OutcomeClaimed
		return CueReward, true
	})
	return outcome
}

// Reset starts a new city. Settings and the selected tool survive.
func (s *Store) Reset() {
	s.apply(func(st *state) (Cue, bool) {
		fresh := s.freshState()
		st.grid = fresh.grid
		st.stats = fresh.stats
		st.goal = nil
		st.news = nil
		s.epoch++
		s.gridVersion++
		return CueNone, true
	})
	slog.Info("city reset")
}

// Start marks the game as started so ticks begin.
func (s *Store) Start() {
	s.apply(func(st *state) (Cue, bool) {
		if st.gameStarted {
			return CueNone, false
		}
		st.gameStarted = true
		return CueNone, true
	})
}

// SetPaused pauses or resumes the simulation.
func (s *Store) SetPaused(paused bool) {
	s.apply(func(st *state) (Cue, bool) {
		if st.paused == paused {
			return CueNone, false
		}
		st.paused = paused
		if paused {
			s.epoch++
		}
		return CueNone, true
	})
}

// SetAIEnabled toggles goal and news generation.
func (s *Store) SetAIEnabled(enabled bool) {
	s.apply(func(st *state) (Cue, bool) {
		if st.aiEnabled == enabled {
			return CueNone, false
		}
		st.aiEnabled = enabled
		if !enabled {
			s.epoch++
		}
		return CueNone, true
	})
}

// SetVolume stores the audio volume, clamped to [0, 1].
func (s *Store) SetVolume(v float64) {
	v = clampVolume(v)
	s.apply(func(st *state) (Cue, bool) {
		if st.volume == v {
			return CueNone, false
		}
		st.volume = v
		return CueNone, true
	})
}

// OfferGoal installs a generated goal if it was requested in the current epoch
// and the city is still waiting for one.
func (s *Store) OfferGoal(goal *city.Goal, epoch uint64) bool {
	if goal == nil {
		return false
	}
	if err := goal.Check(); err != nil {
		slog.Warn("discarding invalid goal", "error", err)
		return false
	}
	accepted := false
	s.apply(func(st *state) (Cue, bool) {
		if epoch != s.epoch || st.goal != nil || !st.aiEnabled || st.paused {
			return CueNone, false
		}
		g := goal.Clone()
		g.Completed = false
		st.goal = g
		accepted = true
		return CueNone, true
	})
	return accepted
}

// OfferNews appends a generated headline under the same epoch rule as OfferGoal.
func (s *Store) OfferNews(text string, typ city.NewsType, epoch uint64) bool {
	if text == "" || !typ.Valid() {
		return false
	}
	accepted := false
	s.apply(func(st *state) (Cue, bool) {
		if epoch != s.epoch || !st.aiEnabled || st.paused {
			return CueNone, false
		}
		s.pushNewsLocked(st, text, typ)
		accepted = true
		return CueNone, true
	})
	return accepted
}

// Restore replaces the city with a persisted document. Keys that are missing
// or unreadable keep their fresh defaults; the per-key errors are returned.
func (s *Store) Restore(doc Document) []error {
	var errs []error
	s.apply(func(st *state) (Cue, bool) {
		next := s.freshState()
		next.aiEnabled = st.aiEnabled
		next.volume = st.volume
		next.tool = st.tool
		errs = decodeDocument(doc, &next, s.opts)
		*st = next
		s.epoch++
		s.gridVersion++
		return CueNone, true
	})
	for _, err := range errs {
		slog.Warn("snapshot field reset to default", "error", err)
	}
	return errs
}

func (s *Store) pushNewsLocked(st *state, text string, typ city.NewsType) {
	st.news = append(st.news, city.NewNewsItem(s.opts.Now(), text, typ))
	if len(st.news) > s.opts.NewsLimit {
		st.news = append([]city.NewsItem(nil), st.news[len(st.news)-s.opts.NewsLimit:]...)
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Grid:        s.st.grid.Clone(),
		Stats:       s.st.stats,
		Goal:        s.st.goal.Clone(),
		News:        append([]city.NewsItem(nil), s.st.news...),
		AIEnabled:   s.st.aiEnabled,
		GameStarted: s.st.gameStarted,
		Volume:      s.st.volume,
		Paused:      s.st.paused,
		Tool:        s.st.tool,
		Epoch:       s.epoch,
		Version:     s.version,
	}
}

// Running reports whether ticks should currently advance.
func (s *Store) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.gameStarted && !s.st.paused
}

// GridVersion changes whenever a tile changes.
func (s *Store) GridVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gridVersion
}

// FrameState returns what the frame driver needs: a grid copy, its version and
// the population.
func (s *Store) FrameState() FrameState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FrameState{
		Grid:        s.st.grid.Clone(),
		GridVersion: s.gridVersion,
		Population:  s.st.stats.Population,
	}
}

// Subscribe returns a channel that receives every committed update.
// Slow subscribers miss updates rather than block the store.
func (s *Store) Subscribe() (int, <-chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Update, 16)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscription.
func (s *Store) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Store) broadcastLocked(u Update) {
	for id, ch := range s.subs {
		select {
		case ch <- u:
		default:
			slog.Debug("subscriber lagging, update dropped", "sub_id", id, "version", u.Snapshot.Version)
		}
	}
}

func (s *Store) persist(snap Snapshot) {
	if s.opts.Persister == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if snap.Version <= s.savedVersion {
		return
	}
	doc, err := snap.Document()
	if err != nil {
		slog.Error("snapshot encode failed", "error", err)
		return
	}
	if err := s.opts.Persister.Save(doc); err != nil {
		slog.Error("snapshot save failed", "version", snap.Version, "error", err)
		return
	}
	s.savedVersion = snap.Version
}
