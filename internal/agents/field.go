package agents

import (
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/talgya/tilecity/internal/city"
)

// Config caps the number of agents.
type Config struct {
	MaxVehicles            int
	MaxPedestrians         int
	BasePedestrians        int
	ResidentsPerPedestrian int
}

// DefaultConfig returns the reference caps.
func DefaultConfig() Config {
	return Config{
		MaxVehicles:            30,
		MaxPedestrians:         60,
		BasePedestrians:        10,
		ResidentsPerPedestrian: 10,
	}
}

// VehicleCount is min(roads, MaxVehicles), or zero with fewer than two roads.
func (c Config) VehicleCount(roads int) int {
	if roads < 2 {
		return 0
	}
	return min(roads, c.MaxVehicles)
}

// PedestrianCount scales with population and never exceeds the walkable tiles.
func (c Config) PedestrianCount(walkable, population int) int {
	if walkable < 2 {
		return 0
	}
	want := c.BasePedestrians
	if c.ResidentsPerPedestrian > 0 && population > 0 {
		want += population / c.ResidentsPerPedestrian
	}
	return min(walkable, min(want, c.MaxPedestrians))
}

// Field owns every agent on the map. Sync and Step are called from the frame
// driver only; Latest may be called from any goroutine.
type Field struct {
	cfg Config
	sp  *Spawner

	grid        city.Grid
	gridVersion uint64
	synced      bool
	roads       []city.Coord
	walkable    []city.Coord
	vehicles    []*Agent
	pedestrians []*Agent
	elapsed     float64
	seq         uint64

	mu    sync.RWMutex
	frame Frame
}

// NewField creates an empty field.
func NewField(cfg Config, rng *rand.Rand, noiseSeed int64) *Field {
	return &Field{
		cfg: cfg,
		sp:  NewSpawner(rng, noiseSeed),
	}
}

// Sync brings the field up to date with the grid. Agents are regenerated when
// the road set or the walkable set changed. Returns true on regeneration.
func (f *Field) Sync(grid city.Grid, gridVersion uint64, population int) bool {
	if f.synced && gridVersion == f.gridVersion {
		return false
	}
	f.grid = grid
	f.gridVersion = gridVersion

	roads, walkable := eligibleTiles(grid)
	if f.synced && slices.Equal(roads, f.roads) && slices.Equal(walkable, f.walkable) {
		return false
	}
	f.synced = true
	f.roads, f.walkable = roads, walkable

	f.vehicles = nil
	if n := f.cfg.VehicleCount(len(roads)); n > 0 {
		f.vehicles = f.sp.SpawnVehicles(n, roads, grid)
	}
	f.pedestrians = nil
	if n := f.cfg.PedestrianCount(len(walkable), population); n > 0 {
		f.pedestrians = f.sp.SpawnPedestrians(n, walkable)
	}
	slog.Debug("agents regenerated",
		"vehicles", len(f.vehicles),
		"pedestrians", len(f.pedestrians),
		"roads", len(roads),
		"walkable", len(walkable),
	)
	return true
}

// eligibleTiles lists road and walkable tiles in row-major order.
func eligibleTiles(grid city.Grid) (roads, walkable []city.Coord) {
	for _, row := range grid.Tiles {
		for _, t := range row {
			c := city.Coord{X: t.X, Y: t.Y}
			if t.BuildingType == city.Road {
				roads = append(roads, c)
			}
			if city.Classify(t).Walkable {
				walkable = append(walkable, c)
			}
		}
	}
	return roads, walkable
}

// Step advances every agent by dt and publishes a new frame.
func (f *Field) Step(dt time.Duration) {
	sec := dt.Seconds()
	if sec < 0 {
		sec = 0
	}
	f.elapsed += sec
	for _, a := range f.vehicles {
		f.sp.advance(a, sec, f.roads, f.walkable, f.grid)
	}
	for _, a := range f.pedestrians {
		f.sp.advance(a, sec, f.roads, f.walkable, f.grid)
	}
	f.publish()
}

func (f *Field) publish() {
	f.seq++
	positions := make([]Position, 0, len(f.vehicles)+len(f.pedestrians))
	for _, a := range f.vehicles {
		positions = append(positions, a.Position(f.elapsed))
	}
	for _, a := range f.pedestrians {
		positions = append(positions, a.Position(f.elapsed))
	}

	f.mu.Lock()
	f.frame = Frame{Seq: f.seq, Elapsed: f.elapsed, Agents: positions}
	f.mu.Unlock()
}

// Latest returns the most recently published frame. The slice must not be modified.
func (f *Field) Latest() Frame {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.frame
}

// Counts returns the current number of vehicles and pedestrians.
func (f *Field) Counts() (vehicles, pedestrians int) {
	return len(f.vehicles), len(f.pedestrians)
}
