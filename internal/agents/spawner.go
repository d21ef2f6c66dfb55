// Agent spawning: fresh vehicles and pedestrians with random positions,
// targets, speeds and looks.
package agents

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/tilecity/internal/city"
)

// Spawner creates agents for a field.
type Spawner struct {
	rng    *rand.Rand
	noise  opensimplex.Noise
	noiseT float64
	nextID AgentID
}

// NewSpawner creates a spawner drawing from rng. The noise seed drives the
// pedestrian jitter.
func NewSpawner(rng *rand.Rand, noiseSeed int64) *Spawner {
	return &Spawner{
		rng:    rng,
		noise:  opensimplex.NewNormalized(noiseSeed),
		nextID: 1,
	}
}

// SpawnVehicles places count vehicles on random road tiles.
func (s *Spawner) SpawnVehicles(count int, roads []city.Coord, grid city.Grid) []*Agent {
	out := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		a := &Agent{
			ID:    s.takeID(),
			Kind:  KindVehicle,
			Cur:   s.pick(roads),
			Speed: s.speed(MinVehicleSpeed, MaxVehicleSpeed),
			Color: VehicleColors[s.rng.Intn(len(VehicleColors))],
		}
		// Start part way along so vehicles do not move in lockstep.
		a.Progress = s.rng.Float64() * 0.5
		s.nextVehicleTarget(a, roads, grid)
		out = append(out, a)
	}
	return out
}

// SpawnPedestrians places count pedestrians on random walkable tiles.
func (s *Spawner) SpawnPedestrians(count int, walkable []city.Coord) []*Agent {
	out := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		a := &Agent{
			ID:    s.takeID(),
			Kind:  KindPedestrian,
			Cur:   s.pick(walkable),
			Speed: s.speed(MinWalkSpeed, MaxWalkSpeed),
			Phase: s.rng.Float64() * 2 * math.Pi,
		}
		a.CurOff = s.jitter(a.Cur)
		s.nextPedestrianTarget(a, walkable)
		out = append(out, a)
	}
	return out
}

func (s *Spawner) takeID() AgentID {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Spawner) pick(tiles []city.Coord) city.Coord {
	return tiles[s.rng.Intn(len(tiles))]
}

// pickOther picks a tile other than c, or c itself when nothing else exists.
func (s *Spawner) pickOther(tiles []city.Coord, c city.Coord) city.Coord {
	others := make([]city.Coord, 0, len(tiles))
	for _, t := range tiles {
		if t != c {
			others = append(others, t)
		}
	}
	if len(others) == 0 {
		return c
	}
	return s.pick(others)
}

func (s *Spawner) speed(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// jitter returns a noise-driven offset within ±JitterAmp of the tile center.
func (s *Spawner) jitter(c city.Coord) Offset {
	s.noiseT += 0.37 + s.rng.Float64()
	fx, fy := float64(c.X)*0.5, float64(c.Y)*0.5
	return Offset{
		DX: clampUnit(s.noise.Eval2(fx+s.noiseT, fy)*2-1) * JitterAmp,
		DY: clampUnit(s.noise.Eval2(fx, fy+s.noiseT)*2-1) * JitterAmp,
	}
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
