package agents

import "github.com/talgya/tilecity/internal/city"

// nextVehicleTarget picks the next road tile adjacent to a.Cur. The tile the
// vehicle just left is skipped unless it is the only way out. A vehicle with
// no road neighbors heads for a random road tile from where it stands.
func (s *Spawner) nextVehicleTarget(a *Agent, roads []city.Coord, grid city.Grid) {
	options := roadNeighbors(grid, a.Cur)
	if len(options) == 0 {
		a.Target = s.pickOther(roads, a.Cur)
		return
	}
	if len(options) > 1 && a.HasPrev {
		kept := options[:0]
		for _, c := range options {
			if c != a.Prev {
				kept = append(kept, c)
			}
		}
		options = kept
	}
	a.Target = options[s.rng.Intn(len(options))]
}

// nextPedestrianTarget picks any walkable tile, ignoring adjacency.
func (s *Spawner) nextPedestrianTarget(a *Agent, walkable []city.Coord) {
	a.Target = s.pick(walkable)
	a.TargetOff = s.jitter(a.Target)
}

func roadNeighbors(grid city.Grid, c city.Coord) []city.Coord {
	var out []city.Coord
	for _, n := range grid.Neighbors4(c.X, c.Y) {
		if t, ok := grid.At(n.X, n.Y); ok && t.BuildingType == city.Road {
			out = append(out, n)
		}
	}
	return out
}

// advance moves a by dt seconds and picks a new target on arrival.
func (s *Spawner) advance(a *Agent, dt float64, roads, walkable []city.Coord, grid city.Grid) {
	a.Progress += a.Speed * dt
	if a.Progress < 1 {
		return
	}
	a.Prev, a.HasPrev = a.Cur, true
	a.Cur = a.Target
	a.Progress = 0

	switch a.Kind {
	case KindVehicle:
		s.nextVehicleTarget(a, roads, grid)
	case KindPedestrian:
		a.CurOff = a.TargetOff
		s.nextPedestrianTarget(a, walkable)
	}
}
