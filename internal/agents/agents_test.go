package agents

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/talgya/tilecity/internal/city"
)

func newTestField() *Field {
	return NewField(DefaultConfig(), rand.New(rand.NewSource(42)), 42)
}

func isRoad(g city.Grid, c city.Coord) bool {
	t, ok := g.At(c.X, c.Y)
	return ok && t.BuildingType == city.Road
}

func isWalkable(g city.Grid, c city.Coord) bool {
	t, ok := g.At(c.X, c.Y)
	return ok && city.Classify(t).Walkable
}

func TestConfig_Counts(t *testing.T) {
	cfg := DefaultConfig()
	vehicles := []struct{ roads, want int }{
		{0, 0}, {1, 0}, {2, 2}, {29, 29}, {30, 30}, {100, 30},
	}
	for _, tc := range vehicles {
		if got := cfg.VehicleCount(tc.roads); got != tc.want {
			t.Fatalf("VehicleCount(%d)=%d want=%d", tc.roads, got, tc.want)
		}
	}
	pedestrians := []struct{ walkable, pop, want int }{
		{1, 500, 0},
		{225, 0, 10},
		{225, 200, 30},
		{225, 5000, 60},
		{4, 200, 4},
	}
	for _, tc := range pedestrians {
		if got := cfg.PedestrianCount(tc.walkable, tc.pop); got != tc.want {
			t.Fatalf("PedestrianCount(%d, %d)=%d want=%d", tc.walkable, tc.pop, got, tc.want)
		}
	}
}

func TestField_EmptyGrid(t *testing.T) {
	f := newTestField()
	g := city.NewGrid(city.DefaultSize)
	if !f.Sync(g, 1, 0) {
		t.Fatalf("first sync must generate agents")
	}
	v, p := f.Counts()
	if v != 0 || p != 10 {
		t.Fatalf("vehicles=%d pedestrians=%d want=0,10", v, p)
	}
	if f.Sync(g, 1, 0) {
		t.Fatalf("same grid version must not regenerate")
	}
}

func TestField_NoWalkableTiles(t *testing.T) {
	f := newTestField()
	g := city.NewGrid(3)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			g.Set(x, y, city.Industrial)
		}
	}
	g.Set(1, 1, city.Road) // a single eligible tile is not enough
	f.Sync(g, 1, 100)
	f.Step(100 * time.Millisecond)
	if v, p := f.Counts(); v != 0 || p != 0 {
		t.Fatalf("vehicles=%d pedestrians=%d want=0,0", v, p)
	}
	if n := len(f.Latest().Agents); n != 0 {
		t.Fatalf("frame agents=%d want=0", n)
	}
}

func TestField_RegeneratesOnChange(t *testing.T) {
	f := newTestField()
	g := city.NewGrid(city.DefaultSize)
	for x := 0; x < city.DefaultSize; x++ {
		g.Set(x, 7, city.Road)
		g.Set(7, x, city.Road)
	}
	f.Sync(g, 1, 0)
	if v, _ := f.Counts(); v != 29 {
		t.Fatalf("vehicles=%d want=29", v)
	}

	// Removing most of the roads must leave no vehicle on a cleared tile.
	g2 := city.NewGrid(city.DefaultSize)
	g2.Set(0, 0, city.Road)
	g2.Set(1, 0, city.Road)
	g2.Set(2, 0, city.Road)
	if !f.Sync(g2, 2, 0) {
		t.Fatalf("road change must regenerate")
	}
	if v, _ := f.Counts(); v != 3 {
		t.Fatalf("vehicles=%d want=3", v)
	}
	for _, a := range f.vehicles {
		if !isRoad(g2, a.Cur) || !isRoad(g2, a.Target) {
			t.Fatalf("vehicle %d references removed road: cur=%v target=%v", a.ID, a.Cur, a.Target)
		}
	}

	// A new version with identical tile sets keeps the agents.
	if f.Sync(g2.Clone(), 3, 0) {
		t.Fatalf("unchanged tile sets must not regenerate")
	}

	// Houses change the walkable set even when roads stay the same.
	g3 := g2.Clone()
	g3.Set(5, 5, city.Residential)
	if !f.Sync(g3, 4, 0) {
		t.Fatalf("walkable change must regenerate")
	}
}

func TestField_VehiclesStayOnRoads(t *testing.T) {
	f := newTestField()
	g := city.NewGrid(10)
	for x := 0; x < 10; x++ {
		g.Set(x, 2, city.Road)
	}
	for y := 2; y < 8; y++ {
		g.Set(4, y, city.Road)
	}
	g.Set(9, 9, city.Road) // isolated fragment
	f.Sync(g, 1, 0)

	for i := 0; i < 500; i++ {
		f.Step(50 * time.Millisecond)
		for _, a := range f.vehicles {
			if !isRoad(g, a.Cur) || !isRoad(g, a.Target) {
				t.Fatalf("step %d: vehicle off road cur=%v target=%v", i, a.Cur, a.Target)
			}
			if a.Progress < 0 || a.Progress >= 1 {
				t.Fatalf("progress=%v", a.Progress)
			}
		}
		for _, a := range f.pedestrians {
			if !isWalkable(g, a.Cur) || !isWalkable(g, a.Target) {
				t.Fatalf("step %d: pedestrian on blocked tile", i)
			}
		}
	}
}

func TestVehicle_AvoidsUTurn(t *testing.T) {
	sp := NewSpawner(rand.New(rand.NewSource(1)), 1)
	g := city.NewGrid(5)
	roads := []city.Coord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}
	for _, c := range roads {
		g.Set(c.X, c.Y, city.Road)
	}

	for i := 0; i < 20; i++ {
		a := &Agent{Kind: KindVehicle, Cur: city.Coord{X: 1, Y: 0}, Prev: city.Coord{X: 0, Y: 0}, HasPrev: true}
		sp.nextVehicleTarget(a, roads, g)
		if a.Target != (city.Coord{X: 2, Y: 0}) {
			t.Fatalf("target=%v want={2 0}", a.Target)
		}
	}

	// Dead end: turning back is the only option.
	a := &Agent{Kind: KindVehicle, Cur: city.Coord{X: 2, Y: 0}, Prev: city.Coord{X: 1, Y: 0}, HasPrev: true}
	sp.nextVehicleTarget(a, roads, g)
	if a.Target != (city.Coord{X: 1, Y: 0}) {
		t.Fatalf("dead end target=%v want={1 0}", a.Target)
	}
}

func TestVehicle_TeleportRecovery(t *testing.T) {
	sp := NewSpawner(rand.New(rand.NewSource(5)), 5)
	g := city.NewGrid(5)
	g.Set(0, 0, city.Road)
	g.Set(3, 3, city.Road)
	g.Set(3, 4, city.Road)
	roads := []city.Coord{{X: 0, Y: 0}, {X: 3, Y: 3}, {X: 3, Y: 4}}

	// Isolated fragment: the vehicle stays put and drives toward another road tile.
	start := city.Coord{X: 0, Y: 0}
	for i := 0; i < 50; i++ {
		a := &Agent{Kind: KindVehicle, Cur: start}
		sp.nextVehicleTarget(a, roads, g)
		if a.Cur != start {
			t.Fatalf("cur=%v want=%v", a.Cur, start)
		}
		if !isRoad(g, a.Target) || a.Target == start {
			t.Fatalf("target=%v want another road tile", a.Target)
		}
	}

	// Stranded on a tile that is no longer road.
	off := city.Coord{X: 4, Y: 0}
	a := &Agent{Kind: KindVehicle, Cur: off}
	sp.nextVehicleTarget(a, roads, g)
	if a.Cur != off || !isRoad(g, a.Target) {
		t.Fatalf("recovery cur=%v target=%v", a.Cur, a.Target)
	}

	// A single road tile leaves nowhere to go.
	lone := []city.Coord{start}
	b := &Agent{Kind: KindVehicle, Cur: start}
	sp.nextVehicleTarget(b, lone, g)
	if b.Target != start {
		t.Fatalf("target=%v want=%v", b.Target, start)
	}
}

func TestPosition_LaneAndBounce(t *testing.T) {
	v := &Agent{Kind: KindVehicle, Cur: city.Coord{X: 0, Y: 0}, Target: city.Coord{X: 1, Y: 0}, Progress: 0.5}
	p := v.Position(0)
	if math.Abs(p.X-0.5) > 1e-9 || math.Abs(math.Abs(p.Y)-LaneOffset) > 1e-9 {
		t.Fatalf("vehicle position=(%v,%v) want x=0.5 |y|=%v", p.X, p.Y, LaneOffset)
	}

	ped := &Agent{Kind: KindPedestrian, Cur: city.Coord{X: 2, Y: 2}, Target: city.Coord{X: 2, Y: 2}, Phase: 1}
	for _, elapsed := range []float64{0, 0.1, 0.5, 1.3, 7} {
		z := ped.Position(elapsed).Z
		if z < 0 || z > BounceAmp {
			t.Fatalf("bounce=%v out of [0,%v]", z, BounceAmp)
		}
	}
	// Lift depends on time, not progress.
	a := ped.Position(0.3).Z
	ped.Progress = 0.9
	if b := ped.Position(0.3).Z; a != b {
		t.Fatalf("bounce changed with progress: %v vs %v", a, b)
	}
}

func TestPedestrian_JitterBounded(t *testing.T) {
	sp := NewSpawner(rand.New(rand.NewSource(9)), 9)
	walkable := []city.Coord{{X: 0, Y: 0}, {X: 3, Y: 4}, {X: 7, Y: 1}}
	peds := sp.SpawnPedestrians(50, walkable)
	for _, a := range peds {
		for _, off := range []Offset{a.CurOff, a.TargetOff} {
			if math.Abs(off.DX) > JitterAmp || math.Abs(off.DY) > JitterAmp {
				t.Fatalf("jitter=%+v exceeds %v", off, JitterAmp)
			}
		}
		if a.Speed < MinWalkSpeed || a.Speed > MaxWalkSpeed {
			t.Fatalf("speed=%v", a.Speed)
		}
	}
}

func TestField_FramePublished(t *testing.T) {
	f := newTestField()
	g := city.NewGrid(6)
	for x := 0; x < 6; x++ {
		g.Set(x, 0, city.Road)
	}
	f.Sync(g, 1, 0)
	f.Step(16 * time.Millisecond)
	f.Step(16 * time.Millisecond)

	fr := f.Latest()
	v, p := f.Counts()
	if fr.Seq != 2 || len(fr.Agents) != v+p {
		t.Fatalf("frame seq=%d agents=%d want=2,%d", fr.Seq, len(fr.Agents), v+p)
	}
	for _, pos := range fr.Agents {
		if pos.Kind == KindVehicle && pos.Color == "" {
			t.Fatalf("vehicle without color")
		}
	}
}
