package city

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCanAfford(t *testing.T) {
	c := DefaultCatalog()
	cases := []struct {
		money int
		b     BuildingType
		want  bool
	}{
		{100, Residential, true},
		{99, Residential, false},
		{20, None, true},
		{19, None, false},
		{0, Road, false},
		{10, Road, true},
	}
	for _, tc := range cases {
		if got := c.CanAfford(tc.money, tc.b); got != tc.want {
			t.Fatalf("CanAfford(%d, %s)=%v want=%v", tc.money, tc.b, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		b         BuildingType
		walkable  bool
		buildable bool
	}{
		{None, true, true},
		{Road, true, false},
		{Park, true, false},
		{Residential, false, false},
		{Commercial, false, false},
		{Industrial, false, false},
	}
	for _, tc := range cases {
		got := Classify(Tile{BuildingType: tc.b})
		if got.Walkable != tc.walkable || got.Buildable != tc.buildable {
			t.Fatalf("Classify(%s)=%+v want walkable=%v buildable=%v", tc.b, got, tc.walkable, tc.buildable)
		}
	}
}

func TestGrid_CoordinatesAndClone(t *testing.T) {
	g := NewGrid(DefaultSize)
	if err := g.Validate(DefaultSize); err != nil {
		t.Fatalf("fresh grid invalid: %v", err)
	}
	if g.Count(None) != DefaultSize*DefaultSize {
		t.Fatalf("empty count=%d want=%d", g.Count(None), DefaultSize*DefaultSize)
	}

	c := g.Clone()
	c.Set(3, 4, Park)
	if tile, _ := g.At(3, 4); tile.BuildingType != None {
		t.Fatalf("clone shares rows with original")
	}
	tile, ok := c.At(3, 4)
	if !ok || tile.X != 3 || tile.Y != 4 || tile.BuildingType != Park {
		t.Fatalf("At(3,4)=%+v ok=%v", tile, ok)
	}
	if c.Set(-1, 0, Road) || c.Set(0, DefaultSize, Road) {
		t.Fatalf("Set accepted out of bounds coordinates")
	}
}

func TestGrid_Neighbors4(t *testing.T) {
	g := NewGrid(3)
	if n := len(g.Neighbors4(0, 0)); n != 2 {
		t.Fatalf("corner neighbors=%d want=2", n)
	}
	if n := len(g.Neighbors4(1, 1)); n != 4 {
		t.Fatalf("center neighbors=%d want=4", n)
	}
}

func TestGrid_JSONRoundTrip(t *testing.T) {
	g := NewGrid(2)
	g.Set(1, 0, Industrial)
	raw, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"buildingType":"industrial"`) {
		t.Fatalf("unexpected encoding: %s", raw)
	}
	var back Grid
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tile, _ := back.At(1, 0); tile.BuildingType != Industrial {
		t.Fatalf("tile(1,0)=%s want=industrial", tile.BuildingType)
	}
}

func TestGrid_ValidateRejectsBadShapes(t *testing.T) {
	g := NewGrid(3)
	if err := g.Validate(4); err == nil {
		t.Fatalf("expected size mismatch")
	}
	g.Tiles[1][2].X = 0
	if err := g.Validate(3); err == nil {
		t.Fatalf("expected coordinate mismatch")
	}
}

func TestParseBuildingType(t *testing.T) {
	for _, b := range AllBuildingTypes {
		got, err := ParseBuildingType(b.String())
		if err != nil || got != b {
			t.Fatalf("ParseBuildingType(%q)=%v,%v", b.String(), got, err)
		}
	}
	if _, err := ParseBuildingType("castle"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if None.Placeable() {
		t.Fatalf("None must not be placeable")
	}
}

func TestNewCatalog_Validation(t *testing.T) {
	_, err := NewCatalog(map[BuildingType]BuildingConfig{
		Commercial: {Cost: 10, MaxPopPerUnit: 5},
	}, 20)
	if err == nil {
		t.Fatalf("expected max_pop_per_unit on commercial to be rejected")
	}
	_, err = NewCatalog(map[BuildingType]BuildingConfig{
		Road: {Cost: -1},
	}, 20)
	if err == nil {
		t.Fatalf("expected negative cost to be rejected")
	}
	c, err := NewCatalog(map[BuildingType]BuildingConfig{
		Residential: {Cost: 100, PopGen: 5, MaxPopPerUnit: 50},
	}, 0)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	if c.MaxPopPerUnit() != 50 || c.PriceOf(None) != 0 {
		t.Fatalf("catalog=%+v", c)
	}
}

func TestGoalCheck(t *testing.T) {
	park := Park
	none := None
	cases := []struct {
		name string
		goal Goal
		ok   bool
	}{
		{"money", Goal{TargetType: TargetMoney, TargetValue: 10, Reward: 5}, true},
		{"count", Goal{TargetType: TargetBuildingCount, TargetValue: 2, BuildingType: &park, Reward: 5}, true},
		{"count missing type", Goal{TargetType: TargetBuildingCount, TargetValue: 2, Reward: 5}, false},
		{"count none", Goal{TargetType: TargetBuildingCount, TargetValue: 2, BuildingType: &none, Reward: 5}, false},
		{"money with type", Goal{TargetType: TargetMoney, TargetValue: 2, BuildingType: &park, Reward: 5}, false},
		{"zero reward", Goal{TargetType: TargetPopulation, TargetValue: 2}, false},
		{"bad target", Goal{TargetType: "happiness", TargetValue: 2, Reward: 1}, false},
	}
	for _, tc := range cases {
		err := tc.goal.Check()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: Check()=%v ok=%v", tc.name, err, tc.ok)
		}
	}
}

func TestNewNewsItem_IDs(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	a := NewNewsItem(now, "first", NewsNeutral)
	b := NewNewsItem(now, "second", NewsNeutral)
	if a.ID == b.ID {
		t.Fatalf("ids collide: %s", a.ID)
	}
	if !strings.HasPrefix(a.ID, "1700000000000-") {
		t.Fatalf("id=%s missing timestamp prefix", a.ID)
	}
}
