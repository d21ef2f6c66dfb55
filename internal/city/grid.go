package city

import (
	"encoding/json"
	"fmt"
)

// DefaultSize is the side length of the reference grid.
const DefaultSize = 15

// Grid holds the square tile matrix, indexed [row][col] with row=y, col=x.
type Grid struct {
	Tiles [][]Tile
}

// Coord is an integer tile position.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// neighborDirections are the four orthogonal offsets.
var neighborDirections = [4]Coord{
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
	{X: 0, Y: -1},
}

// NewGrid creates an empty grid of the given side length.
func NewGrid(size int) Grid {
	tiles := make([][]Tile, size)
	for y := range tiles {
		row := make([]Tile, size)
		for x := range row {
			row[x] = Tile{X: x, Y: y, BuildingType: None}
		}
		tiles[y] = row
	}
	return Grid{Tiles: tiles}
}

// Size returns the side length.
func (g Grid) Size() int {
	return len(g.Tiles)
}

// InBounds returns true if (x, y) addresses a tile.
func (g Grid) InBounds(x, y int) bool {
	return y >= 0 && y < len(g.Tiles) && x >= 0 && x < len(g.Tiles[y])
}

// At returns the tile at (x, y). The second result is false when out of bounds.
func (g Grid) At(x, y int) (Tile, bool) {
	if !g.InBounds(x, y) {
		return Tile{}, false
	}
	return g.Tiles[y][x], true
}

// Set replaces the building on (x, y). Coordinates are left untouched.
func (g Grid) Set(x, y int, b BuildingType) bool {
	if !g.InBounds(x, y) {
		return false
	}
	g.Tiles[y][x].BuildingType = b
	return true
}

// Clone returns a deep copy that shares no rows with g.
func (g Grid) Clone() Grid {
	tiles := make([][]Tile, len(g.Tiles))
	for y, row := range g.Tiles {
		tiles[y] = append([]Tile(nil), row...)
	}
	return Grid{Tiles: tiles}
}

// Count returns how many tiles hold the given building.
func (g Grid) Count(b BuildingType) int {
	n := 0
	for _, row := range g.Tiles {
		for _, t := range row {
			if t.BuildingType == b {
				n++
			}
		}
	}
	return n
}

// Counts returns the number of tiles per building type, empty lots included.
func (g Grid) Counts() map[BuildingType]int {
	counts := make(map[BuildingType]int, len(AllBuildingTypes))
	for _, row := range g.Tiles {
		for _, t := range row {
			counts[t.BuildingType]++
		}
	}
	return counts
}

// Neighbors4 returns the in-bounds orthogonal neighbors of (x, y).
func (g Grid) Neighbors4(x, y int) []Coord {
	out := make([]Coord, 0, 4)
	for _, d := range neighborDirections {
		nx, ny := x+d.X, y+d.Y
		if g.InBounds(nx, ny) {
			out = append(out, Coord{X: nx, Y: ny})
		}
	}
	return out
}

// Validate checks the grid is square and every tile carries its own coordinates.
func (g Grid) Validate(size int) error {
	if len(g.Tiles) != size {
		return fmt.Errorf("grid has %d rows, want %d", len(g.Tiles), size)
	}
	for y, row := range g.Tiles {
		if len(row) != size {
			return fmt.Errorf("grid row %d has %d tiles, want %d", y, len(row), size)
		}
		for x, t := range row {
			if t.X != x || t.Y != y {
				return fmt.Errorf("tile at [%d][%d] claims (%d,%d)", y, x, t.X, t.Y)
			}
			if !t.BuildingType.Valid() {
				return fmt.Errorf("tile (%d,%d) has invalid building %d", x, y, t.BuildingType)
			}
		}
	}
	return nil
}

// MarshalJSON encodes the grid as the bare row matrix.
func (g Grid) MarshalJSON() ([]byte, error) {
	if g.Tiles == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(g.Tiles)
}

// UnmarshalJSON decodes a bare row matrix.
func (g *Grid) UnmarshalJSON(data []byte) error {
	var tiles [][]Tile
	if err := json.Unmarshal(data, &tiles); err != nil {
		return err
	}
	g.Tiles = tiles
	return nil
}

// String returns a summary of the grid.
func (g Grid) String() string {
	return fmt.Sprintf("Grid(size=%d, built=%d)", g.Size(), g.Size()*g.Size()-g.Count(None))
}
