// Package city provides the tile grid, building catalog, and economy value types.
// Everything here is plain data plus pure queries; the engine owns mutation.
package city

import "fmt"

// BuildingType is the occupant of a tile.
type BuildingType uint8

const (
	None        BuildingType = iota // Empty lot; also the demolish tool
	Road                            // Vehicles drive here, pedestrians walk here
	Residential                     // Houses population
	Commercial                      // Shops, daily income
	Industrial                      // Factories, larger daily income
	Park                            // Green space, walkable
)

// AllBuildingTypes lists every type in declaration order.
var AllBuildingTypes = [...]BuildingType{None, Road, Residential, Commercial, Industrial, Park}

// PlaceableTypes lists the types a player can build.
var PlaceableTypes = [...]BuildingType{Road, Residential, Commercial, Industrial, Park}

var buildingNames = [...]string{
	None:        "none",
	Road:        "road",
	Residential: "residential",
	Commercial:  "commercial",
	Industrial:  "industrial",
	Park:        "park",
}

// String returns the lowercase wire name.
func (b BuildingType) String() string {
	if int(b) < len(buildingNames) {
		return buildingNames[b]
	}
	return fmt.Sprintf("building(%d)", uint8(b))
}

// Valid reports whether b is one of the declared types.
func (b BuildingType) Valid() bool {
	return int(b) < len(buildingNames)
}

// Placeable reports whether b can be the target of a build command.
func (b BuildingType) Placeable() bool {
	return b != None && b.Valid()
}

// ParseBuildingType maps a wire name to a BuildingType.
func ParseBuildingType(s string) (BuildingType, error) {
	for i, name := range buildingNames {
		if name == s {
			return BuildingType(i), nil
		}
	}
	return None, fmt.Errorf("unknown building type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (b BuildingType) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid building type %d", uint8(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BuildingType) UnmarshalText(text []byte) error {
	parsed, err := ParseBuildingType(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Tile is one grid cell. X and Y never change after the grid is built.
type Tile struct {
	X            int          `json:"x"`
	Y            int          `json:"y"`
	BuildingType BuildingType `json:"buildingType"`
}

// Class describes how agents and the player may use a tile.
type Class struct {
	Walkable  bool
	Buildable bool
}

// Classify returns the tile's class. Road, Park and empty lots are walkable;
// only empty lots accept a new building.
func Classify(t Tile) Class {
	switch t.BuildingType {
	case None:
		return Class{Walkable: true, Buildable: true}
	case Road, Park:
		return Class{Walkable: true}
	default:
		return Class{}
	}
}
