// Package agents animates the vehicles and pedestrians that move over the city.
// Agents are purely visual: they read the grid and never change city state.
package agents

import (
	"fmt"
	"math"

	"github.com/talgya/tilecity/internal/city"
)

// AgentID is a unique identifier for an agent within one field.
type AgentID uint32

// Kind separates lane-bound vehicles from free-walking pedestrians.
type Kind uint8

const (
	KindVehicle Kind = iota
	KindPedestrian
)

func (k Kind) String() string {
	switch k {
	case KindVehicle:
		return "vehicle"
	case KindPedestrian:
		return "pedestrian"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Movement constants, in tiles and tiles per second.
const (
	LaneOffset      = 0.15
	JitterAmp       = 0.3
	BounceAmp       = 0.08
	BounceFreq      = 8.0 // radians per second
	MinVehicleSpeed = 0.8
	MaxVehicleSpeed = 1.6
	MinWalkSpeed    = 0.25
	MaxWalkSpeed    = 0.6
)

// VehicleColors is the palette assigned to vehicles on regeneration.
var VehicleColors = []string{"#e74c3c", "#3498db", "#f1c40f", "#2ecc71", "#9b59b6", "#ecf0f1"}

// Offset is a continuous displacement inside a tile.
type Offset struct {
	DX float64
	DY float64
}

// Agent moves from Cur toward Target. Progress runs from 0 to 1.
type Agent struct {
	ID       AgentID
	Kind     Kind
	Cur      city.Coord
	Target   city.Coord
	Prev     city.Coord
	HasPrev  bool
	Progress float64
	Speed    float64 // tiles per second

	Color string  // vehicles only
	Phase float64 // pedestrians only, bounce phase in radians

	CurOff    Offset // pedestrians only
	TargetOff Offset
}

// Position is the rendered location of one agent. Z is the vertical lift.
type Position struct {
	ID    AgentID `json:"id"`
	Kind  Kind    `json:"kind"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Color string  `json:"color,omitempty"`
}

// Position returns where the agent is drawn at the given elapsed time.
func (a *Agent) Position(elapsed float64) Position {
	p := a.Progress
	if p > 1 {
		p = 1
	}
	x0 := float64(a.Cur.X) + a.CurOff.DX
	y0 := float64(a.Cur.Y) + a.CurOff.DY
	x1 := float64(a.Target.X) + a.TargetOff.DX
	y1 := float64(a.Target.Y) + a.TargetOff.DY

	pos := Position{
		ID:    a.ID,
		Kind:  a.Kind,
		X:     x0 + (x1-x0)*p,
		Y:     y0 + (y1-y0)*p,
		Color: a.Color,
	}

	switch a.Kind {
	case KindVehicle:
		dx, dy := x1-x0, y1-y0
		if n := math.Hypot(dx, dy); n > 0 {
			// Perpendicular to heading.
			pos.X += -dy / n * LaneOffset
			pos.Y += dx / n * LaneOffset
		}
	case KindPedestrian:
		pos.Z = math.Abs(math.Sin(elapsed*BounceFreq+a.Phase)) * BounceAmp
	}
	return pos
}

// Frame is the published set of agent positions after one step.
type Frame struct {
	Seq     uint64     `json:"seq"`
	Elapsed float64    `json:"elapsed"`
	Agents  []Position `json:"agents"`
}
