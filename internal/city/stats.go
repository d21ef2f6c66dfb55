package city

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CityStats is the economic state advanced by each tick.
type CityStats struct {
	Money      int `json:"money"`
	Population int `json:"population"`
	Day        int `json:"day"`
}

// InitialStats returns the stats of a new game.
func InitialStats(money int) CityStats {
	return CityStats{Money: money, Population: 0, Day: 1}
}

// TargetType is what a goal measures.
type TargetType string

const (
	TargetMoney         TargetType = "money"
	TargetPopulation    TargetType = "population"
	TargetBuildingCount TargetType = "building_count"
)

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	switch t {
	case TargetMoney, TargetPopulation, TargetBuildingCount:
		return true
	}
	return false
}

// Goal is an objective with a money reward. Completed only ever flips false to true.
type Goal struct {
	Description  string        `json:"description"`
	TargetType   TargetType    `json:"targetType"`
	TargetValue  int           `json:"targetValue"`
	BuildingType *BuildingType `json:"buildingType,omitempty"`
	Reward       int           `json:"reward"`
	Completed    bool          `json:"completed"`
}

// Clone returns a copy that shares no pointers with g.
func (g *Goal) Clone() *Goal {
	if g == nil {
		return nil
	}
	c := *g
	if g.BuildingType != nil {
		b := *g.BuildingType
		c.BuildingType = &b
	}
	return &c
}

// Check verifies the goal's own invariants.
func (g *Goal) Check() error {
	if !g.TargetType.Valid() {
		return fmt.Errorf("goal: unknown target type %q", g.TargetType)
	}
	if g.TargetValue <= 0 {
		return fmt.Errorf("goal: target value %d must be positive", g.TargetValue)
	}
	if g.Reward <= 0 {
		return fmt.Errorf("goal: reward %d must be positive", g.Reward)
	}
	if g.TargetType == TargetBuildingCount {
		if g.BuildingType == nil || !g.BuildingType.Placeable() {
			return fmt.Errorf("goal: building_count needs a placeable building type")
		}
	} else if g.BuildingType != nil {
		return fmt.Errorf("goal: building type only applies to building_count")
	}
	return nil
}

// NewsType is the tone of a news item.
type NewsType string

const (
	NewsPositive NewsType = "positive"
	NewsNegative NewsType = "negative"
	NewsNeutral  NewsType = "neutral"
)

// Valid reports whether t is a known tone.
func (t NewsType) Valid() bool {
	switch t {
	case NewsPositive, NewsNegative, NewsNeutral:
		return true
	}
	return false
}

// NewsItem is one headline in the feed.
type NewsItem struct {
	ID   string   `json:"id"`
	Text string   `json:"text"`
	Type NewsType `json:"type"`
}

// NewNewsItem stamps a headline with a timestamp plus random suffix id.
func NewNewsItem(now time.Time, text string, typ NewsType) NewsItem {
	return NewsItem{
		ID:   fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		Text: text,
		Type: typ,
	}
}
