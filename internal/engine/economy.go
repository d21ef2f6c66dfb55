// Economy tick: one pass over the grid turns buildings into income and residents.
package engine

import "github.com/talgya/tilecity/internal/city"

// DefaultDecayRate is how many residents leave per tick when no housing exists.
const DefaultDecayRate = 5

// NextStats computes the stats after one tick. It is pure and never fails.
func NextStats(stats city.CityStats, grid city.Grid, catalog *city.Catalog, decayRate int) city.CityStats {
	dailyIncome := 0
	dailyPopGrowth := 0
	residentialCount := 0

	for _, row := range grid.Tiles {
		for _, t := range row {
			if t.BuildingType == city.None {
				continue
			}
			cfg := catalog.Config(t.BuildingType)
			dailyIncome += cfg.IncomeGen
			dailyPopGrowth += cfg.PopGen
			if t.BuildingType == city.Residential {
				residentialCount++
			}
		}
	}

	maxPop := residentialCount * catalog.MaxPopPerUnit()
	newPop := stats.Population + dailyPopGrowth
	if newPop > maxPop {
		newPop = maxPop
	}

	// Without housing, residents move away. This overrides growth and the cap.
	if residentialCount == 0 && stats.Population > 0 {
		newPop = stats.Population - decayRate
		if newPop < 0 {
			newPop = 0
		}
	}

	return city.CityStats{
		Money:      stats.Money + dailyIncome,
		Population: newPop,
		Day:        stats.Day + 1,
	}
}
