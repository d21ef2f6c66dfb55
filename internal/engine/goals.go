package engine

import "github.com/talgya/tilecity/internal/city"

// IsGoalMet reports whether an open goal is satisfied by the current city.
// Absent or already completed goals always return false.
func IsGoalMet(grid city.Grid, stats city.CityStats, goal *city.Goal) bool {
	if goal == nil || goal.Completed {
		return false
	}
	switch goal.TargetType {
	case city.TargetMoney:
		return stats.Money >= goal.TargetValue
	case city.TargetPopulation:
		return stats.Population >= goal.TargetValue
	case city.TargetBuildingCount:
		if goal.BuildingType == nil {
			return false
		}
		return grid.Count(*goal.BuildingType) >= goal.TargetValue
	}
	return false
}
