package services

import "math"

// BasePointsPerLevel scales the level curve: reaching level n+1 takes
// BasePointsPerLevel*n + floor(BasePointsPerLevel * n^1.2) lifetime points.
const BasePointsPerLevel = 100

// pointsForNextLevel returns the curve term for going from level to level+1.
func pointsForNextLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(float64(BasePointsPerLevel) * math.Pow(float64(level), 1.2))
}

// levelThreshold is the lifetime total needed to leave level.
func levelThreshold(level int) int64 {
	return int64(BasePointsPerLevel)*int64(level) + pointsForNextLevel(level)
}

// LevelFor derives a level from lifetime earned points. Spending never lowers it.
func LevelFor(lifetimeEarned int64) int {
	level := 1
	for lifetimeEarned >= levelThreshold(level) {
		level++
	}
	return level
}

type LevelProgress struct {
	Level          int   `json:"level"`
	LifetimeEarned int64 `json:"lifetime_earned"`
	NextLevelAt    int64 `json:"next_level_at"`
	ToNextLevel    int64 `json:"to_next_level"`
}

func ProgressFor(lifetimeEarned int64) LevelProgress {
	level := LevelFor(lifetimeEarned)
	next := levelThreshold(level)
	return LevelProgress{
		Level:          level,
		LifetimeEarned: lifetimeEarned,
		NextLevelAt:    next,
		ToNextLevel:    next - lifetimeEarned,
	}
}
