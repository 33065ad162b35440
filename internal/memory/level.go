package memory

import "strings"

// Level is an ordered optimization severity tier. Higher levels unlock more
// aggressive cleanup actions.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

// Classification breakpoints, in percent of heap used.
const (
	thresholdLow      = 50.0
	thresholdMedium   = 70.0
	thresholdHigh     = 85.0
	thresholdCritical = 95.0
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseLevel maps a level name back to its Level. The second return is false
// for unknown names.
func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none":
		return LevelNone, true
	case "low":
		return LevelLow, true
	case "medium":
		return LevelMedium, true
	case "high":
		return LevelHigh, true
	case "critical":
		return LevelCritical, true
	default:
		return LevelNone, false
	}
}

// Classify maps a percent-used reading to a level. Emergency always forces
// Critical regardless of the reading. The mapping is monotonic in
// percentUsed.
func Classify(percentUsed float64, emergency bool) Level {
	if emergency {
		return LevelCritical
	}
	switch {
	case percentUsed >= thresholdCritical:
		return LevelCritical
	case percentUsed >= thresholdHigh:
		return LevelHigh
	case percentUsed >= thresholdMedium:
		return LevelMedium
	case percentUsed >= thresholdLow:
		return LevelLow
	default:
		return LevelNone
	}
}
