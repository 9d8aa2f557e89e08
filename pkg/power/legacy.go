package power

import "math"

// legacySegment maps scores in [lo, hi) linearly onto watts [wLo, wHi].
type legacySegment struct {
	lo, hi   float64
	wLo, wHi float64
}

var legacySegments = []legacySegment{
	{0, 20, 8, 12},
	{20, 40, 12, 18},
	{40, 70, 18, 30},
	{70, 100, 30, 55},
}

// MigrateLegacyScore converts a 0-100 energy score recorded by older releases
// into watts. Out-of-range scores are clamped; NaN maps to the lowest segment.
func MigrateLegacyScore(score float64) float64 {
	if math.IsNaN(score) {
		score = 0
	}
	score = clamp(score, 0, 100)
	for _, s := range legacySegments {
		if score < s.hi {
			return s.wLo + (score-s.lo)/(s.hi-s.lo)*(s.wHi-s.wLo)
		}
	}
	return legacySegments[len(legacySegments)-1].wHi
}

// LegacyScoreFromWatts is the inverse of MigrateLegacyScore, clamped to 0-100.
func LegacyScoreFromWatts(watts float64) float64 {
	first := legacySegments[0]
	if math.IsNaN(watts) || watts <= first.wLo {
		return 0
	}
	for _, s := range legacySegments {
		if watts < s.wHi {
			return s.lo + (watts-s.wLo)/(s.wHi-s.wLo)*(s.hi-s.lo)
		}
	}
	return 100
}
