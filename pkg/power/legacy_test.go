package power

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateLegacyScoreSegments(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{0, 8},
		{10, 10},
		{20, 12},
		{30, 15},
		{40, 18},
		{55, 24},
		{70, 30},
		{100, 55},
		{150, 55},
		{-5, 8},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, MigrateLegacyScore(tt.score), 1e-9, "score=%v", tt.score)
	}
}

func TestMigrateLegacyScoreMonotonicAndContinuous(t *testing.T) {
	prev := MigrateLegacyScore(0)
	for s := 0.0; s <= 100; s += 0.25 {
		w := MigrateLegacyScore(s)
		assert.GreaterOrEqual(t, w, prev, "score=%v", s)
		prev = w
	}

	for _, boundary := range []float64{20, 40, 70} {
		left := MigrateLegacyScore(boundary - 1e-9)
		right := MigrateLegacyScore(boundary)
		assert.InDelta(t, left, right, 1e-6, "boundary=%v", boundary)
	}
}

func TestLegacyScoreFromWattsRoundTrip(t *testing.T) {
	for s := 0.0; s <= 100; s += 5 {
		assert.InDelta(t, s, LegacyScoreFromWatts(MigrateLegacyScore(s)), 1e-9, "score=%v", s)
	}
	assert.Equal(t, 0.0, LegacyScoreFromWatts(3))
	assert.Equal(t, 100.0, LegacyScoreFromWatts(64))
}
