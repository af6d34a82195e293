package severity

import (
	"testing"

	"github.com/stride-social/modpipe/automod/classifier"

	"github.com/stretchr/testify/assert"
)

func TestScoreUnflagged(t *testing.T) {
	assert := assert.New(t)

	score, level := Score(nil)
	assert.Equal(0.0, score)
	assert.Equal(LevelSafe, level)

	// high confidence but not flagged is still safe
	score, level = Score(&classifier.Verdict{
		Flagged:          false,
		ConfidenceScores: map[string]float64{"hate": 0.99},
	})
	assert.Equal(0.0, score)
	assert.Equal(LevelSafe, level)
}

func TestScoreConfidence(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		scores map[string]float64
		score  float64
		level  Level
	}{
		{scores: map[string]float64{"hate": 0.9}, score: 90, level: LevelHigh},
		{scores: map[string]float64{"hate": 0.751}, score: 75.1, level: LevelHigh},
		{scores: map[string]float64{"hate": 0.75}, score: 75, level: LevelMedium},
		{scores: map[string]float64{"violence": 0.6, "hate": 0.1}, score: 60, level: LevelMedium},
		{scores: map[string]float64{"sexual": 0.3}, score: 30, level: LevelLow},
		{scores: map[string]float64{"sexual": 0.249}, score: 24.9, level: LevelSafe},
		{scores: map[string]float64{"sexual": 1.0}, score: 100, level: LevelHigh},
	}

	for _, fix := range fixtures {
		score, level := Score(&classifier.Verdict{
			Flagged:          true,
			Categories:       map[string]bool{"x": true},
			ConfidenceScores: fix.scores,
		})
		assert.InDelta(fix.score, score, 1e-9)
		assert.Equal(fix.level, level, "scores: %v", fix.scores)
	}
}

func TestScoreCategories(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		cats  map[string]bool
		score float64
		level Level
	}{
		{cats: map[string]bool{"inappropriate": true}, score: 35, level: LevelLow},
		{cats: map[string]bool{"hate": true}, score: 85, level: LevelHigh},
		{cats: map[string]bool{"Self_Harm": true}, score: 85, level: LevelHigh},
		{cats: map[string]bool{"hate/threatening": true}, score: 85, level: LevelHigh},
		{cats: map[string]bool{"harassment": true, "inappropriate": true}, score: 60, level: LevelMedium},
		{cats: map[string]bool{"offensive": true, "violence": true}, score: 85, level: LevelHigh},
		{cats: map[string]bool{"hate": false, "sexual": false}, score: 0, level: LevelSafe},
		{cats: map[string]bool{}, score: 0, level: LevelSafe},
	}

	for _, fix := range fixtures {
		score, level := Score(&classifier.Verdict{
			Flagged:    true,
			Categories: fix.cats,
		})
		assert.Equal(fix.score, score)
		assert.Equal(fix.level, level, "categories: %v", fix.cats)
	}
}

func TestScoreMonotonic(t *testing.T) {
	assert := assert.New(t)

	prev := LevelSafe
	for i := 0; i <= 1000; i++ {
		conf := float64(i) / 1000
		_, level := Score(&classifier.Verdict{
			Flagged:          true,
			Categories:       map[string]bool{"hate": true},
			ConfidenceScores: map[string]float64{"hate": conf},
		})
		assert.GreaterOrEqual(level.Rank(), prev.Rank(), "confidence %v", conf)
		prev = level
	}
	assert.Equal(LevelHigh, prev)
}

func TestScoreDeterministic(t *testing.T) {
	v := &classifier.Verdict{
		Flagged:          true,
		Categories:       map[string]bool{"harassment": true, "hate": false},
		ConfidenceScores: map[string]float64{"harassment": 0.55, "hate": 0.2},
	}
	s1, l1 := Score(v)
	for i := 0; i < 50; i++ {
		s2, l2 := Score(v)
		assert.Equal(t, s1, s2)
		assert.Equal(t, l1, l2)
	}
}

func TestLevelForScore(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(LevelSafe, LevelForScore(25))
	assert.Equal(LevelLow, LevelForScore(25.01))
	assert.Equal(LevelLow, LevelForScore(50))
	assert.Equal(LevelMedium, LevelForScore(50.5))
	assert.Equal(LevelHigh, LevelForScore(76))
}
