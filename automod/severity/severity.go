// Severity scoring for moderation verdicts.
//
// A verdict is summarized as a score in [0,100] and a discrete Level. Scoring
// is a pure function of the verdict: the same verdict always yields the same
// score and level.
package severity

import (
	"math"
	"slices"
	"strings"

	"github.com/stride-social/modpipe/automod/classifier"
)

type Level string

const (
	LevelSafe   Level = "SAFE"
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Rank orders levels, SAFE lowest.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	default:
		return 0
	}
}

// Representative scores for verdicts without graded confidence.
const (
	ScoreHigh   = 85.0
	ScoreMedium = 60.0
	ScoreLow    = 35.0
	ScoreSafe   = 0.0
)

var (
	HighRiskCategories   = []string{"hate", "sexual", "violence", "self-harm"}
	MediumRiskCategories = []string{"harassment", "offensive"}
)

// Score computes severity for a verdict. A nil or unflagged verdict is SAFE.
//
// NOTE: a flagged verdict whose only confidence signal is weak resolves to
// SAFE numerically; "flagged" and "SAFE" are not contradictory.
func Score(v *classifier.Verdict) (float64, Level) {
	if v == nil || !v.Flagged {
		return ScoreSafe, LevelSafe
	}
	if len(v.ConfidenceScores) > 0 {
		top := 0.0
		for _, s := range v.ConfidenceScores {
			if s > top {
				top = s
			}
		}
		score := clamp(100 * top)
		return score, LevelForScore(score)
	}
	return scoreByCategory(v.Categories)
}

// LevelForScore buckets a 0-100 score.
func LevelForScore(score float64) Level {
	switch {
	case score > 75:
		return LevelHigh
	case score > 50:
		return LevelMedium
	case score > 25:
		return LevelLow
	default:
		return LevelSafe
	}
}

func scoreByCategory(cats map[string]bool) (float64, Level) {
	high, medium, other := false, false, false
	for cat, flagged := range cats {
		if !flagged {
			continue
		}
		base := canonicalCategory(cat)
		switch {
		case slices.Contains(HighRiskCategories, base):
			high = true
		case slices.Contains(MediumRiskCategories, base):
			medium = true
		default:
			other = true
		}
	}
	switch {
	case high:
		return ScoreHigh, LevelHigh
	case medium:
		return ScoreMedium, LevelMedium
	case other:
		return ScoreLow, LevelLow
	default:
		return ScoreSafe, LevelSafe
	}
}

// "Hate/Threatening" and "self_harm" compare as "hate" and "self-harm"
func canonicalCategory(cat string) string {
	c := strings.ToLower(strings.TrimSpace(cat))
	if i := strings.Index(c, "/"); i >= 0 {
		c = c[:i]
	}
	return strings.ReplaceAll(c, "_", "-")
}

func clamp(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
