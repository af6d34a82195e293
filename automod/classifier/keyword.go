package classifier

import (
	"context"
	"log/slog"

	"github.com/stride-social/modpipe/automod/content"
	"github.com/stride-social/modpipe/automod/keyword"
)

const CategoryInappropriate = "inappropriate"

// KeywordClassifier is the always-available local heuristic: a substring
// match of lower-cased text against a denylist. It has no graded confidence
// and never returns an error.
type KeywordClassifier struct {
	Denylist *keyword.Denylist
	Logger   *slog.Logger
}

var _ Classifier = (*KeywordClassifier)(nil)

// A nil denylist selects keyword.DefaultDenylist.
func NewKeywordClassifier(dl *keyword.Denylist, logger *slog.Logger) *KeywordClassifier {
	if dl == nil {
		dl = keyword.DefaultDenylist()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeywordClassifier{
		Denylist: dl,
		Logger:   logger.With("classifier", "keyword"),
	}
}

func (kc *KeywordClassifier) Name() string {
	return "keyword"
}

func (kc *KeywordClassifier) Classify(ctx context.Context, cand content.Candidate) (*Verdict, error) {
	return kc.ClassifyText(cand.Text), nil
}

func (kc *KeywordClassifier) ClassifyText(text string) *Verdict {
	v := &Verdict{
		Categories:       map[string]bool{},
		ConfidenceScores: map[string]float64{},
	}
	term, ok := kc.Denylist.Match(text)
	if !ok {
		v.Message = MessageSafe
		return v
	}
	keywordMatchCount.WithLabelValues(term).Inc()
	v.Flagged = true
	v.Message = MessageInappropriate
	v.Categories[CategoryInappropriate] = true
	return v
}
