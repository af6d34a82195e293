package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/stride-social/modpipe/automod/classifier"
	"github.com/stride-social/modpipe/automod/content"
	"github.com/stride-social/modpipe/automod/keyword"
)

// FuncClassifier adapts a function to the Classifier interface, for tests.
type FuncClassifier struct {
	ClassifierName string
	Fn             func(ctx context.Context, cand content.Candidate) (*classifier.Verdict, error)

	mu    sync.Mutex
	calls []string
}

var _ classifier.Classifier = (*FuncClassifier)(nil)

func (c *FuncClassifier) Name() string {
	return c.ClassifierName
}

func (c *FuncClassifier) Classify(ctx context.Context, cand content.Candidate) (*classifier.Verdict, error) {
	c.mu.Lock()
	c.calls = append(c.calls, cand.ID)
	c.mu.Unlock()
	return c.Fn(ctx, cand)
}

// IDs of every candidate classified so far, in call order.
func (c *FuncClassifier) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// Flags any text containing "bad" as harassment, otherwise safe. Candidates
// whose ID is in failIDs get an item error.
func ScriptedClassifier(name string, failIDs ...string) *FuncClassifier {
	fail := make(map[string]bool, len(failIDs))
	for _, id := range failIDs {
		fail[id] = true
	}
	return &FuncClassifier{
		ClassifierName: name,
		Fn: func(ctx context.Context, cand content.Candidate) (*classifier.Verdict, error) {
			if fail[cand.ID] {
				return nil, &classifier.ItemError{CandidateID: cand.ID, Err: fmt.Errorf("scripted failure")}
			}
			if containsBad(cand.Text) {
				return &classifier.Verdict{
					Flagged:          true,
					Message:          "Content flagged for harassment",
					Categories:       map[string]bool{"harassment": true},
					ConfidenceScores: map[string]float64{"harassment": 0.95},
				}, nil
			}
			return &classifier.Verdict{
				Message:          classifier.MessageSafe,
				Categories:       map[string]bool{},
				ConfidenceScores: map[string]float64{"harassment": 0.01},
			}, nil
		},
	}
}

func containsBad(s string) bool {
	for _, tok := range keyword.TokenizeText(s) {
		if tok == "bad" {
			return true
		}
	}
	return false
}

// A primary classifier whose provider is down.
func UnavailableClassifier() *FuncClassifier {
	return &FuncClassifier{
		ClassifierName: "provider",
		Fn: func(ctx context.Context, cand content.Candidate) (*classifier.Verdict, error) {
			return nil, fmt.Errorf("%w: connection refused", classifier.ErrClassificationUnavailable)
		},
	}
}

// Wraps another classifier, sleeping a random duration up to maxDelay before each
// call (or until ctx is done).
func JitteryClassifier(inner classifier.Classifier, maxDelay time.Duration) *FuncClassifier {
	return &FuncClassifier{
		ClassifierName: inner.Name(),
		Fn: func(ctx context.Context, cand content.Candidate) (*classifier.Verdict, error) {
			d := time.Duration(rand.Int63n(int64(maxDelay) + 1))
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", classifier.ErrClassificationUnavailable, ctx.Err())
			}
			return inner.Classify(ctx, cand)
		},
	}
}

// Engine with a fixed clock and the default keyword fallback.
func EngineTestFixture(primary classifier.Classifier) Engine {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	logger := slog.Default()
	return Engine{
		Logger:     logger,
		Normalizer: &content.Normalizer{Logger: logger, Now: func() time.Time { return now }},
		Primary:    primary,
		Fallback:   classifier.NewKeywordClassifier(nil, logger),
		Config:     EngineConfig{Concurrency: 4},
		Now:        func() time.Time { return now },
	}
}
