package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/stride-social/modpipe/automod/content"
)

// Classifier produces a moderation verdict for a single candidate.
//
// Implementations must return within a bounded time: either a verdict, or an
// error which is (or wraps) ErrClassificationUnavailable or an *ItemError.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, cand content.Candidate) (*Verdict, error)
}

// Output of a classifier for one candidate.
type Verdict struct {
	Flagged          bool
	Message          string
	Categories       map[string]bool
	ConfidenceScores map[string]float64
	// set when classification of this one item failed and the verdict is a best-effort placeholder
	Error *string
}

// Clone returns a deep copy, so a verdict is never shared between items.
func (v *Verdict) Clone() Verdict {
	out := Verdict{
		Flagged:          v.Flagged,
		Message:          v.Message,
		Categories:       make(map[string]bool, len(v.Categories)),
		ConfidenceScores: make(map[string]float64, len(v.ConfidenceScores)),
	}
	for k, val := range v.Categories {
		out.Categories[k] = val
	}
	for k, val := range v.ConfidenceScores {
		out.ConfidenceScores[k] = val
	}
	if v.Error != nil {
		e := *v.Error
		out.Error = &e
	}
	return out
}

// Validate checks that a flagged verdict carries a reason.
func (v *Verdict) Validate() error {
	if v.Flagged && len(v.Categories) == 0 && v.Error == nil {
		return fmt.Errorf("flagged verdict without categories or error")
	}
	for cat, score := range v.ConfidenceScores {
		if !(score >= 0 && score <= 1) {
			return fmt.Errorf("confidence score out of range: %s=%v", cat, score)
		}
	}
	return nil
}

const (
	MessageSafe          = "Content appears safe"
	MessageEmpty         = "No content to moderate"
	MessageInappropriate = "Content may contain inappropriate language"
	MessageError         = "Error during content moderation"
)

// ErrorVerdict is the best-effort placeholder for an item whose
// classification failed inside an otherwise healthy run.
func ErrorVerdict(err error) *Verdict {
	msg := err.Error()
	return &Verdict{
		Flagged:          false,
		Message:          MessageError,
		Categories:       map[string]bool{},
		ConfidenceScores: map[string]float64{},
		Error:            &msg,
	}
}

// Signals that the classification provider itself is unreachable or unusable
// (transport failure, timeout, non-2xx status, malformed response).
var ErrClassificationUnavailable = errors.New("classification provider unavailable")

// ItemError is a failure specific to one candidate, with the provider
// otherwise healthy.
type ItemError struct {
	CandidateID string
	Err         error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("classifying %s: %s", e.CandidateID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrClassificationUnavailable, fmt.Sprintf(format, args...))
}
