package content

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Ordered preference lists for each field family. The first key holding a
// usable value wins; a value of the wrong JSON type falls through to the next
// key.
var (
	idFields        = []string{"id", "_id", "postId", "strideId"}
	textFields      = []string{"content", "caption", "text", "body"}
	authorFields    = []string{"author_id", "authorId", "userId", "author"}
	createdAtFields = []string{"created_at", "createdAt", "timestamp"}
	typeFields      = []string{"type", "contentType", "kind"}
)

// nested keys probed when an identifier field holds an object: Mongo extended
// JSON ({"$oid": ...}) or a populated document ({"_id": ..., "name": ...})
var nestedIDFields = []string{"$oid", "_id", "id"}

// Converts raw content records in to Candidates.
type Normalizer struct {
	Logger *slog.Logger
	// clock used for the created-at default; time.Now if nil
	Now func() time.Time
}

func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		Logger: logger,
		Now:    time.Now,
	}
}

// Normalize converts a batch, preserving input order. Items without a usable
// identifier, or duplicating an earlier (id, type) pair, are skipped and
// reported in the returned error list; they never abort the batch.
func (n *Normalizer) Normalize(raws []RawContent) ([]Candidate, []*NormalizationError) {
	out := make([]Candidate, 0, len(raws))
	var dropped []*NormalizationError
	seen := make(map[string]bool, len(raws))
	for i, raw := range raws {
		cand, err := n.NormalizeOne(i, raw)
		if err != nil {
			n.logger().Warn("dropping unusable content item", "index", i, "reason", err.Reason)
			dropped = append(dropped, err)
			continue
		}
		key := cand.Key()
		if seen[key] {
			err := &NormalizationError{Index: i, Reason: "duplicate content identifier " + key}
			n.logger().Warn("dropping duplicate content item", "index", i, "key", key)
			dropped = append(dropped, err)
			continue
		}
		seen[key] = true
		out = append(out, *cand)
	}
	return out, dropped
}

// NormalizeOne converts a single record. idx is only used for error reporting.
func (n *Normalizer) NormalizeOne(idx int, raw RawContent) (*Candidate, *NormalizationError) {
	if raw == nil {
		return nil, &NormalizationError{Index: idx, Reason: "null content record"}
	}
	id, ok := resolveString(raw, idFields)
	if !ok {
		return nil, &NormalizationError{Index: idx, Reason: "no usable identifier"}
	}

	cand := Candidate{
		ID:   id,
		Type: TypePost,
	}
	if text, ok := resolveText(raw, textFields); ok {
		cand.Text = text
	}
	if author, ok := resolveString(raw, authorFields); ok {
		cand.AuthorID = author
	}
	if t, ok := resolveString(raw, typeFields); ok {
		cand.Type = ParseType(t)
	}
	if ts, ok := resolveTime(raw, createdAtFields); ok {
		cand.CreatedAt = ts
	} else {
		cand.CreatedAt = n.now()
	}
	return &cand, nil
}

func (n *Normalizer) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

func (n *Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now().UTC()
	}
	return n.Now().UTC()
}

// text is taken verbatim (no trimming): an empty string is a valid body
func resolveText(raw RawContent, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok {
			return s, true
		}
	}
	return "", false
}

func resolveString(raw RawContent, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := scalarString(raw[k]); ok {
			return s, true
		}
		if obj, ok := raw[k].(map[string]any); ok {
			for _, nk := range nestedIDFields {
				if s, ok := scalarString(obj[nk]); ok {
					return s, true
				}
			}
		}
	}
	return "", false
}

func scalarString(v any) (string, bool) {
	var s string
	switch val := v.(type) {
	case string:
		s = strings.TrimSpace(val)
	case json.Number:
		s = val.String()
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", false
		}
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	default:
		return "", false
	}
	if s == "" {
		return "", false
	}
	return s, true
}

func resolveTime(raw RawContent, keys []string) (time.Time, bool) {
	for _, k := range keys {
		switch val := raw[k].(type) {
		case string:
			if strings.TrimSpace(val) == "" {
				continue
			}
			t, err := dateparse.ParseIn(strings.TrimSpace(val), time.UTC)
			if err == nil {
				return t.UTC(), true
			}
		case float64:
			if t, ok := epochTime(val); ok {
				return t, true
			}
		case int:
			if t, ok := epochTime(float64(val)); ok {
				return t, true
			}
		case int64:
			if t, ok := epochTime(float64(val)); ok {
				return t, true
			}
		case json.Number:
			f, err := val.Float64()
			if err != nil {
				continue
			}
			if t, ok := epochTime(f); ok {
				return t, true
			}
		case time.Time:
			if !val.IsZero() {
				return val.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// last millisecond of year 9999, the latest instant that renders as a four digit year
const maxEpochMillis = 253402300799999

// numbers above 1e12 are taken as epoch milliseconds, anything else as seconds
func epochTime(v float64) (time.Time, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > maxEpochMillis {
		return time.Time{}, false
	}
	if v > 1e12 {
		return time.UnixMilli(int64(v)).UTC(), true
	}
	return time.Unix(int64(v), 0).UTC(), true
}
