package keyword

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// DefaultDenylistTerms is the last-resort term list used when no denylist file
// is configured.
var DefaultDenylistTerms = []string{
	"fuck", "shit", "ass", "dick", "porn", "sex",
	"hate", "kill", "murder", "die", "attack",
	"racist", "nazi", "terrorism",
}

// The set name read from a JSON file holding several named sets.
const DenylistSetName = "denylist"

// Denylist is an immutable set of lower-cased terms, matched as substrings of
// the lower-cased text. With accent folding enabled both sides are compared in
// FoldText form instead, so "KÍLL" also matches "kill".
type Denylist struct {
	terms       []string
	folded      []string
	foldAccents bool
}

// NewDenylist lower-cases and de-duplicates terms. Blank terms are ignored: an
// empty term would match every text.
func NewDenylist(terms []string) *Denylist {
	return &Denylist{
		terms:  dedupeTerms(terms, strings.ToLower),
		folded: dedupeTerms(terms, FoldText),
	}
}

func dedupeTerms(terms []string, norm func(string) string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		f := strings.TrimSpace(norm(t))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func DefaultDenylist() *Denylist {
	return NewDenylist(DefaultDenylistTerms)
}

// WithAccentFolding returns a copy of the list that also strips combining
// marks before matching.
func (d *Denylist) WithAccentFolding() *Denylist {
	out := *d
	out.foldAccents = true
	return &out
}

func (d *Denylist) FoldsAccents() bool {
	return d.foldAccents
}

func (d *Denylist) Terms() []string {
	if d.foldAccents {
		return append([]string(nil), d.folded...)
	}
	return append([]string(nil), d.terms...)
}

func (d *Denylist) Len() int {
	return len(d.Terms())
}

// Match returns the first term (in sorted order) that is a substring of the
// lower-cased, or folded, text.
func (d *Denylist) Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	norm, terms := strings.ToLower(text), d.terms
	if d.foldAccents {
		norm, terms = FoldText(text), d.folded
	}
	for _, t := range terms {
		if strings.Contains(norm, t) {
			return t, true
		}
	}
	return "", false
}

// LoadDenylistJSON reads terms from a JSON file. The file holds either a bare
// array of strings, or an object of named sets (the "denylist" set is used).
func LoadDenylistJSON(p string) (*Denylist, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return ParseDenylistJSON(raw)
}

func ParseDenylistJSON(raw []byte) (*Denylist, error) {
	var terms []string
	if err := json.Unmarshal(raw, &terms); err == nil {
		return NewDenylist(terms), nil
	}

	var sets map[string][]string
	if err := json.Unmarshal(raw, &sets); err != nil {
		return nil, fmt.Errorf("parsing denylist JSON: %w", err)
	}
	terms, ok := sets[DenylistSetName]
	if !ok {
		return nil, fmt.Errorf("denylist JSON has no %q set", DenylistSetName)
	}
	return NewDenylist(terms), nil
}
