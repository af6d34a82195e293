package content

import (
	"fmt"
	"strings"
	"time"
)

// A decoded JSON object as returned by a content source. Field names vary by
// producer (posts vs strides, API vs database documents), so nothing is
// assumed about its shape until it has been normalized.
type RawContent map[string]any

type Type string

const (
	TypePost   Type = "post"
	TypeStride Type = "stride"
)

// ParseType maps a free-form content type string on to a known Type. Unknown
// or empty values are treated as regular posts.
func ParseType(s string) Type {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stride", "strides", "reel", "reels", "video", "short":
		return TypeStride
	default:
		return TypePost
	}
}

// Candidate is one normalized content item awaiting moderation.
type Candidate struct {
	ID        string
	Type      Type
	Text      string
	AuthorID  string
	CreatedAt time.Time
}

// Key is unique for a candidate within a single pipeline run.
func (c *Candidate) Key() string {
	return fmt.Sprintf("%s/%s", c.Type, c.ID)
}

type NormalizationError struct {
	// position of the raw item in the input batch
	Index  int
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalizing content item %d: %s", e.Index, e.Reason)
}
