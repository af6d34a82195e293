package engine

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/stride-social/modpipe/automod/severity"
)

// Response is the JSON envelope handed to API consumers for a run.
type Response struct {
	Success      bool       `json:"success"`
	UsedFallback bool       `json:"usedFallback"`
	Partial      bool       `json:"partial"`
	RunID        string     `json:"run_id"`
	Message      string     `json:"message"`
	Dropped      int        `json:"dropped"`
	Data         []ItemView `json:"data"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func NewErrorResponse(err error) *ErrorResponse {
	return &ErrorResponse{Success: false, Error: err.Error()}
}

type ItemView struct {
	ID               string      `json:"id"`
	Type             string      `json:"type"`
	Content          string      `json:"content"`
	AuthorID         string      `json:"author_id"`
	CreatedAt        Timestamp   `json:"created_at"`
	ModerationResult VerdictView `json:"moderation_result"`
	SeverityScore    float64     `json:"severity_score"`
	SeverityLevel    string      `json:"severity_level"`
	ProcessedAt      Timestamp   `json:"processed_at"`
}

// JSON timestamps are UTC with millisecond precision, eg "2024-04-01T00:00:00.000Z"
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp keeps the parsed instant alongside its JSON string form, so views
// reloaded from the result store sort the same as freshly rendered ones.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

func (t Timestamp) String() string {
	return t.UTC().Format(timestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	*t = NewTimestamp(parsed)
	return nil
}

type VerdictView struct {
	Flagged          bool               `json:"flagged"`
	Message          string             `json:"message"`
	Categories       map[string]bool    `json:"categories"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	Error            *string            `json:"error"`
}

// NewResponse renders a run result. Item order is the run's input order.
func NewResponse(res *Result) *Response {
	resp := &Response{
		Success:      true,
		UsedFallback: res.UsedFallback,
		Partial:      res.Partial,
		RunID:        res.RunID,
		Message:      res.Message,
		Dropped:      len(res.Dropped),
		Data:         make([]ItemView, 0, len(res.Items)),
	}
	for i := range res.Items {
		resp.Data = append(resp.Data, NewItemView(&res.Items[i]))
	}
	return resp
}

func NewItemView(item *ModeratedItem) ItemView {
	// Clone never leaves nil maps, so categories render as {} rather than null
	v := item.Verdict.Clone()
	return ItemView{
		ID:        item.ID,
		Type:      string(item.Type),
		Content:   item.Text,
		AuthorID:  item.AuthorID,
		CreatedAt: NewTimestamp(item.CreatedAt),
		ModerationResult: VerdictView{
			Flagged:          v.Flagged,
			Message:          v.Message,
			Categories:       v.Categories,
			ConfidenceScores: v.ConfidenceScores,
			Error:            v.Error,
		},
		SeverityScore: item.SeverityScore,
		SeverityLevel: string(item.SeverityLevel),
		ProcessedAt:   NewTimestamp(item.ProcessedAt),
	}
}

const (
	FilterAll     = "all"
	FilterFlagged = "flagged"
	FilterSafe    = "safe"

	SortInput    = "input"
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortSeverity = "severity"
)

// Filter returns a copy of the response keeping only the items selected by
// filter ("all", "flagged" or "safe"; empty means "all").
func (r *Response) Filter(filter string) (*Response, error) {
	out := *r
	switch filter {
	case "", FilterAll:
		out.Data = slices.Clone(r.Data)
		return &out, nil
	case FilterFlagged, FilterSafe:
	default:
		return nil, fmt.Errorf("unknown filter: %q", filter)
	}
	out.Data = make([]ItemView, 0, len(r.Data))
	for _, item := range r.Data {
		if item.ModerationResult.Flagged == (filter == FilterFlagged) {
			out.Data = append(out.Data, item)
		}
	}
	return &out, nil
}

// Sort returns a copy of the response with items re-ordered. "input" (or
// empty) keeps the run's input order. Ties keep input order.
func (r *Response) Sort(order string) (*Response, error) {
	out := *r
	out.Data = slices.Clone(r.Data)
	switch order {
	case "", SortInput:
	case SortNewest:
		slices.SortStableFunc(out.Data, func(a, b ItemView) int {
			return b.CreatedAt.Compare(a.CreatedAt.Time)
		})
	case SortOldest:
		slices.SortStableFunc(out.Data, func(a, b ItemView) int {
			return a.CreatedAt.Compare(b.CreatedAt.Time)
		})
	case SortSeverity:
		slices.SortStableFunc(out.Data, func(a, b ItemView) int {
			ra, rb := severity.Level(a.SeverityLevel).Rank(), severity.Level(b.SeverityLevel).Rank()
			if ra != rb {
				return rb - ra
			}
			switch {
			case a.SeverityScore > b.SeverityScore:
				return -1
			case a.SeverityScore < b.SeverityScore:
				return 1
			}
			return 0
		})
	default:
		return nil, fmt.Errorf("unknown sort order: %q", order)
	}
	return &out, nil
}
