// Content sources: where the moderation pipeline reads raw content from.
//
// A source is an external owner of the content. The pipeline only reads from
// it; FetchAll must be idempotent and free of side effects.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stride-social/modpipe/automod/content"
)

type ContentSource interface {
	FetchAll(ctx context.Context) ([]content.RawContent, error)
}

// Returned (wrapped) when a source can not be reached or returns nothing usable.
var ErrSourceUnavailable = errors.New("content source unavailable")

// StaticSource serves a fixed batch, eg a request body.
type StaticSource struct {
	Items []content.RawContent
}

var _ ContentSource = (*StaticSource)(nil)

func (s *StaticSource) FetchAll(ctx context.Context) ([]content.RawContent, error) {
	out := make([]content.RawContent, len(s.Items))
	copy(out, s.Items)
	return out, nil
}

// keys probed, in order, when a source returns an envelope object instead of a bare array
var envelopeKeys = []string{"posts", "strides", "data", "items"}

// DecodeBatch parses a JSON batch of raw content: either a bare array, or an
// envelope object like {"success": true, "posts": [...]}. Array elements which
// are not JSON objects are kept as nil entries, so the normalizer can report
// them by position.
func DecodeBatch(body []byte) ([]content.RawContent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty content batch")
	}

	if body[0] == '[' {
		return decodeArray(body)
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing content batch: %w", err)
	}
	if raw, ok := env["success"]; ok {
		var success bool
		if err := json.Unmarshal(raw, &success); err == nil && !success {
			msg := envelopeMessage(env)
			return nil, fmt.Errorf("content source reported failure: %s", msg)
		}
	}
	for _, k := range envelopeKeys {
		if raw, ok := env[k]; ok {
			return decodeArray(raw)
		}
	}
	return nil, fmt.Errorf("content batch envelope has none of %v", envelopeKeys)
}

func decodeArray(raw []byte) ([]content.RawContent, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("parsing content array: %w", err)
	}
	out := make([]content.RawContent, len(elems))
	for i, elem := range elems {
		var obj map[string]any
		if err := json.Unmarshal(elem, &obj); err != nil {
			continue
		}
		out[i] = content.RawContent(obj)
	}
	return out, nil
}

func envelopeMessage(env map[string]json.RawMessage) string {
	for _, k := range []string{"error", "message"} {
		var s string
		if raw, ok := env[k]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}
	return "unknown error"
}
