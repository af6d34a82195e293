package resultstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stride-social/modpipe/automod/engine"
)

type ResultStore interface {
	// returns nil (and no error) for unknown or expired run IDs
	Get(ctx context.Context, runID string) (*engine.Response, error)
	Put(ctx context.Context, resp *engine.Response) error
	Purge(ctx context.Context, runID string) error
}

func encodeResponse(resp *engine.Response) (string, error) {
	if resp.RunID == "" {
		return "", fmt.Errorf("can not store response without a run ID")
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("encoding response: %w", err)
	}
	return string(b), nil
}

func decodeResponse(val string) (*engine.Response, error) {
	var resp engine.Response
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, fmt.Errorf("decoding stored response: %w", err)
	}
	return &resp, nil
}
