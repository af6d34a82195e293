package resultstore

import (
	"context"
	"time"

	"github.com/stride-social/modpipe/automod/engine"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Responses are held serialized, so callers never share (or mutate) a stored
// result.
type MemResultStore struct {
	Data *expirable.LRU[string, string]
}

var _ ResultStore = (*MemResultStore)(nil)

func NewMemResultStore(capacity int, ttl time.Duration) MemResultStore {
	return MemResultStore{
		Data: expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

func (s MemResultStore) Get(ctx context.Context, runID string) (*engine.Response, error) {
	v, ok := s.Data.Get(runID)
	if !ok {
		return nil, nil
	}
	return decodeResponse(v)
}

func (s MemResultStore) Put(ctx context.Context, resp *engine.Response) error {
	val, err := encodeResponse(resp)
	if err != nil {
		return err
	}
	s.Data.Add(resp.RunID, val)
	return nil
}

func (s MemResultStore) Purge(ctx context.Context, runID string) error {
	s.Data.Remove(runID)
	return nil
}
