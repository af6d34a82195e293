package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/stride-social/modpipe/automod/content"
	"github.com/stride-social/modpipe/util"

	"github.com/carlmjohnson/versioninfo"
)

// HTTPSource reads a batch from an HTTP endpoint, such as the platform's
// "all posts" API.
type HTTPSource struct {
	Client *http.Client
	URL    string
	Logger *slog.Logger
}

var _ ContentSource = (*HTTPSource)(nil)

// Uses the retrying robust HTTP client.
func NewHTTPSource(url string, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		Client: util.RobustHTTPClient(logger),
		URL:    url,
		Logger: logger.With("source", url),
	}
}

func (s *HTTPSource) FetchAll(ctx context.Context) ([]content.RawContent, error) {
	s.Logger.Debug("fetching content batch")

	req, err := http.NewRequestWithContext(ctx, "GET", s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "modpipe/"+versioninfo.Short())

	res, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", ErrSourceUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != 200 {
		return nil, fmt.Errorf("%w: request failed statusCode=%d", ErrSourceUnavailable, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrSourceUnavailable, err)
	}
	items, err := DecodeBatch(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	s.Logger.Info("fetched content batch", "count", len(items))
	return items, nil
}

// FileSource reads a batch from a local JSON file.
type FileSource struct {
	Path string
}

var _ ContentSource = (*FileSource)(nil)

func (s *FileSource) FetchAll(ctx context.Context) ([]content.RawContent, error) {
	body, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	items, err := DecodeBatch(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.Path, err)
	}
	return items, nil
}
