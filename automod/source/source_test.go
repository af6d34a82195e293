package source

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stride-social/modpipe/automod/content"
	"github.com/stride-social/modpipe/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBatch(t *testing.T) {
	assert := assert.New(t)

	items, err := DecodeBatch([]byte(`[{"id": "1"}, "junk", {"id": "2"}]`))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal("1", items[0]["id"])
	assert.Nil(items[1])
	assert.Equal("2", items[2]["id"])

	items, err = DecodeBatch([]byte(`{"success": true, "posts": [{"_id": "abc", "content": "hi"}]}`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal("abc", items[0]["_id"])

	items, err = DecodeBatch([]byte(`{"strides": []}`))
	require.NoError(t, err)
	assert.Empty(items)

	_, err = DecodeBatch([]byte(`{"success": false, "message": "Internal server error"}`))
	require.Error(t, err)
	assert.Contains(err.Error(), "Internal server error")

	_, err = DecodeBatch([]byte(`{"other": []}`))
	assert.Error(err)
	_, err = DecodeBatch([]byte(``))
	assert.Error(err)
	_, err = DecodeBatch([]byte(`[{"id": 1}`))
	assert.Error(err)
}

func testHTTPSource(url string) *HTTPSource {
	src := NewHTTPSource(url, nil)
	// no retries in tests, to keep failures fast
	src.Client = util.RetryingHTTPClient(slog.Default(), 0, 5*time.Second)
	return src
}

func TestHTTPSourceFetch(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/api/fetch/allPosts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "posts": [{"_id": "p1", "content": "hello"}, {"_id": "p2", "content": "bye"}]}`))
	}))
	defer srv.Close()

	items, err := testHTTPSource(srv.URL + "/api/fetch/allPosts").FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal("hello", items[0]["content"])
}

func TestHTTPSourceUnavailable(t *testing.T) {
	fixtures := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(404)
			},
		},
		{
			name: "envelope failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"success": false, "message": "db down"}`))
			},
		},
		{
			name: "garbage",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>oops</html>`))
			},
		},
	}

	for _, fix := range fixtures {
		t.Run(fix.name, func(t *testing.T) {
			srv := httptest.NewServer(fix.handler)
			defer srv.Close()
			_, err := testHTTPSource(srv.URL).FetchAll(context.Background())
			assert.True(t, errors.Is(err, ErrSourceUnavailable), "got: %v", err)
		})
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	_, err := testHTTPSource(url).FetchAll(context.Background())
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestFileSource(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	p := filepath.Join(dir, "posts.json")
	require.NoError(t, os.WriteFile(p, []byte(`[{"id": "1", "caption": "x"}]`), 0644))
	items, err := (&FileSource{Path: p}).FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = (&FileSource{Path: filepath.Join(dir, "nope.json")}).FetchAll(context.Background())
	assert.True(errors.Is(err, ErrSourceUnavailable))
}

func TestStaticSourceCopies(t *testing.T) {
	assert := assert.New(t)

	src := &StaticSource{Items: []content.RawContent{{"id": "1"}, {"id": "2"}}}
	items, err := src.FetchAll(context.Background())
	require.NoError(t, err)
	items[0] = nil
	again, err := src.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal("1", again[0]["id"])
}
