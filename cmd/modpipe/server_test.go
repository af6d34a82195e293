package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stride-social/modpipe/automod/classifier"
	"github.com/stride-social/modpipe/automod/content"
	"github.com/stride-social/modpipe/automod/engine"
	"github.com/stride-social/modpipe/automod/resultstore"
	"github.com/stride-social/modpipe/automod/source"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v2"
)

func testServer(t *testing.T, src source.ContentSource) *Server {
	eng := engine.EngineTestFixture(engine.ScriptedClassifier("provider"))
	srv, err := NewServer(Config{
		Engine:     &eng,
		Source:     src,
		Results:    resultstore.NewMemResultStore(100, time.Hour),
		RunTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return srv
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) engine.Response {
	var resp engine.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	srv := testServer(t, nil)
	rec := doRequest(srv, "GET", "/_health", "")
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestModerateBody(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t, nil)

	body := `{"success": true, "posts": [
		{"_id": "a", "content": "hello there", "createdAt": "2024-01-01T00:00:00Z"},
		{"_id": "b", "content": "really bad stuff", "createdAt": "2024-01-02T00:00:00Z"},
		{"content": "missing id"}
	]}`
	rec := doRequest(srv, "POST", "/moderation", body)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.True(resp.Success)
	assert.False(resp.UsedFallback)
	assert.Equal(1, resp.Dropped)
	require.Len(t, resp.Data, 2)
	assert.Equal("a", resp.Data[0].ID)
	assert.True(resp.Data[1].ModerationResult.Flagged)
	assert.Equal("HIGH", resp.Data[1].SeverityLevel)

	// stored, and re-readable with a different view
	rec = doRequest(srv, "GET", "/moderation/"+resp.RunID+"?filter=flagged", "")
	require.Equal(t, 200, rec.Code)
	stored := decodeResponse(t, rec)
	assert.Equal(resp.RunID, stored.RunID)
	require.Len(t, stored.Data, 1)
	assert.Equal("b", stored.Data[0].ID)

	rec = doRequest(srv, "GET", "/moderation/"+resp.RunID+"?sort=newest", "")
	require.Equal(t, 200, rec.Code)
	stored = decodeResponse(t, rec)
	assert.Equal("b", stored.Data[0].ID)
}

func TestModerateBadRequests(t *testing.T) {
	srv := testServer(t, nil)

	rec := doRequest(srv, "POST", "/moderation", `{"nope": 1}`)
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)

	rec = doRequest(srv, "POST", "/moderation", `not json`)
	assert.Equal(t, 400, rec.Code)

	rec = doRequest(srv, "POST", "/moderation?filter=spicy", `[{"id": "1", "content": "x"}]`)
	assert.Equal(t, 400, rec.Code)

	rec = doRequest(srv, "GET", "/moderation/no-such-run", "")
	assert.Equal(t, 404, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestModerateSource(t *testing.T) {
	assert := assert.New(t)

	srv := testServer(t, nil)
	rec := doRequest(srv, "GET", "/moderation", "")
	assert.Equal(502, rec.Code)

	srv = testServer(t, &source.FileSource{Path: "testdata/missing.json"})
	rec = doRequest(srv, "GET", "/moderation", "")
	assert.Equal(502, rec.Code)
	assert.Contains(rec.Body.String(), "content source unavailable")

	srv = testServer(t, &source.StaticSource{Items: []content.RawContent{
		{"id": "s1", "caption": "a bad stride", "type": "stride"},
		{"id": "s2", "caption": "a nice stride", "type": "stride"},
	}})
	rec = doRequest(srv, "GET", "/moderation?filter=safe", "")
	require.Equal(t, 200, rec.Code)
	resp := decodeResponse(t, rec)
	require.Len(t, resp.Data, 1)
	assert.Equal("s2", resp.Data[0].ID)
	assert.Equal("stride", resp.Data[0].Type)
}

func TestParseThresholds(t *testing.T) {
	assert := assert.New(t)

	th, err := parseThresholds("hate=0.4, sexual = 0.3,")
	require.NoError(t, err)
	assert.Equal(map[string]float64{"hate": 0.4, "sexual": 0.3}, th)

	th, err = parseThresholds("")
	require.NoError(t, err)
	assert.Empty(th)

	_, err = parseThresholds("hate")
	assert.Error(err)
	_, err = parseThresholds("hate=2")
	assert.Error(err)
}

func testCLIContext(t *testing.T, args ...string) *cli.Context {
	fs := flag.NewFlagSet("modpipe", flag.ContinueOnError)
	for _, f := range appFlags() {
		require.NoError(t, f.Apply(fs))
	}
	require.NoError(t, fs.Parse(args))
	return cli.NewContext(nil, fs, nil)
}

func TestConfigEngineThresholds(t *testing.T) {
	assert := assert.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng, err := configEngine(testCLIContext(t, "--provider-host", "http://provider.example", "--flag-threshold", "0"), logger)
	require.NoError(t, err)
	pc, ok := eng.Primary.(*classifier.ProviderClassifier)
	require.True(t, ok)
	assert.Equal(0.0, pc.Config.DefaultThreshold)

	for _, th := range []string{"-0.2", "1.5"} {
		_, err = configEngine(testCLIContext(t, "--provider-host", "http://provider.example", "--flag-threshold", th), logger)
		assert.Error(err, th)
	}
}

func TestConfigEngineAccentFolding(t *testing.T) {
	assert := assert.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng, err := configEngine(testCLIContext(t), logger)
	require.NoError(t, err)
	assert.Nil(eng.Primary)
	kc := eng.Fallback.(*classifier.KeywordClassifier)
	assert.False(kc.ClassifyText("KÍLL").Flagged)

	eng, err = configEngine(testCLIContext(t, "--fallback-fold-accents"), logger)
	require.NoError(t, err)
	kc = eng.Fallback.(*classifier.KeywordClassifier)
	assert.True(kc.ClassifyText("KÍLL").Flagged)
}

func TestFakeContentNormalizes(t *testing.T) {
	assert := assert.New(t)
	faker := gofakeit.New(42)

	batch := fakeContent(faker, 30, 0.5)
	require.Len(t, batch, 30)

	// through JSON, the way a real source delivers it
	b, err := json.Marshal(batch)
	require.NoError(t, err)
	raws, err := source.DecodeBatch(b)
	require.NoError(t, err)

	cands, dropped := content.NewNormalizer(nil).Normalize(raws)
	assert.Empty(dropped)
	assert.Len(cands, 30)
	for _, c := range cands {
		assert.NotEmpty(c.Text)
		assert.NotEmpty(c.AuthorID)
	}
	assert.Equal(content.TypeStride, cands[1].Type)
}
