package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/stride-social/modpipe/automod/content"
	"github.com/stride-social/modpipe/automod/helpers"

	"github.com/carlmjohnson/versioninfo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

type ProviderConfig struct {
	// base URL of the moderation provider, eg "https://api.moderation.example"
	Host     string
	APIToken string
	// per-call bound, applied on top of any caller deadline
	Timeout time.Duration
	// confidence above which a category counts as flagged. Zero is honored
	// as-is (any positive score flags); start from DefaultProviderConfig for 0.5.
	DefaultThreshold float64
	// per-category overrides of DefaultThreshold
	Thresholds map[string]float64
	// texts longer than this (in bytes) are rejected locally as item errors
	MaxTextLength int
	// max provider requests per second; zero disables pacing
	RateLimit float64
}

func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:          10 * time.Second,
		DefaultThreshold: 0.5,
		MaxTextLength:    10_000,
		RateLimit:        10,
	}
}

// ProviderClassifier delegates to an external text moderation service.
//
// It never retries and never degrades: any provider failure is reported as
// ErrClassificationUnavailable, and the caller decides what to do about it.
type ProviderClassifier struct {
	Client  *http.Client
	Config  ProviderConfig
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

var _ Classifier = (*ProviderClassifier)(nil)

func NewProviderClassifier(config ProviderConfig, logger *slog.Logger) (*ProviderClassifier, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("moderation provider host is required")
	}
	def := DefaultProviderConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if !(config.DefaultThreshold >= 0 && config.DefaultThreshold <= 1) {
		return nil, fmt.Errorf("default threshold must be within [0, 1], got %v", config.DefaultThreshold)
	}
	for cat, th := range config.Thresholds {
		if !(th >= 0 && th <= 1) {
			return nil, fmt.Errorf("threshold for %q must be within [0, 1], got %v", cat, th)
		}
	}
	if config.MaxTextLength <= 0 {
		config.MaxTextLength = def.MaxTextLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	pc := &ProviderClassifier{
		// no retry middleware: a degraded provider should fail fast to the fallback
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport.(*http.Transport).Clone()),
			Timeout:   config.Timeout,
		},
		Config: config,
		Logger: logger.With("classifier", "provider"),
	}
	if config.RateLimit > 0 {
		pc.Limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return pc, nil
}

func (pc *ProviderClassifier) Name() string {
	return "provider"
}

// schema of the provider request
type ModerateReq struct {
	Inputs []string `json:"inputs"`
}

// schema of the provider response. "flagged" may be either an overall boolean,
// or an object of per-category booleans.
type ModerateResp struct {
	ID      string                `json:"id,omitempty"`
	Results []ModerateResp_Result `json:"results"`
}

type ModerateResp_Result struct {
	Flagged          json.RawMessage    `json:"flagged,omitempty"`
	Categories       map[string]bool    `json:"categories,omitempty"`
	ConfidenceScores map[string]float64 `json:"confidence_scores,omitempty"`
	CategoryScores   map[string]float64 `json:"category_scores,omitempty"`
}

func (pc *ProviderClassifier) Classify(ctx context.Context, cand content.Candidate) (*Verdict, error) {
	if strings.TrimSpace(cand.Text) == "" {
		return &Verdict{
			Flagged:          false,
			Message:          MessageEmpty,
			Categories:       map[string]bool{},
			ConfidenceScores: map[string]float64{},
		}, nil
	}
	if len(cand.Text) > pc.Config.MaxTextLength {
		return nil, &ItemError{
			CandidateID: cand.ID,
			Err:         fmt.Errorf("text length %d exceeds provider limit %d", len(cand.Text), pc.Config.MaxTextLength),
		}
	}

	if err := pc.waitLimiter(ctx); err != nil {
		return nil, err
	}

	// the per-call timeout bounds only the request, not time spent queued on the limiter
	callCtx, cancel := context.WithTimeout(ctx, pc.Config.Timeout)
	defer cancel()

	resp, err := pc.moderate(callCtx, cand)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, unavailable("provider response has no results")
	}
	return pc.verdictFromResult(&resp.Results[0])
}

// waitLimiter blocks until the limiter admits one request. Limiter.Wait refuses
// immediately when the reservation would land past the ctx deadline; in that
// case this sits out the deadline, so callers see the run's own ctx error rather
// than a provider failure while the run is still live.
func (pc *ProviderClassifier) waitLimiter(ctx context.Context) error {
	if pc.Limiter == nil {
		return nil
	}
	err := pc.Limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
		<-ctx.Done()
		err = ctx.Err()
	}
	return fmt.Errorf("%w: waiting for rate limiter: %w", ErrClassificationUnavailable, err)
}

func (pc *ProviderClassifier) moderate(ctx context.Context, cand content.Candidate) (*ModerateResp, error) {
	pc.Logger.Debug("sending text to moderation provider", "id", cand.ID, "text_hash", helpers.HashOfString(cand.Text), "size", len(cand.Text))

	body, err := json.Marshal(ModerateReq{Inputs: []string{cand.Text}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimSuffix(pc.Config.Host, "/")+"/v1/moderate", bytes.NewReader(body))
	if err != nil {
		return nil, unavailable("building request: %v", err)
	}
	if pc.Config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+pc.Config.APIToken)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "modpipe/"+versioninfo.Short())

	start := time.Now()
	defer func() {
		duration := time.Since(start)
		providerAPIDuration.Observe(duration.Seconds())
	}()

	res, err := pc.Client.Do(req)
	if err != nil {
		providerAPICount.WithLabelValues("error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: provider request timed out: %w", ErrClassificationUnavailable, err)
		}
		return nil, fmt.Errorf("%w: provider request failed: %w", ErrClassificationUnavailable, err)
	}
	defer res.Body.Close()

	providerAPICount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		pc.Logger.Warn("moderation provider error response", "statusCode", res.StatusCode, "body", helpers.TruncateText(string(errBody), 200))
		return nil, unavailable("provider request failed statusCode=%d", res.StatusCode)
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read provider resp body: %w", ErrClassificationUnavailable, err)
	}

	var respObj ModerateResp
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		return nil, unavailable("failed to parse provider resp JSON: %v", err)
	}
	pc.Logger.Debug("moderation provider response", "id", cand.ID, "results", len(respObj.Results))
	return &respObj, nil
}

func (pc *ProviderClassifier) threshold(cat string) float64 {
	if t, ok := pc.Config.Thresholds[cat]; ok {
		return t
	}
	return pc.Config.DefaultThreshold
}

func (pc *ProviderClassifier) verdictFromResult(res *ModerateResp_Result) (*Verdict, error) {
	scores := res.ConfidenceScores
	if len(scores) == 0 {
		scores = res.CategoryScores
	}

	providerFlagged := false
	providerCats := make(map[string]bool, len(res.Categories))
	for cat, val := range res.Categories {
		providerCats[cat] = val
	}
	if len(res.Flagged) > 0 && string(res.Flagged) != "null" {
		var b bool
		var m map[string]bool
		if err := json.Unmarshal(res.Flagged, &b); err == nil {
			providerFlagged = b
		} else if err := json.Unmarshal(res.Flagged, &m); err == nil {
			for cat, val := range m {
				providerCats[cat] = providerCats[cat] || val
			}
		} else {
			return nil, unavailable("unexpected 'flagged' value in provider response: %s", string(res.Flagged))
		}
	} else if len(scores) == 0 && len(providerCats) == 0 {
		return nil, unavailable("provider result has neither flags nor scores")
	}

	v := &Verdict{
		Categories:       make(map[string]bool, len(scores)+len(providerCats)),
		ConfidenceScores: make(map[string]float64, len(scores)),
	}
	for cat, score := range scores {
		if math.IsNaN(score) || score < 0 || score > 1 {
			return nil, unavailable("confidence score out of range: %s=%v", cat, score)
		}
		v.ConfidenceScores[cat] = score
		v.Categories[cat] = score > pc.threshold(cat)
	}
	for cat, val := range providerCats {
		v.Categories[cat] = v.Categories[cat] || val
	}

	anyCat := false
	for _, val := range v.Categories {
		if val {
			anyCat = true
			break
		}
	}
	v.Flagged = anyCat || providerFlagged
	if v.Flagged && !anyCat {
		v.Categories["unspecified"] = true
	}

	if v.Flagged {
		v.Message = "Content flagged for " + highestRiskCategory(v)
	} else {
		v.Message = MessageSafe
	}
	return v, nil
}

// the flagged category with the highest confidence; ties (and categories
// without a score) resolve by name
func highestRiskCategory(v *Verdict) string {
	var flagged []string
	for cat, val := range v.Categories {
		if val {
			flagged = append(flagged, cat)
		}
	}
	sort.Strings(flagged)
	best := ""
	bestScore := -1.0
	for _, cat := range flagged {
		score, ok := v.ConfidenceScores[cat]
		if !ok {
			score = 0
		}
		if score > bestScore {
			best = cat
			bestScore = score
		}
	}
	return best
}

// Releases pooled connections once a run is over.
func (pc *ProviderClassifier) CloseIdleConnections() {
	pc.Client.CloseIdleConnections()
}
