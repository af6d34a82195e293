package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stride-social/modpipe/automod/classifier"
	"github.com/stride-social/modpipe/automod/content"
	"github.com/stride-social/modpipe/automod/severity"
	"github.com/stride-social/modpipe/automod/source"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("automod")

// Content source could not be reached at all; nothing to moderate.
var ErrSourceUnavailable = source.ErrSourceUnavailable

type EngineConfig struct {
	// max in-flight classification calls per run
	Concurrency int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Concurrency: 8,
	}
}

// Runtime for moderating batches of content: normalizes raw records, runs
// them through the primary classifier (or the fallback when the primary is
// down), and attaches severity.
//
// An Engine holds no per-run state, and is safe for concurrent runs.
type Engine struct {
	Logger     *slog.Logger
	Normalizer *content.Normalizer
	// preferred classifier; optional, when nil every run uses Fallback
	Primary classifier.Classifier
	// always-available classifier; keyword denylist when nil
	Fallback classifier.Classifier
	Config   EngineConfig
	// clock for ProcessedAt; time.Now when nil
	Now func() time.Time
}

// Output of one pipeline run. Items are in input order.
type Result struct {
	RunID        string
	Items        []ModeratedItem
	UsedFallback bool
	// the run deadline expired; Items holds only what was already computed
	Partial bool
	Dropped []*content.NormalizationError
	// name of the classifier which produced the verdicts
	Classifier string
	Message    string
}

// A candidate with its verdict and severity. Never mutated after a run
// returns; a re-run produces new items.
type ModeratedItem struct {
	content.Candidate
	Verdict       classifier.Verdict
	SeverityScore float64
	SeverityLevel severity.Level
	ProcessedAt   time.Time
}

// RunSource fetches a batch from src and moderates it. The only error
// returned is a wrapped ErrSourceUnavailable.
func (eng *Engine) RunSource(ctx context.Context, src source.ContentSource) (*Result, error) {
	raws, err := src.FetchAll(ctx)
	if err != nil {
		runCount.WithLabelValues("source_error").Inc()
		eng.logger().Error("failed to fetch content batch", "err", err)
		if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return eng.Run(ctx, raws)
}

// Run moderates a batch of raw content. Classifier failures never surface as
// errors: they are absorbed by the fallback classifier or attached to
// individual verdicts. A deadline on ctx bounds the whole run; when it
// expires, the items computed so far are returned with Partial set.
func (eng *Engine) Run(ctx context.Context, raws []content.RawContent) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	start := time.Now()
	defer func() {
		runDuration.Observe(time.Since(start).Seconds())
	}()
	defer eng.releaseClassifiers()

	res := &Result{
		RunID: uuid.NewString(),
	}
	logger := eng.logger().With("run", res.RunID)

	cands, dropped := eng.normalizer().Normalize(raws)
	res.Dropped = dropped
	normalizationDroppedCount.Add(float64(len(dropped)))
	span.SetAttributes(attribute.Int("raw.count", len(raws)), attribute.Int("candidates.count", len(cands)), attribute.Int("dropped.count", len(dropped)))

	verdicts := make([]*classifier.Verdict, len(cands))
	active := eng.fallback()

	if eng.Primary == nil {
		res.UsedFallback = true
		res.Message = fmt.Sprintf("Fallback moderation performed with %s classifier (no primary classifier configured)", active.Name())
	} else if len(cands) > 0 {
		// the first candidate doubles as a probe of provider health
		v, err := eng.classifyOne(ctx, eng.Primary, cands[0])
		switch {
		case err == nil:
			verdicts[0] = v
			active = eng.Primary
		case ctx.Err() != nil:
			active = eng.Primary
		case errors.Is(err, classifier.ErrClassificationUnavailable):
			logger.Warn("primary classifier unavailable, falling back for whole batch", "classifier", eng.Primary.Name(), "err", err)
			span.AddEvent("fallback")
			res.UsedFallback = true
			res.Message = fmt.Sprintf("Fallback moderation performed with %s classifier (primary classifier unavailable)", active.Name())
		default:
			verdicts[0] = classifier.ErrorVerdict(err)
			active = eng.Primary
		}
	} else {
		active = eng.Primary
	}
	if res.Message == "" {
		res.Message = fmt.Sprintf("Content moderated using %s classifier", active.Name())
	}
	res.Classifier = active.Name()

	if ctx.Err() == nil {
		pending := make([]int, 0, len(cands))
		for i := range cands {
			if verdicts[i] == nil {
				pending = append(pending, i)
			}
		}
		eng.classifyBatch(ctx, logger, active, cands, pending, verdicts)
	}

	now := eng.now()
	res.Items = make([]ModeratedItem, 0, len(cands))
	for i, cand := range cands {
		if verdicts[i] == nil {
			res.Partial = true
			continue
		}
		item := ModeratedItem{
			Candidate:   cand,
			Verdict:     verdicts[i].Clone(),
			ProcessedAt: now,
		}
		item.SeverityScore, item.SeverityLevel = severity.Score(&item.Verdict)
		itemsProcessedCount.WithLabelValues(res.Classifier, string(item.SeverityLevel)).Inc()
		if item.Verdict.Error != nil {
			itemErrorCount.WithLabelValues(res.Classifier).Inc()
		}
		res.Items = append(res.Items, item)
	}

	switch {
	case res.Partial:
		runCount.WithLabelValues("partial").Inc()
		span.SetStatus(codes.Error, "run deadline exceeded")
		logger.Warn("run deadline exceeded, returning partial results", "completed", len(res.Items), "candidates", len(cands), "err", ctx.Err())
	case res.UsedFallback:
		runCount.WithLabelValues("fallback").Inc()
	default:
		runCount.WithLabelValues("ok").Inc()
	}
	span.SetAttributes(attribute.Bool("used_fallback", res.UsedFallback), attribute.Bool("partial", res.Partial), attribute.Int("items.count", len(res.Items)))
	logger.Info("moderation run complete", "classifier", res.Classifier, "items", len(res.Items), "dropped", len(res.Dropped), "used_fallback", res.UsedFallback, "partial", res.Partial, "duration", time.Since(start))
	return res, nil
}

type classified struct {
	idx     int
	verdict *classifier.Verdict
}

// Classifies cands[idx] for every idx in pending, with bounded concurrency.
// Failures become error verdicts. Returns early, leaving gaps in verdicts, if
// ctx expires.
func (eng *Engine) classifyBatch(ctx context.Context, logger *slog.Logger, cl classifier.Classifier, cands []content.Candidate, pending []int, verdicts []*classifier.Verdict) {
	if len(pending) == 0 {
		return
	}
	// buffered for every pending item, so workers never block on send, even after an early return
	results := make(chan classified, len(pending))
	sem := semaphore.NewWeighted(int64(eng.concurrency()))

	launched := 0
	for _, idx := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		launched++
		go func(idx int) {
			defer sem.Release(1)
			v, err := eng.classifyOne(ctx, cl, cands[idx])
			if err != nil && ctx.Err() != nil {
				// cut short by the run deadline: not computed, rather than failed
				results <- classified{idx: idx}
				return
			}
			if err != nil {
				logger.Warn("classification failed for item", "classifier", cl.Name(), "id", cands[idx].ID, "err", err)
				v = classifier.ErrorVerdict(err)
			}
			results <- classified{idx: idx, verdict: v}
		}(idx)
	}

	for i := 0; i < launched; i++ {
		select {
		case r := <-results:
			verdicts[r.idx] = r.verdict
		case <-ctx.Done():
			// drain whatever already finished, without waiting for the rest
			for {
				select {
				case r := <-results:
					verdicts[r.idx] = r.verdict
				default:
					return
				}
			}
		}
	}
}

// Runs a single classifier call, recovering panics (similar to an HTTP
// server) and rejecting verdicts which break the verdict invariants.
func (eng *Engine) classifyOne(ctx context.Context, cl classifier.Classifier, cand content.Candidate) (v *classifier.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			eng.logger().Error("classifier execution exception", "err", r, "classifier", cl.Name(), "id", cand.ID)
			v = nil
			err = &classifier.ItemError{CandidateID: cand.ID, Err: fmt.Errorf("classifier panic: %v", r)}
		}
	}()

	start := time.Now()
	v, err = cl.Classify(ctx, cand)
	classifyDuration.WithLabelValues(cl.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &classifier.ItemError{CandidateID: cand.ID, Err: fmt.Errorf("classifier returned no verdict")}
	}
	if verr := v.Validate(); verr != nil {
		return nil, &classifier.ItemError{CandidateID: cand.ID, Err: verr}
	}
	return v, nil
}

// drops pooled network connections held by classifiers, so nothing outlives a run
func (eng *Engine) releaseClassifiers() {
	for _, cl := range []classifier.Classifier{eng.Primary, eng.Fallback} {
		if c, ok := cl.(interface{ CloseIdleConnections() }); ok {
			c.CloseIdleConnections()
		}
	}
}

func (eng *Engine) logger() *slog.Logger {
	if eng.Logger == nil {
		return slog.Default()
	}
	return eng.Logger
}

func (eng *Engine) normalizer() *content.Normalizer {
	if eng.Normalizer == nil {
		return content.NewNormalizer(eng.logger())
	}
	return eng.Normalizer
}

func (eng *Engine) fallback() classifier.Classifier {
	if eng.Fallback == nil {
		return classifier.NewKeywordClassifier(nil, eng.logger())
	}
	return eng.Fallback
}

func (eng *Engine) concurrency() int {
	if eng.Config.Concurrency <= 0 {
		return DefaultEngineConfig().Concurrency
	}
	return eng.Config.Concurrency
}

func (eng *Engine) now() time.Time {
	if eng.Now == nil {
		return time.Now().UTC()
	}
	return eng.Now().UTC()
}
