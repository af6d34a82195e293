package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "automod_run_duration_sec",
	Help: "Total duration of moderation pipeline runs",
})

var runCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_runs",
	Help: "Number of moderation pipeline runs, by outcome",
}, []string{"outcome"})

var itemsProcessedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_items_processed",
	Help: "Number of content items moderated, by classifier and severity level",
}, []string{"classifier", "level"})

var itemErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_item_errors",
	Help: "Number of content items whose classification failed and carry an error",
}, []string{"classifier"})

var normalizationDroppedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_normalization_dropped",
	Help: "Number of raw content items dropped during normalization",
})

var classifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "automod_classify_duration_sec",
	Help: "Duration of single-item classification calls",
}, []string{"classifier"})
