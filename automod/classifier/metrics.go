package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var providerAPIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "automod_provider_api_duration_sec",
	Help: "Duration of moderation provider API calls",
})

var providerAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_provider_api_count",
	Help: "Number of moderation provider API calls, by HTTP status code (or 'error')",
}, []string{"status"})

var keywordMatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_keyword_matches",
	Help: "Number of texts flagged by the keyword classifier, by matched term",
}, []string{"term"})
