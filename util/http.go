package util

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type LeveledSlog struct {
	inner *slog.Logger
}

// re-writes HTTP client ERROR to WARN level (because of retries)
func (l LeveledSlog) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, keysAndValues...)
}

// re-writes HTTP client DEBUG to INFO level (this is where retry is logged)
func (l LeveledSlog) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, keysAndValues...)
}

// Generates an HTTP client with decent general-purpose defaults around
// timeouts and retries. The returned client has the stdlib http.Client
// interface, but has Hashicorp retryablehttp logic internally.
//
// This client will retry on connection errors, 5xx status (except 501), and
// 429 Backoff requests (respecting 'Retry-After' header). It will log
// intermediate failures with WARN level. This does not start from
// http.DefaultClient.
//
// Used for reading content sources. Not for the moderation provider, which
// must fail fast instead of retrying.
func RobustHTTPClient(logger *slog.Logger) *http.Client {
	return RetryingHTTPClient(logger, 3, 20*time.Second)
}

// Like RobustHTTPClient, with explicit retry count and overall timeout.
func RetryingHTTPClient(logger *slog.Logger, retryMax int, timeout time.Duration) *http.Client {
	if logger == nil {
		logger = slog.Default()
	}
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledSlog{logger.With("component", "http")})
	client := retryClient.StandardClient()
	client.Timeout = timeout
	return client
}
