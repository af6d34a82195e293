// Content moderation pipeline for user generated posts and strides.
//
// This package (`github.com/stride-social/modpipe/automod`) re-exports the main types of the pipeline. Raw content records from a source are normalized in to candidates, classified by an external moderation provider (or, when the provider is down, by a local keyword denylist), and scored for severity. Results keep input order and are rendered as a JSON envelope for API consumers.
//
// Sub-packages hold the parts: `content` (normalization), `classifier`, `severity`, `source`, `engine` (orchestration and the response envelope), and `resultstore`. See `cmd/modpipe` for a daemon and CLI built on this package.
package automod
