// Automod component for keeping rendered moderation run results (as JSON strings) with a fixed TTL, keyed by run ID.
//
// Includes an interface and implementations using redis and in-process memory.
//
// Runs themselves are stateless; the HTTP daemon saves each response here so that clients can re-read a result without re-running classification.
package resultstore
