// Package translation implements the HTTP client for the remote translation endpoint.
// It builds one GET request per attempt, retries server-side failures with
// exponential backoff and jitter, and classifies every failure into the error
// taxonomy callers use to decide on a fallback.
package translation
