package core

import "errors"

// Error taxonomy for the orchestration core. Callers classify failures
// with errors.Is; wrapping preserves the upstream detail.
var (
	// ErrContextUnavailable means the owning conversation (or its
	// character) could not be located. Fatal to the turn.
	ErrContextUnavailable = errors.New("conversation context unavailable")

	// ErrProviderTimeout means a model call exceeded its per-attempt
	// timeout. Recovered locally via retry, then fallback.
	ErrProviderTimeout = errors.New("model provider timed out")

	// ErrProviderUnavailable means the model backend refused or failed
	// the call. Recovered locally via retry, then fallback.
	ErrProviderUnavailable = errors.New("model provider unavailable")

	// ErrMalformedResponse means the model backend returned something
	// unusable. Not transient; goes straight to fallback.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrEmbeddingUnavailable means the embedding service failed.
	// Recovered by degrading memory features, never fatal to a turn.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrCacheUnavailable means the response cache could not be
	// reached. Recovered by bypassing the cache.
	ErrCacheUnavailable = errors.New("response cache unavailable")

	// ErrPersistenceFailure means the reply could not be saved. Fatal:
	// the turn fails even if a reply was generated.
	ErrPersistenceFailure = errors.New("message persistence failed")

	// ErrPolicyViolation is surfaced by the moderation boundary; the
	// core never generates it itself.
	ErrPolicyViolation = errors.New("content policy violation")
)
