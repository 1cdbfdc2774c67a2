package domain

import "errors"

// Typed failures surfaced by the core. Callers distinguish them with
// errors.Is rather than string matching.
var (
	// ErrEmbeddingUnavailable is returned when the embedding provider
	// exhausted its retry budget or timed out.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrProviderUnavailable is returned when a generation provider
	// exhausted its retry budget or timed out.
	ErrProviderUnavailable = errors.New("generation provider unavailable")

	// ErrUnparseableJudgment is returned when the judge response contains
	// no well-formed JSON even after a parse retry. Callers must not
	// substitute a default score.
	ErrUnparseableJudgment = errors.New("judge response unparseable")

	// ErrNoJSONFound is returned by the JSON extraction helpers when the
	// text carries no balanced JSON value.
	ErrNoJSONFound = errors.New("no JSON value found in text")

	// ErrRunNotFound is returned by repositories for unknown run IDs.
	ErrRunNotFound = errors.New("evaluation run not found")

	// ErrUnknownProvider is returned by the provider factories for
	// unregistered provider names.
	ErrUnknownProvider = errors.New("unknown provider")
)
