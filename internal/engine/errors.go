package engine

import "errors"

var (
	// ErrInvalidInput marks malformed usage records (duplicate ids, negative usage, empty ids).
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientData is returned by Normalize when no record survives the usage cutoff.
	ErrInsufficientData = errors.New("insufficient data to build a profile")

	// ErrNoUsage is the pipeline-level form of ErrInsufficientData: the user exists but has no
	// qualifying engagement. It is an expected terminal state, not a failure.
	ErrNoUsage = errors.New("no qualifying usage")

	// ErrInsufficientCandidates means every target item was excluded or filtered out.
	ErrInsufficientCandidates = errors.New("no recommendable items")

	// ErrConfiguration marks request parameters that cannot be served by the loaded model.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrUnknownItem means an item id is not part of the similarity model.
	ErrUnknownItem = errors.New("item not in similarity model")
)
