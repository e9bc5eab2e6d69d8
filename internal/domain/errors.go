package domain

import "errors"

var (
	// ErrDataLoad indicates the review source could not be opened or parsed.
	// Ingestion returns an empty result alongside it.
	ErrDataLoad = errors.New("data load failed")

	// ErrConfiguration indicates a setting or required file is missing or invalid.
	// It aborts startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrRetrieval indicates the embedding or vector backend failed during a search.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrGeneration indicates the language model backend failed or timed out.
	ErrGeneration = errors.New("generation failed")

	// ErrInvalidInput indicates malformed input to an operation.
	ErrInvalidInput = errors.New("invalid input")
)
