// Package services holds the generation workflow: the quota-gated, retried
// call to the model, reply parsing, row normalization, and the batch loop
// that ties them to the duplicate index and the corpus store.
//
// This file centralizes the service-level error values so callers can
// classify failures with errors.Is.
package services

import "errors"

var (
	// ErrGenerationUnavailable is returned when every attempt for a batch
	// failed. It wraps the last underlying cause.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrEmptyResponse is returned when the model reply has no text to parse.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrMalformedResponse is returned when the reply is not a JSON array of
	// idea records.
	ErrMalformedResponse = errors.New("malformed model response")
)
