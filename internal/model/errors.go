package model

import "errors"

var (
	// ErrArtifactUnavailable means the classifier could neither be loaded nor
	// produced. The service cannot start without it.
	ErrArtifactUnavailable = errors.New("model artifacts unavailable")

	// ErrExplanationUnavailable is returned by attributors and never leaves
	// the engine; Explain falls back to rule-based features.
	ErrExplanationUnavailable = errors.New("explanation unavailable")
)
