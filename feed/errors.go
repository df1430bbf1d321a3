package feed

import "errors"

var (
	// ErrInvalidConfig marks configuration rejected before any tick runs.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrArtifactExists is returned when an artifact for a batch id is already on disk.
	// It signals unclean prior state or a reused batch id and aborts the run.
	ErrArtifactExists = errors.New("artifact already exists")

	// ErrEmptyPool is returned when a sample pool would have no entries.
	ErrEmptyPool = errors.New("sample pool is empty")

	// ErrInvalidSize is returned for a non-positive batch size.
	ErrInvalidSize = errors.New("batch size must be positive")
)
