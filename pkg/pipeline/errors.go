package pipeline

import "errors"

var (
	// ErrSourceUnavailable is returned when the remote share cannot be enumerated
	ErrSourceUnavailable = errors.New("remote source unavailable")

	// ErrSessionFailure is returned when the remote session cannot be established at startup
	ErrSessionFailure = errors.New("remote session failed")

	// ErrHashFailure is returned when a file cannot be read for fingerprinting
	ErrHashFailure = errors.New("fingerprint failed")

	// ErrStagingFailure is returned when an image cannot be copied into a staging batch
	ErrStagingFailure = errors.New("staging failed")

	// ErrClassificationFailure is returned when the detector exits non-zero or cannot start
	ErrClassificationFailure = errors.New("classification failed")

	// ErrRouteFailure is returned when an image cannot be written to its archival store
	ErrRouteFailure = errors.New("route failed")

	// ErrDeleteFailure is returned when the remote source rejects a delete
	ErrDeleteFailure = errors.New("remote delete failed")
)
