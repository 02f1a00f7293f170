package ingest

import "errors"

// Fatal job errors. A failed job's error wraps one of these and the cause.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrEncodeFailure     = errors.New("encode failure")
	ErrPublishFailure    = errors.New("publish failure")
	ErrInvalidAssetKey   = errors.New("invalid asset key")
)

// ErrSourceTooLarge is wrapped with ErrSourceUnavailable when a download
// exceeds the configured maximum source size.
var ErrSourceTooLarge = errors.New("source file exceeds maximum size")
