package media

import "errors"

// Sentinel errors for the media package.
var (
	// ErrMissingField is returned by NewSession when a required Config
	// field is empty.
	ErrMissingField = errors.New("media: required field missing")

	// ErrNoHost is logged when an event cannot be forwarded because the
	// session has no Host.
	ErrNoHost = errors.New("media: no host configured, event dropped")
)
