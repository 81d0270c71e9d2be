package sink

import "errors"

// Sentinel errors for the sink package.
var (
	ErrMissingAPIKey   = errors.New("sink: APIKey is required")
	ErrMissingEndpoint = errors.New("sink: Endpoint is required")
	ErrMissingAppID    = errors.New("sink: AppID is required")
	ErrInvalidEndpoint = errors.New("sink: Endpoint must be a valid URL")
	ErrClosed          = errors.New("sink: closed")
)
