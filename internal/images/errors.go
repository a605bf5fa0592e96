package images

import "errors"

// Every error returned by Service wraps exactly one of these.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("image not found")
	ErrCorrupted           = errors.New("image data missing")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
