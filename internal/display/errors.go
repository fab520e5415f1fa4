package display

import "errors"

var (
	// ErrNoState is returned by push-driven sources before the first report.
	ErrNoState = errors.New("display: no state reported yet")

	// ErrInvalidPayload is returned for a state message that cannot be decoded.
	ErrInvalidPayload = errors.New("display: invalid state payload")

	// ErrUnavailable is returned when the DRM class directory cannot be read.
	ErrUnavailable = errors.New("display: drm unavailable")
)
