package genicam

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevice is returned by discovery when no camera matches.
	ErrNoDevice = errors.New("genicam: no matching device found")
	// ErrTimeout is returned by RetrieveResult when no grab result
	// arrived within the timeout.
	ErrTimeout = errors.New("genicam: grab timeout")
	// ErrRemoved is returned when the physical device has disappeared.
	ErrRemoved = errors.New("genicam: device removed")
	// ErrNotGrabbing is returned by RetrieveResult when acquisition was
	// never started.
	ErrNotGrabbing = errors.New("genicam: device is not grabbing")
)

// FeatureError reports a feature access that the device rejected, for
// example setting a feature the sensor does not expose. Callers treat it
// as non-fatal: log and continue with the device default.
type FeatureError struct {
	Feature string
	Reason  string
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("genicam: feature %q: %s", e.Feature, e.Reason)
}

// IsFeatureError reports whether err is a feature-level failure that the
// caller may absorb.
func IsFeatureError(err error) bool {
	var fe *FeatureError
	return errors.As(err, &fe)
}
