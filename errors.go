package pylongstreamer

import (
	"errors"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

var (
	// ErrNotInitialized is returned by Start when Initialize has not
	// succeeded.
	ErrNotInitialized = errors.New("pylon-gstreamer: camera source not initialized")
	// ErrAlreadyInitialized is returned by a repeated Initialize; the
	// session keeps its existing device handle.
	ErrAlreadyInitialized = errors.New("pylon-gstreamer: camera source already initialized")
	// ErrNotStarted is returned by RetrieveFrame when the session is not
	// grabbing.
	ErrNotStarted = errors.New("pylon-gstreamer: camera source not started")
	// ErrClosed is returned when using a closed camera source.
	ErrClosed = errors.New("pylon-gstreamer: camera source closed")
	// ErrGrabTimeout reports that no grab result arrived within the
	// retrieval timeout. Fatal to the stream.
	ErrGrabTimeout = errors.New("pylon-gstreamer: timed out waiting for grab result")
	// ErrDeviceRemoved reports that the physical camera disappeared; the
	// session degrades to end-of-stream.
	ErrDeviceRemoved = errors.New("pylon-gstreamer: camera device removed")

	// ErrAlreadyBuilt is returned when a graph is already built on the
	// pipeline. The existing graph is left untouched.
	ErrAlreadyBuilt = errors.New("pylon-gstreamer: a graph is already built on this pipeline")
	// ErrNotBuilt is returned by graph operations before any build.
	ErrNotBuilt = errors.New("pylon-gstreamer: no graph built on this pipeline")
	// ErrNoOverlay is returned by UpdateOverlayText when the built graph
	// has no text overlay node.
	ErrNoOverlay = errors.New("pylon-gstreamer: built graph has no text overlay")
)

// BusCategory classifies pipeline bus errors for telemetry.
type BusCategory int

const (
	// BusCategoryElement covers missing plugins or element factories.
	BusCategoryElement BusCategory = iota
	// BusCategoryEncoder covers encode and caps negotiation failures.
	BusCategoryEncoder
	// BusCategoryStorage covers file sink and disk failures.
	BusCategoryStorage
	// BusCategoryUnknown is everything else.
	BusCategoryUnknown
)

// String returns the category label used in logs.
func (c BusCategory) String() string {
	switch c {
	case BusCategoryElement:
		return "element"
	case BusCategoryEncoder:
		return "encoder"
	case BusCategoryStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// classifyBusError categorizes a GStreamer bus error by message
// heuristics. go-gst's GError does not expose the error domain, so
// string matching is the available signal.
func classifyBusError(gerr *gst.GError) BusCategory {
	if gerr == nil {
		return BusCategoryUnknown
	}
	combined := strings.ToLower(gerr.Error() + " " + gerr.DebugString())

	if containsAny(combined,
		"no space", "write error", "permission", "could not open",
		"location", "splitmux", "filesink",
	) {
		return BusCategoryStorage
	}
	if containsAny(combined,
		"encode", "codec", "bitrate", "negotiat", "caps", "h264", "parse",
	) {
		return BusCategoryEncoder
	}
	if containsAny(combined,
		"missing plugin", "no element", "not found", "factory",
	) {
		return BusCategoryElement
	}
	return BusCategoryUnknown
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
