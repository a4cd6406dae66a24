// Package genicam defines the camera device contract the acquisition
// adapter drives: discovery by serial number, a string-keyed feature map
// in the GenICam manner, a grab call with timeout, and a removal query.
//
// Two implementations ship with the module: a deterministic simulated
// camera for tests and demos, and a V4L2-backed device on Linux.
package genicam

import "time"

// GrabStrategy selects the driver-side queuing discipline.
type GrabStrategy int

const (
	// StrategyLatestImageOnly keeps at most one unread grab result;
	// newer frames overwrite it. Staleness is bounded to one frame and
	// the consumer's pace drives delivery.
	StrategyLatestImageOnly GrabStrategy = iota
	// StrategyOneByOne queues every frame. Not used by the bridge but
	// part of the driver contract.
	StrategyOneByOne
)

// GrabResult is the outcome of a single grab. It is created and consumed
// within one retrieval; callers must copy Data before the next grab,
// because drivers recycle the underlying buffer.
type GrabResult struct {
	// OK reports whether the grab delivered a valid frame.
	OK bool
	// ErrorDescription carries the driver's failure text when !OK.
	ErrorDescription string
	// PixelFormat is the SFNC-style name of the raw frame layout.
	PixelFormat string
	// Width and Height of the delivered frame in pixels.
	Width, Height int
	// Data is the raw frame, valid until the next retrieval.
	Data []byte
}

// FeatureMap is a string-keyed view of a device's parameters. Mirrors the
// GenICam node map: callers check availability before setting, and a set
// on an unavailable feature returns a *FeatureError.
type FeatureMap interface {
	// Available reports whether the named feature exists and is writable
	// on this device.
	Available(name string) bool
	// EnumEntryAvailable reports whether an enumeration feature offers
	// the given entry.
	EnumEntryAvailable(name, entry string) bool

	SetInt(name string, value int64) error
	SetFloat(name string, value float64) error
	SetBool(name string, value bool) error
	SetEnum(name, entry string) error

	GetInt(name string) (int64, error)
	GetFloat(name string) (float64, error)
	GetEnum(name string) (string, error)
}

// Device is an open camera. Implementations are not safe for concurrent
// use; the adapter serializes all calls on the graph's callback thread.
type Device interface {
	// Open prepares the device for feature access. Idempotent.
	Open() error
	// Close releases the hardware handle. Idempotent; it must succeed
	// even if grabbing was never stopped.
	Close() error

	// SerialNumber identifies the physical device.
	SerialNumber() string
	// DeviceClass names the transport family ("BaslerUsb", "BaslerGigE",
	// "V4L2", "Emulated"). Drives transport-specific tuning.
	DeviceClass() string

	// Features is the device node map.
	Features() FeatureMap
	// StreamFeatures is the stream grabber node map (transport tuning
	// such as queue depth). May be an empty map on devices without one.
	StreamFeatures() FeatureMap

	// StartGrabbing begins acquisition with the given strategy.
	StartGrabbing(strategy GrabStrategy) error
	// StopGrabbing halts acquisition. Safe to call when not grabbing.
	StopGrabbing() error
	// IsGrabbing reports whether acquisition is running.
	IsGrabbing() bool

	// ExecuteSoftwareTrigger fires one software trigger. Only meaningful
	// when the trigger source is set to Software.
	ExecuteSoftwareTrigger() error

	// RetrieveResult blocks until a grab result is available or the
	// timeout expires. Timeout returns ErrTimeout; a removed device
	// returns ErrRemoved. A grab that failed driver-side still returns a
	// result with OK=false and no error.
	RetrieveResult(timeout time.Duration) (*GrabResult, error)

	// IsRemoved reports whether the physical device has disappeared.
	IsRemoved() bool
}

// Provider performs device discovery.
type Provider interface {
	// FirstDevice opens the first camera found. Returns ErrNoDevice when
	// none is present.
	FirstDevice() (Device, error)
	// DeviceBySerial opens the camera with the given serial number.
	// Returns ErrNoDevice when no camera matches.
	DeviceBySerial(serial string) (Device, error)
}
