package pylongstreamer

import "time"

// AcquisitionMode is the effective grab pacing of a camera session,
// fixed at initialization.
type AcquisitionMode int

const (
	// ModeFreeRun lets the camera stream continuously at its configured
	// frame rate; the grab engine keeps only the freshest result.
	ModeFreeRun AcquisitionMode = iota
	// ModeOnDemand fires one software trigger immediately before each
	// retrieval, so the consumer's demand paces the sensor.
	ModeOnDemand
	// ModeHardwareTriggered exposes on an external trigger line (Line1).
	ModeHardwareTriggered
)

// String returns a human-readable mode name.
func (m AcquisitionMode) String() string {
	switch m {
	case ModeOnDemand:
		return "on-demand"
	case ModeHardwareTriggered:
		return "hardware-triggered"
	default:
		return "free-run"
	}
}

// SourceState tracks the camera session lifecycle.
type SourceState int

const (
	StateUninitialized SourceState = iota
	StateInitialized
	StateGrabbing
	StateStopped
	StateClosed
)

// String returns a human-readable state name.
func (s SourceState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateGrabbing:
		return "grabbing"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// SourceConfig configures a CameraSource.
type SourceConfig struct {
	// Serial selects a specific camera. Empty picks the first device.
	Serial string
	// Width and Height are the requested capture resolution in pixels.
	// The device may round them; the negotiated values are queryable
	// after Initialize.
	Width, Height int
	// FrameRate is the requested acquisition rate in frames per second.
	FrameRate float64
	// OnDemand enables software-triggered single-frame acquisition.
	OnDemand bool
	// Triggered enables hardware triggering on Line1. Mutually exclusive
	// with OnDemand; OnDemand takes precedence when both are set.
	Triggered bool
}

// SourceStats is a snapshot of a camera session's counters. Thread-safe
// to read at any time via CameraSource.Stats.
type SourceStats struct {
	// TraceID identifies the session across log lines.
	TraceID string
	// State is the lifecycle state at snapshot time.
	State SourceState
	// Mode is the effective acquisition mode.
	Mode AcquisitionMode
	// FramesPushed counts buffers handed to the graph entry node.
	FramesPushed uint64
	// GrabFailures counts grabs that failed sensor-side and were
	// answered with the last good frame.
	GrabFailures uint64
	// SoftwareTriggers counts triggers fired in on-demand mode.
	SoftwareTriggers uint64
	// EOSSent reports whether end-of-stream was signalled.
	EOSSent bool
	// FPSMean, FPSStdDev and FPSStable describe the measured push rate
	// over the recent window.
	FPSMean   float64
	FPSStdDev float64
	FPSStable bool
	// LastPushAt is the wall time of the most recent push.
	LastPushAt time.Time
}

// RecordConfig configures the encode-to-file branch of a graph.
type RecordConfig struct {
	// BasePath is the directory receiving video segments. Required.
	BasePath string
	// UTCOffsetHours shifts the hour in segment filenames, applied
	// mod 24. Bound per graph at build time.
	UTCOffsetHours int
	// Bitrate is the encoder target in bits per second.
	// Defaults to 10 Mbit/s.
	Bitrate uint
	// RateControl selects the encoder rate-control mode
	// (1 = constant, 2 = variable). Defaults to variable.
	RateControl int
	// SegmentDuration rotates segments on a time boundary.
	// Defaults to 5 minutes.
	SegmentDuration time.Duration
	// SegmentBytes additionally rotates segments on a size boundary.
	// Zero disables size-based rotation.
	SegmentBytes uint64
}

// withDefaults fills unset fields with the documented defaults.
func (c RecordConfig) withDefaults() RecordConfig {
	if c.Bitrate == 0 {
		c.Bitrate = 10_000_000
	}
	if c.RateControl == 0 {
		c.RateControl = 2
	}
	if c.SegmentDuration == 0 {
		c.SegmentDuration = 5 * time.Minute
	}
	return c
}

// BannerKind selects the fault message of a static error-banner graph.
type BannerKind int

const (
	BannerCameraFailure BannerKind = iota
	BannerLowPower
	BannerOverheat
	BannerRestartRequired
	BannerStorageFull
)

// String returns the banner identifier used in logs and the CLI.
func (k BannerKind) String() string {
	switch k {
	case BannerLowPower:
		return "low-power"
	case BannerOverheat:
		return "overheat"
	case BannerRestartRequired:
		return "restart-required"
	case BannerStorageFull:
		return "storage-full"
	default:
		return "camera-failure"
	}
}

// Text returns the overlay message rendered for the banner.
func (k BannerKind) Text() string {
	switch k {
	case BannerLowPower:
		return "LOW POWER - CONNECT CHARGER"
	case BannerOverheat:
		return "TEMPERATURE LIMIT - COOLING DOWN"
	case BannerRestartRequired:
		return "SYSTEM ERROR - RESTART REQUIRED"
	case BannerStorageFull:
		return "STORAGE FULL - REPLACE MEDIA"
	default:
		return "CAMERA FAILURE - CHECK CONNECTION"
	}
}
