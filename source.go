package pylongstreamer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryan-flywire/pylon-gstreamer/internal/genicam"
	"github.com/bryan-flywire/pylon-gstreamer/internal/pixel"
	"github.com/google/uuid"
)

// grabTimeout bounds a single retrieval. Expiry is fatal to the stream.
const grabTimeout = 5 * time.Second

// fpsWindow is how many recent push timestamps feed the FPS statistics.
const fpsWindow = 120

// frameSink is the graph entry node from the adapter's point of view:
// a push accepting one frame, and an end-of-stream signal. The appsrc
// implementation lives in source_appsrc.go; tests inject their own.
type frameSink interface {
	push(data []byte) error
	endStream()
}

// CameraSource owns one camera and supplies frames to a pipeline graph
// on demand.
//
// One reusable frame buffer exists per session. Every successful grab
// overwrites it in place; a failed grab leaves the previous content
// untouched and the stale frame is pushed anyway ("last-good-frame
// fallback"), so a single sensor hiccup never stalls the graph. The push
// copies the buffer, which is the only hand-off boundary.
//
// RetrieveFrame and SupplyFrame are not safe for concurrent use; the
// graph's serialized need-data callbacks are the only intended caller.
// Lifecycle methods and Stats are safe from any goroutine.
type CameraSource struct {
	cfg      SourceConfig
	provider genicam.Provider
	traceID  string

	mu    sync.Mutex
	state SourceState
	dev   genicam.Device
	mode  AcquisitionMode

	isColor   bool
	conv      pixel.Converter
	outFormat pixel.Format
	frame     []byte
	width     int
	height    int
	frameRate float64

	sink frameSink

	eosSent          atomic.Bool
	framesPushed     atomic.Uint64
	grabFailures     atomic.Uint64
	softwareTriggers atomic.Uint64

	pushMu     sync.Mutex
	pushTimes  []time.Time
	lastPushAt time.Time
}

// NewCameraSource creates a session over the given device provider.
// Configuration is validated fail-fast; the camera itself is not touched
// until Initialize.
func NewCameraSource(provider genicam.Provider, cfg SourceConfig) (*CameraSource, error) {
	if provider == nil {
		return nil, fmt.Errorf("pylon-gstreamer: device provider is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("pylon-gstreamer: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FrameRate <= 0 || cfg.FrameRate > 240 {
		return nil, fmt.Errorf("pylon-gstreamer: invalid frame rate %.2f (must be 0-240)", cfg.FrameRate)
	}

	s := &CameraSource{
		cfg:      cfg,
		provider: provider,
		traceID:  uuid.New().String(),
		state:    StateUninitialized,
	}

	slog.Info("pylon-gstreamer: camera source created",
		"serial", cfg.Serial,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"frame_rate", cfg.FrameRate,
		"on_demand", cfg.OnDemand,
		"triggered", cfg.Triggered,
		"trace_id", s.traceID,
	)
	return s, nil
}

// Initialize discovers and opens the camera, applies capture settings,
// fixes the output pixel format and allocates the frame buffer.
//
// Missing optional features are logged and skipped; discovery failure or
// an unusable sensor format is fatal. On-demand and hardware triggering
// are mutually exclusive: on-demand silently wins when both are set.
// Initialize runs once per session; a repeated call returns
// ErrAlreadyInitialized and leaves the open device untouched.
func (s *CameraSource) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrClosed
	}
	if s.state != StateUninitialized {
		return ErrAlreadyInitialized
	}

	onDemand, triggered := s.cfg.OnDemand, s.cfg.Triggered
	if onDemand && triggered {
		slog.Warn("pylon-gstreamer: on-demand and hardware trigger both requested, using on-demand only",
			"trace_id", s.traceID)
		triggered = false
	}

	dev, err := s.discover()
	if err != nil {
		return fmt.Errorf("pylon-gstreamer: device discovery: %w", err)
	}
	if err := dev.Open(); err != nil {
		return fmt.Errorf("pylon-gstreamer: open device %s: %w", dev.SerialNumber(), err)
	}

	f := dev.Features()

	// Frame rate only applies when the camera paces itself. The feature
	// name differs across device generations (Abs vs SFNC3), so both
	// spellings are attempted.
	if !triggered {
		s.applyBool(f, "AcquisitionFrameRateEnable", true)
		s.applyFloat(f, "AcquisitionFrameRateAbs", s.cfg.FrameRate)
		s.applyFloat(f, "AcquisitionFrameRate", s.cfg.FrameRate)
	}

	s.applyInt(f, "Width", int64(s.cfg.Width))
	s.applyInt(f, "Height", int64(s.cfg.Height))
	s.applyBool(f, "CenterX", true)
	s.applyBool(f, "CenterY", true)

	onDemand, triggered = s.configureTrigger(f, onDemand, triggered)
	s.tuneTransport(dev)

	// The sensor's current pixel format decides color vs mono and the
	// conversion path; both are fixed for the whole session here.
	rawName, err := f.GetEnum("PixelFormat")
	if err != nil {
		return fmt.Errorf("pylon-gstreamer: query pixel format: %w", err)
	}
	rawFormat, err := pixel.ParseFormat(rawName)
	if err != nil {
		return fmt.Errorf("pylon-gstreamer: unusable sensor format: %w", err)
	}
	s.isColor = !rawFormat.IsMono()

	// Read the geometry back: the device may have rounded the request
	// to its increment constraints.
	s.width = s.readBackInt(f, "Width", s.cfg.Width)
	s.height = s.readBackInt(f, "Height", s.cfg.Height)
	s.frameRate = s.readBackRate(f)

	conv, err := pixel.NewConverter(rawFormat, s.width, s.height)
	if err != nil {
		return fmt.Errorf("pylon-gstreamer: select converter: %w", err)
	}
	s.conv = conv
	s.outFormat = conv.DstFormat()

	// The single reusable buffer. Allocated blank so the very first push
	// has valid (if empty) content even if the first grab cannot be
	// supplied, e.g. a missing trigger signal.
	s.frame = make([]byte, conv.DstSize())

	s.dev = dev
	switch {
	case onDemand:
		s.mode = ModeOnDemand
	case triggered:
		s.mode = ModeHardwareTriggered
	default:
		s.mode = ModeFreeRun
	}
	s.state = StateInitialized
	s.eosSent.Store(false)

	slog.Info("pylon-gstreamer: camera initialized",
		"serial", dev.SerialNumber(),
		"device_class", dev.DeviceClass(),
		"resolution", fmt.Sprintf("%dx%d", s.width, s.height),
		"frame_rate", s.frameRate,
		"raw_format", rawFormat.String(),
		"output_format", s.outFormat.String(),
		"mode", s.mode.String(),
		"buffer_bytes", len(s.frame),
		"trace_id", s.traceID,
	)
	return nil
}

func (s *CameraSource) discover() (genicam.Device, error) {
	if s.cfg.Serial == "" {
		return s.provider.FirstDevice()
	}
	return s.provider.DeviceBySerial(s.cfg.Serial)
}

// configureTrigger walks the trigger selector entries across the device
// family naming variants. Returns the effective (onDemand, triggered)
// pair; both false means free-run fallback.
func (s *CameraSource) configureTrigger(f genicam.FeatureMap, onDemand, triggered bool) (bool, bool) {
	if !onDemand && !triggered {
		return false, false
	}
	if !f.Available("TriggerSelector") {
		slog.Warn("pylon-gstreamer: triggering not available, continuing in free-run mode",
			"trace_id", s.traceID)
		return false, false
	}

	// Older device families expose AcquisitionStart, SFNC3 families
	// FrameBurstStart; both must be switched off so only FrameStart
	// gates frames.
	for _, entry := range []string{"AcquisitionStart", "FrameBurstStart"} {
		if f.EnumEntryAvailable("TriggerSelector", entry) {
			s.applyEnum(f, "TriggerSelector", entry)
			s.applyEnum(f, "TriggerMode", "Off")
		}
	}

	if !f.EnumEntryAvailable("TriggerSelector", "FrameStart") {
		slog.Warn("pylon-gstreamer: FrameStart trigger not available, continuing in free-run mode",
			"trace_id", s.traceID)
		return false, false
	}

	s.applyEnum(f, "TriggerSelector", "FrameStart")
	s.applyEnum(f, "TriggerMode", "On")
	if onDemand {
		s.applyEnum(f, "TriggerSource", "Software")
	} else {
		s.applyEnum(f, "TriggerSource", "Line1")
	}
	return onDemand, triggered
}

// tuneTransport applies device-class specific throughput settings.
func (s *CameraSource) tuneTransport(dev genicam.Device) {
	f := dev.Features()
	switch dev.DeviceClass() {
	case "BaslerUsb":
		s.applyInt(dev.StreamFeatures(), "NumMaxQueuedUrbs", 100)
		// A camera enumerated at USB2 speed cannot sustain full
		// bandwidth; cap it to a known-stable 24 MB/s.
		if speed, err := f.GetEnum("BslUSBSpeedMode"); err == nil && speed == "HighSpeed" {
			s.applyEnum(f, "DeviceLinkThroughputLimitMode", "On")
			s.applyInt(f, "DeviceLinkThroughputLimit", 24_000_000)
			slog.Info("pylon-gstreamer: USB2 link detected, bandwidth capped",
				"limit_bytes_per_sec", 24_000_000, "trace_id", s.traceID)
		}
	case "BaslerGigE":
		s.applyInt(f, "GevSCPSPacketSize", 1500)
	}
}

// Start begins free-running acquisition with the latest-image-only
// strategy: the driver keeps at most one pending grab result and
// overwrites it when a newer frame arrives, so staleness is bounded to
// one frame and the consumer's pace drives delivery.
func (s *CameraSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateInitialized, StateStopped:
	default:
		if s.state == StateGrabbing {
			return nil
		}
		return ErrNotInitialized
	}

	if err := s.dev.StartGrabbing(genicam.StrategyLatestImageOnly); err != nil {
		return fmt.Errorf("pylon-gstreamer: start grabbing: %w", err)
	}
	s.state = StateGrabbing

	if s.mode == ModeHardwareTriggered {
		slog.Info("pylon-gstreamer: camera waiting for hardware trigger on Line1",
			"trace_id", s.traceID)
	}
	slog.Info("pylon-gstreamer: acquisition started",
		"mode", s.mode.String(), "trace_id", s.traceID)
	return nil
}

// RetrieveFrame pulls the newest grab result into the frame buffer.
//
// In on-demand mode a software trigger is fired first. The call blocks
// up to grabTimeout; expiry returns ErrGrabTimeout and the stream is
// considered broken. A grab that failed sensor-side is absorbed: the
// failure is logged, the previous buffer content stays, and the call
// still succeeds so the stale frame gets pushed.
func (s *CameraSource) RetrieveFrame() error {
	s.mu.Lock()
	dev, conv, state := s.dev, s.conv, s.state
	onDemand := s.mode == ModeOnDemand
	s.mu.Unlock()

	if state != StateGrabbing {
		return ErrNotStarted
	}

	if onDemand {
		s.softwareTriggers.Add(1)
		if err := dev.ExecuteSoftwareTrigger(); err != nil {
			slog.Warn("pylon-gstreamer: software trigger failed",
				"error", err, "trace_id", s.traceID)
		}
	}

	res, err := dev.RetrieveResult(grabTimeout)
	switch {
	case errors.Is(err, genicam.ErrTimeout):
		return fmt.Errorf("%w after %s", ErrGrabTimeout, grabTimeout)
	case errors.Is(err, genicam.ErrRemoved):
		return fmt.Errorf("%w: during retrieval", ErrDeviceRemoved)
	case err != nil:
		return fmt.Errorf("pylon-gstreamer: retrieve result: %w", err)
	}

	if !res.OK {
		// Last-good-frame fallback: keep the previous content and let
		// the caller push it, trading freshness for continuity.
		s.grabFailures.Add(1)
		slog.Warn("pylon-gstreamer: grab failed, pushing last good frame",
			"error", res.ErrorDescription,
			"grab_failures", s.grabFailures.Load(),
			"trace_id", s.traceID)
		return nil
	}

	if len(res.Data) != conv.SrcSize() {
		s.grabFailures.Add(1)
		slog.Warn("pylon-gstreamer: grab delivered unexpected frame size, pushing last good frame",
			"got_bytes", len(res.Data),
			"want_bytes", conv.SrcSize(),
			"trace_id", s.traceID)
		return nil
	}

	if err := conv.Convert(s.frame, res.Data); err != nil {
		s.grabFailures.Add(1)
		slog.Warn("pylon-gstreamer: frame conversion failed, pushing last good frame",
			"error", err, "trace_id", s.traceID)
	}
	return nil
}

// SupplyFrame is one demand cycle: check the device is still attached,
// retrieve the newest frame and push the buffer into the graph entry.
// A removed device signals end-of-stream exactly once and every later
// call fails with ErrDeviceRemoved without pushing.
func (s *CameraSource) SupplyFrame() error {
	if s.eosSent.Load() {
		return ErrDeviceRemoved
	}

	s.mu.Lock()
	dev, sink := s.dev, s.sink
	s.mu.Unlock()

	if sink == nil {
		return fmt.Errorf("pylon-gstreamer: no graph entry attached, call AppSrc first")
	}
	if dev != nil && dev.IsRemoved() {
		s.signalEOS("device removed")
		return fmt.Errorf("%w: before push", ErrDeviceRemoved)
	}

	if err := s.RetrieveFrame(); err != nil {
		if errors.Is(err, ErrDeviceRemoved) {
			s.signalEOS("device removed during retrieval")
		}
		return err
	}

	if err := sink.push(s.frame); err != nil {
		return fmt.Errorf("pylon-gstreamer: push frame: %w", err)
	}

	s.framesPushed.Add(1)
	s.recordPush(time.Now())
	return nil
}

// signalEOS sends end-of-stream through the entry node exactly once.
func (s *CameraSource) signalEOS(reason string) {
	if !s.eosSent.CompareAndSwap(false, true) {
		return
	}
	slog.Info("pylon-gstreamer: signalling end-of-stream",
		"reason", reason,
		"frames_pushed", s.framesPushed.Load(),
		"trace_id", s.traceID)
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.endStream()
	}
}

// Stop halts acquisition. Safe to call before Start and repeatedly.
func (s *CameraSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateGrabbing {
		slog.Debug("pylon-gstreamer: stop with no acquisition running",
			"state", s.state.String(), "trace_id", s.traceID)
		return nil
	}
	if err := s.dev.StopGrabbing(); err != nil {
		return fmt.Errorf("pylon-gstreamer: stop grabbing: %w", err)
	}
	s.state = StateStopped
	slog.Info("pylon-gstreamer: acquisition stopped",
		"frames_pushed", s.framesPushed.Load(), "trace_id", s.traceID)
	return nil
}

// Close releases the camera. Idempotent; the hardware handle is released
// exactly once even if grabbing was never stopped cleanly.
func (s *CameraSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed

	if s.dev == nil {
		return nil
	}
	if s.dev.IsGrabbing() {
		if err := s.dev.StopGrabbing(); err != nil {
			slog.Warn("pylon-gstreamer: stop during close failed",
				"error", err, "trace_id", s.traceID)
		}
	}
	err := s.dev.Close()
	s.dev = nil
	if err != nil {
		return fmt.Errorf("pylon-gstreamer: close device: %w", err)
	}
	slog.Info("pylon-gstreamer: camera closed", "trace_id", s.traceID)
	return nil
}

// Mode returns the effective acquisition mode fixed at Initialize.
func (s *CameraSource) Mode() AcquisitionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// State returns the current lifecycle state.
func (s *CameraSource) State() SourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsColor reports whether the sensor was detected as color.
func (s *CameraSource) IsColor() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isColor
}

// Width and Height return the negotiated capture geometry.
func (s *CameraSource) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width
}

func (s *CameraSource) Height() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

// FrameRate returns the resulting acquisition rate reported by the
// device, or the requested rate when the device does not report one.
func (s *CameraSource) FrameRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameRate
}

// FrameSize returns the byte size of the session's frame buffer.
func (s *CameraSource) FrameSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frame)
}

// OutputFormat returns the fixed output format name ("RGB8" or "Mono8").
func (s *CameraSource) OutputFormat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outFormat.String()
}

// Stats returns a snapshot of session counters and measured push rate.
func (s *CameraSource) Stats() SourceStats {
	s.mu.Lock()
	state, mode := s.state, s.mode
	s.mu.Unlock()

	s.pushMu.Lock()
	times := append([]time.Time(nil), s.pushTimes...)
	last := s.lastPushAt
	s.pushMu.Unlock()

	fps := calculatePushRate(times)

	return SourceStats{
		TraceID:          s.traceID,
		State:            state,
		Mode:             mode,
		FramesPushed:     s.framesPushed.Load(),
		GrabFailures:     s.grabFailures.Load(),
		SoftwareTriggers: s.softwareTriggers.Load(),
		EOSSent:          s.eosSent.Load(),
		FPSMean:          fps.mean,
		FPSStdDev:        fps.stdDev,
		FPSStable:        fps.stable,
		LastPushAt:       last,
	}
}

func (s *CameraSource) recordPush(t time.Time) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	s.lastPushAt = t
	s.pushTimes = append(s.pushTimes, t)
	if len(s.pushTimes) > fpsWindow {
		s.pushTimes = s.pushTimes[len(s.pushTimes)-fpsWindow:]
	}
}

func (s *CameraSource) applyInt(f genicam.FeatureMap, name string, v int64) {
	if !f.Available(name) {
		return
	}
	if err := f.SetInt(name, v); err != nil {
		s.logSkippedFeature(name, err)
	}
}

func (s *CameraSource) applyFloat(f genicam.FeatureMap, name string, v float64) {
	if !f.Available(name) {
		return
	}
	if err := f.SetFloat(name, v); err != nil {
		s.logSkippedFeature(name, err)
	}
}

func (s *CameraSource) applyBool(f genicam.FeatureMap, name string, v bool) {
	if !f.Available(name) {
		return
	}
	if err := f.SetBool(name, v); err != nil {
		s.logSkippedFeature(name, err)
	}
}

func (s *CameraSource) applyEnum(f genicam.FeatureMap, name, entry string) {
	if !f.Available(name) {
		return
	}
	if err := f.SetEnum(name, entry); err != nil {
		s.logSkippedFeature(name, err)
	}
}

func (s *CameraSource) logSkippedFeature(name string, err error) {
	slog.Warn("pylon-gstreamer: optional feature skipped",
		"feature", name, "error", err, "trace_id", s.traceID)
}

func (s *CameraSource) readBackInt(f genicam.FeatureMap, name string, fallback int) int {
	if v, err := f.GetInt(name); err == nil {
		return int(v)
	}
	return fallback
}

func (s *CameraSource) readBackRate(f genicam.FeatureMap) float64 {
	// Older families report ResultingFrameRateAbs, SFNC3 families
	// ResultingFrameRate.
	for _, name := range []string{"ResultingFrameRateAbs", "ResultingFrameRate"} {
		if v, err := f.GetFloat(name); err == nil {
			return v
		}
	}
	return s.cfg.FrameRate
}
