package pylongstreamer

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// appsrcSink adapts a GStreamer appsrc element to the frameSink contract.
// Each push copies the session buffer into a fresh gst.Buffer, so the
// adapter is free to overwrite its buffer as soon as push returns.
type appsrcSink struct {
	src *app.Source
}

func (a *appsrcSink) push(data []byte) error {
	buffer := gst.NewBufferFromBytes(data)
	if buffer == nil {
		return fmt.Errorf("failed to allocate buffer")
	}
	if ret := a.src.PushBuffer(buffer); ret != gst.FlowOK {
		return fmt.Errorf("push-buffer returned %v", ret)
	}
	return nil
}

func (a *appsrcSink) endStream() {
	a.src.EndStream()
}

// AppSrc creates the graph entry element for this source and attaches
// the need-data callback that drives the demand loop. Must be called
// after Initialize; the caps are derived from the negotiated geometry
// and the fixed output format.
//
// The returned element is owned by the caller's pipeline graph.
func (s *CameraSource) AppSrc() (*gst.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil, ErrClosed
	}
	if s.state == StateUninitialized {
		return nil, ErrNotInitialized
	}

	gst.Init(nil)

	src, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: create appsrc: %w", err)
	}

	// stream-type=0 (stream), format=3 (GST_FORMAT_TIME). Live with
	// pipeline timestamps so downstream muxers get a usable timeline.
	src.SetProperty("stream-type", 0)
	src.SetProperty("format", 3)
	src.SetProperty("is-live", true)
	src.SetProperty("do-timestamp", true)

	capsStr := s.buildCaps()
	src.SetProperty("caps", gst.NewCapsFromString(capsStr))

	src.SetCallbacks(&app.SourceCallbacks{
		NeedDataFunc: func(_ *app.Source, _ uint) {
			s.onNeedData()
		},
	})

	s.sink = &appsrcSink{src: src}

	slog.Info("pylon-gstreamer: appsrc created",
		"caps", capsStr, "trace_id", s.traceID)
	return src.Element, nil
}

// onNeedData runs on the streaming thread whenever the graph wants the
// next frame.
func (s *CameraSource) onNeedData() {
	err := s.SupplyFrame()
	switch {
	case err == nil:
	case errors.Is(err, ErrDeviceRemoved):
		// End-of-stream already signalled by SupplyFrame; the graph
		// drains and shuts down from here.
		slog.Info("pylon-gstreamer: demand loop ended, device removed",
			"trace_id", s.traceID)
	case errors.Is(err, ErrGrabTimeout):
		slog.Error("pylon-gstreamer: grab timed out, ending stream",
			"error", err, "trace_id", s.traceID)
		s.signalEOS("grab timeout")
	default:
		slog.Error("pylon-gstreamer: frame supply failed",
			"error", err, "trace_id", s.traceID)
	}
}

// buildCaps renders the fixed output caps. Caller holds s.mu.
func (s *CameraSource) buildCaps() string {
	gstFormat := "RGB"
	if s.outFormat.IsMono() {
		gstFormat = "GRAY8"
	}

	numerator, denominator := framerateFraction(s.frameRate)
	return fmt.Sprintf(
		"video/x-raw,format=%s,width=%d,height=%d,framerate=%d/%d",
		gstFormat, s.width, s.height, numerator, denominator,
	)
}

// framerateFraction renders an fps value as a caps fraction without
// truncating fractional rates:
//   - 25.0 → 25/1
//   - 0.5 → 1/2
//   - 29.97 → 2997/100 (millihertz resolution, reduced)
func framerateFraction(fps float64) (int, int) {
	if fps == math.Trunc(fps) {
		return int(fps), 1
	}
	num, den := int(math.Round(fps*1000)), 1000
	if num == 0 {
		num = 1
	}
	g := gcd(num, den)
	return num / g, den / g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// setSink swaps the graph entry, for tests that drive the demand loop
// without a GStreamer runtime.
func (s *CameraSource) setSink(sink frameSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}
