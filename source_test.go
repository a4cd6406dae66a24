package pylongstreamer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bryan-flywire/pylon-gstreamer/internal/genicam"
)

// fakeSink records pushes so the demand loop can be driven without a
// GStreamer runtime.
type fakeSink struct {
	pushes  [][]byte
	eos     int
	pushErr error
}

func (f *fakeSink) push(data []byte) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, append([]byte(nil), data...))
	return nil
}

func (f *fakeSink) endStream() { f.eos++ }

func newTestSource(t *testing.T, simCfg genicam.SimConfig, cfg SourceConfig) (*CameraSource, *fakeSink) {
	t.Helper()

	provider := genicam.NewSimProvider(genicam.NewSimDevice(simCfg))
	source, err := NewCameraSource(provider, cfg)
	if err != nil {
		t.Fatalf("NewCameraSource: %v", err)
	}
	if err := source.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sink := &fakeSink{}
	source.setSink(sink)
	return source, sink
}

func TestNewCameraSource_Validation(t *testing.T) {
	provider := genicam.NewSimProvider(genicam.NewSimDevice(genicam.SimConfig{}))

	tests := []struct {
		name     string
		provider genicam.Provider
		cfg      SourceConfig
		wantErr  bool
	}{
		{
			name:     "valid config",
			provider: provider,
			cfg:      SourceConfig{Width: 1920, Height: 1080, FrameRate: 25},
			wantErr:  false,
		},
		{
			name:     "nil provider",
			provider: nil,
			cfg:      SourceConfig{Width: 640, Height: 480, FrameRate: 25},
			wantErr:  true,
		},
		{
			name:     "zero width",
			provider: provider,
			cfg:      SourceConfig{Width: 0, Height: 480, FrameRate: 25},
			wantErr:  true,
		},
		{
			name:     "negative height",
			provider: provider,
			cfg:      SourceConfig{Width: 640, Height: -1, FrameRate: 25},
			wantErr:  true,
		},
		{
			name:     "zero frame rate",
			provider: provider,
			cfg:      SourceConfig{Width: 640, Height: 480, FrameRate: 0},
			wantErr:  true,
		},
		{
			name:     "absurd frame rate",
			provider: provider,
			cfg:      SourceConfig{Width: 640, Height: 480, FrameRate: 500},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCameraSource(tt.provider, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCameraSource() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInitialize_BufferSizing(t *testing.T) {
	tests := []struct {
		name        string
		pixelFormat string
		wantSize    int
		wantFormat  string
		wantColor   bool
	}{
		{
			name:        "color 1080p is RGB",
			pixelFormat: "BayerRG8",
			wantSize:    1920 * 1080 * 3,
			wantFormat:  "RGB8",
			wantColor:   true,
		},
		{
			name:        "mono 1080p stays single channel",
			pixelFormat: "Mono8",
			wantSize:    1920 * 1080,
			wantFormat:  "Mono8",
			wantColor:   false,
		},
		{
			name:        "YUY2 sensor converts to RGB",
			pixelFormat: "YUY2",
			wantSize:    1920 * 1080 * 3,
			wantFormat:  "RGB8",
			wantColor:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, _ := newTestSource(t,
				genicam.SimConfig{PixelFormat: tt.pixelFormat},
				SourceConfig{Width: 1920, Height: 1080, FrameRate: 25},
			)
			defer source.Close()

			if got := source.FrameSize(); got != tt.wantSize {
				t.Errorf("FrameSize() = %d, want %d", got, tt.wantSize)
			}
			if got := source.OutputFormat(); got != tt.wantFormat {
				t.Errorf("OutputFormat() = %q, want %q", got, tt.wantFormat)
			}
			if got := source.IsColor(); got != tt.wantColor {
				t.Errorf("IsColor() = %v, want %v", got, tt.wantColor)
			}
			if source.State() != StateInitialized {
				t.Errorf("State() = %v, want %v", source.State(), StateInitialized)
			}
		})
	}
}

func TestInitialize_OnDemandWinsOverTriggered(t *testing.T) {
	source, _ := newTestSource(t,
		genicam.SimConfig{},
		SourceConfig{Width: 640, Height: 480, FrameRate: 25, OnDemand: true, Triggered: true},
	)
	defer source.Close()

	if got := source.Mode(); got != ModeOnDemand {
		t.Errorf("Mode() = %v, want %v", got, ModeOnDemand)
	}
}

func TestInitialize_FreeRunFallback(t *testing.T) {
	tests := []struct {
		name   string
		simCfg genicam.SimConfig
	}{
		{"no trigger support at all", genicam.SimConfig{NoTriggerSupport: true}},
		{"no FrameStart entry", genicam.SimConfig{NoFrameStart: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, _ := newTestSource(t, tt.simCfg,
				SourceConfig{Width: 640, Height: 480, FrameRate: 25, OnDemand: true},
			)
			defer source.Close()

			if got := source.Mode(); got != ModeFreeRun {
				t.Errorf("Mode() = %v, want %v", got, ModeFreeRun)
			}
		})
	}
}

func TestSupplyFrame_PushesFrames(t *testing.T) {
	source, sink := newTestSource(t,
		genicam.SimConfig{},
		SourceConfig{Width: 640, Height: 480, FrameRate: 25},
	)
	defer source.Close()

	if err := source.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := source.SupplyFrame(); err != nil {
			t.Fatalf("SupplyFrame #%d: %v", i, err)
		}
	}

	if len(sink.pushes) != 10 {
		t.Fatalf("got %d pushes, want 10", len(sink.pushes))
	}
	for i, data := range sink.pushes {
		if len(data) != source.FrameSize() {
			t.Errorf("push %d: %d bytes, want %d", i, len(data), source.FrameSize())
		}
	}

	stats := source.Stats()
	if stats.FramesPushed != 10 {
		t.Errorf("FramesPushed = %d, want 10", stats.FramesPushed)
	}
	if stats.GrabFailures != 0 {
		t.Errorf("GrabFailures = %d, want 0", stats.GrabFailures)
	}
}

func TestSupplyFrame_LastGoodFrameOnGrabFailure(t *testing.T) {
	source, sink := newTestSource(t,
		genicam.SimConfig{FailEveryNth: 2},
		SourceConfig{Width: 640, Height: 480, FrameRate: 25},
	)
	defer source.Close()

	if err := source.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// First grab succeeds, second fails sensor-side.
	if err := source.SupplyFrame(); err != nil {
		t.Fatalf("SupplyFrame #0: %v", err)
	}
	if err := source.SupplyFrame(); err != nil {
		t.Fatalf("SupplyFrame #1: %v", err)
	}

	if len(sink.pushes) != 2 {
		t.Fatalf("got %d pushes, want 2", len(sink.pushes))
	}
	if !bytes.Equal(sink.pushes[0], sink.pushes[1]) {
		t.Error("failed grab did not repeat the last good frame")
	}

	stats := source.Stats()
	if stats.GrabFailures != 1 {
		t.Errorf("GrabFailures = %d, want 1", stats.GrabFailures)
	}
	if stats.FramesPushed != 2 {
		t.Errorf("FramesPushed = %d, want 2", stats.FramesPushed)
	}
}

func TestSupplyFrame_DeviceRemoved(t *testing.T) {
	source, sink := newTestSource(t,
		genicam.SimConfig{RemoveAfter: 2},
		SourceConfig{Width: 640, Height: 480, FrameRate: 25},
	)
	defer source.Close()

	if err := source.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := source.SupplyFrame(); err != nil {
		t.Fatalf("SupplyFrame #0: %v", err)
	}
	if err := source.SupplyFrame(); err != nil {
		t.Fatalf("SupplyFrame #1: %v", err)
	}

	// Third retrieval observes the removal.
	if err := source.SupplyFrame(); !errors.Is(err, ErrDeviceRemoved) {
		t.Fatalf("SupplyFrame #2 error = %v, want ErrDeviceRemoved", err)
	}
	if sink.eos != 1 {
		t.Fatalf("eos signalled %d times, want 1", sink.eos)
	}

	// Further demand fails fast without pushing or re-signalling.
	if err := source.SupplyFrame(); !errors.Is(err, ErrDeviceRemoved) {
		t.Fatalf("SupplyFrame #3 error = %v, want ErrDeviceRemoved", err)
	}
	if sink.eos != 1 {
		t.Errorf("eos signalled %d times after removal, want 1", sink.eos)
	}
	if len(sink.pushes) != 2 {
		t.Errorf("got %d pushes, want 2", len(sink.pushes))
	}

	if !source.Stats().EOSSent {
		t.Error("Stats().EOSSent = false, want true")
	}
}

func TestOnDemand_FiresSoftwareTriggers(t *testing.T) {
	source, sink := newTestSource(t,
		genicam.SimConfig{},
		SourceConfig{Width: 640, Height: 480, FrameRate: 25, OnDemand: true},
	)
	defer source.Close()

	if err := source.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := source.SupplyFrame(); err != nil {
			t.Fatalf("SupplyFrame #%d: %v", i, err)
		}
	}

	stats := source.Stats()
	if stats.SoftwareTriggers != 3 {
		t.Errorf("SoftwareTriggers = %d, want 3", stats.SoftwareTriggers)
	}
	if len(sink.pushes) != 3 {
		t.Errorf("got %d pushes, want 3", len(sink.pushes))
	}
}

func TestLifecycleGuards(t *testing.T) {
	provider := genicam.NewSimProvider(genicam.NewSimDevice(genicam.SimConfig{}))
	source, err := NewCameraSource(provider, SourceConfig{Width: 640, Height: 480, FrameRate: 25})
	if err != nil {
		t.Fatalf("NewCameraSource: %v", err)
	}

	if err := source.Start(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Start before Initialize error = %v, want ErrNotInitialized", err)
	}
	if err := source.RetrieveFrame(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("RetrieveFrame before Start error = %v, want ErrNotStarted", err)
	}

	if err := source.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := source.RetrieveFrame(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("RetrieveFrame before Start error = %v, want ErrNotStarted", err)
	}

	if err := source.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := source.Close(); err != nil {
		t.Errorf("second Close error = %v, want nil", err)
	}
	if err := source.Initialize(); !errors.Is(err, ErrClosed) {
		t.Errorf("Initialize after Close error = %v, want ErrClosed", err)
	}
	if err := source.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close error = %v, want ErrClosed", err)
	}
}

func TestStop_Idempotent(t *testing.T) {
	source, _ := newTestSource(t,
		genicam.SimConfig{},
		SourceConfig{Width: 640, Height: 480, FrameRate: 25},
	)
	defer source.Close()

	if err := source.Stop(); err != nil {
		t.Errorf("Stop before Start error = %v, want nil", err)
	}

	if err := source.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := source.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := source.Stop(); err != nil {
		t.Errorf("second Stop error = %v, want nil", err)
	}
	if got := source.State(); got != StateStopped {
		t.Errorf("State() = %v, want %v", got, StateStopped)
	}

	// A stopped session can start again.
	if err := source.Start(); err != nil {
		t.Errorf("restart error = %v, want nil", err)
	}
}

func TestTransportTuning_USB2Cap(t *testing.T) {
	dev := genicam.NewSimDevice(genicam.SimConfig{Class: "BaslerUsb"})
	dev.Features().SetEnum("BslUSBSpeedMode", "HighSpeed")

	source, err := NewCameraSource(genicam.NewSimProvider(dev),
		SourceConfig{Width: 640, Height: 480, FrameRate: 25})
	if err != nil {
		t.Fatalf("NewCameraSource: %v", err)
	}
	if err := source.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer source.Close()

	if mode, _ := dev.Features().GetEnum("DeviceLinkThroughputLimitMode"); mode != "On" {
		t.Errorf("DeviceLinkThroughputLimitMode = %q, want On", mode)
	}
	if limit, _ := dev.Features().GetInt("DeviceLinkThroughputLimit"); limit != 24_000_000 {
		t.Errorf("DeviceLinkThroughputLimit = %d, want 24000000", limit)
	}
	if urbs, _ := dev.StreamFeatures().GetInt("NumMaxQueuedUrbs"); urbs != 100 {
		t.Errorf("NumMaxQueuedUrbs = %d, want 100", urbs)
	}
}

func TestInitialize_DeviceRoundsGeometry(t *testing.T) {
	// A sensor that cannot do the requested size answers every geometry
	// set with its own fixed resolution. The buffer and converter must
	// follow the device's view, not the request, or every frame would
	// be rejected as mis-sized.
	source, sink := newTestSource(t,
		genicam.SimConfig{RoundWidth: 640, RoundHeight: 480},
		SourceConfig{Width: 1920, Height: 1080, FrameRate: 25},
	)
	defer source.Close()

	if got := source.Width(); got != 640 {
		t.Errorf("Width() = %d, want rounded 640", got)
	}
	if got := source.Height(); got != 480 {
		t.Errorf("Height() = %d, want rounded 480", got)
	}
	if got := source.FrameSize(); got != 640*480*3 {
		t.Errorf("FrameSize() = %d, want %d", got, 640*480*3)
	}

	if err := source.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := source.SupplyFrame(); err != nil {
			t.Fatalf("SupplyFrame #%d: %v", i, err)
		}
	}

	if got := source.Stats().GrabFailures; got != 0 {
		t.Errorf("GrabFailures = %d, want 0 (frames must match the rounded geometry)", got)
	}
	if len(sink.pushes) != 3 {
		t.Fatalf("got %d pushes, want 3", len(sink.pushes))
	}
	for i, data := range sink.pushes {
		if len(data) != 640*480*3 {
			t.Errorf("push %d: %d bytes, want %d", i, len(data), 640*480*3)
		}
	}
}

func TestRetrieveFrame_TimeoutIsFatal(t *testing.T) {
	// A broken trigger line means no frame ever arrives: the retrieval
	// times out and the stream must end rather than freeze.
	source, sink := newTestSource(t,
		genicam.SimConfig{FailTrigger: true},
		SourceConfig{Width: 640, Height: 480, FrameRate: 25, OnDemand: true},
	)
	defer source.Close()

	if err := source.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := source.RetrieveFrame(); !errors.Is(err, ErrGrabTimeout) {
		t.Fatalf("RetrieveFrame error = %v, want ErrGrabTimeout", err)
	}

	// The demand loop turns the timeout into a single end-of-stream.
	source.onNeedData()
	if sink.eos != 1 {
		t.Fatalf("eos signalled %d times, want 1", sink.eos)
	}
	source.onNeedData()
	if sink.eos != 1 {
		t.Errorf("eos signalled %d times after stream ended, want 1", sink.eos)
	}
	if len(sink.pushes) != 0 {
		t.Errorf("got %d pushes, want 0", len(sink.pushes))
	}
	if !source.Stats().EOSSent {
		t.Error("Stats().EOSSent = false, want true")
	}
}

func TestInitialize_SecondCallRejected(t *testing.T) {
	source, _ := newTestSource(t,
		genicam.SimConfig{},
		SourceConfig{Width: 640, Height: 480, FrameRate: 25},
	)
	defer source.Close()

	if err := source.Initialize(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Initialize error = %v, want ErrAlreadyInitialized", err)
	}

	// The open session is untouched and still usable.
	if err := source.Start(); err != nil {
		t.Fatalf("Start after rejected re-init: %v", err)
	}
	if err := source.Initialize(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("Initialize while grabbing error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestFramerateFraction(t *testing.T) {
	tests := []struct {
		fps     float64
		wantNum int
		wantDen int
	}{
		{25.0, 25, 1},
		{1.0, 1, 1},
		{0.5, 1, 2},
		{0.4, 2, 5},
		{29.97, 2997, 100},
		{23.976, 2997, 125},
	}

	for _, tt := range tests {
		num, den := framerateFraction(tt.fps)
		if num != tt.wantNum || den != tt.wantDen {
			t.Errorf("framerateFraction(%v) = %d/%d, want %d/%d",
				tt.fps, num, den, tt.wantNum, tt.wantDen)
		}
	}
}

func TestDiscovery_BySerial(t *testing.T) {
	a := genicam.NewSimDevice(genicam.SimConfig{Serial: "cam-a"})
	b := genicam.NewSimDevice(genicam.SimConfig{Serial: "cam-b"})
	provider := genicam.NewSimProvider(a, b)

	source, err := NewCameraSource(provider, SourceConfig{
		Serial: "cam-b", Width: 640, Height: 480, FrameRate: 25,
	})
	if err != nil {
		t.Fatalf("NewCameraSource: %v", err)
	}
	if err := source.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer source.Close()

	missing, err := NewCameraSource(provider, SourceConfig{
		Serial: "cam-z", Width: 640, Height: 480, FrameRate: 25,
	})
	if err != nil {
		t.Fatalf("NewCameraSource: %v", err)
	}
	if err := missing.Initialize(); !errors.Is(err, genicam.ErrNoDevice) {
		t.Errorf("Initialize with unknown serial error = %v, want ErrNoDevice", err)
	}
}
