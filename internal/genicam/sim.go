package genicam

import (
	"fmt"
	"sync"
	"time"
)

// SimConfig configures a simulated camera. The zero value yields a color
// BayerRG8 device with full trigger support and no fault injection.
type SimConfig struct {
	// Serial is the device serial number. Defaults to "sim-0".
	Serial string
	// Class is the reported device class. Defaults to "Emulated"; set
	// "BaslerUsb" or "BaslerGigE" to exercise transport tuning paths.
	Class string
	// PixelFormat is the raw frame layout the sensor produces.
	// Defaults to "BayerRG8". Use "Mono8" for a mono sensor.
	PixelFormat string

	// NoTriggerSupport removes the TriggerSelector feature entirely.
	NoTriggerSupport bool
	// NoFrameStart keeps triggering but removes the FrameStart entry,
	// forcing the free-run fallback.
	NoFrameStart bool
	// NoFrameRateFeatures removes the acquisition frame rate features.
	NoFrameRateFeatures bool

	// RoundWidth and RoundHeight, when nonzero, emulate driver geometry
	// rounding: any requested Width or Height is replaced by these
	// values on set, as a sensor with a fixed or incremented geometry
	// would do.
	RoundWidth, RoundHeight int

	// FailTrigger makes ExecuteSoftwareTrigger fail without queuing a
	// trigger, so a software-triggered retrieval times out.
	FailTrigger bool

	// FailEveryNth makes every Nth grab return OK=false. Zero disables.
	FailEveryNth int
	// RemoveAfter marks the device as physically removed after that
	// many successful retrievals. Zero disables.
	RemoveAfter int
}

// SimDevice is a deterministic in-memory camera used in tests and the
// demo binary. It honors the latest-image-only discipline: at most one
// pending result exists and retrieval always observes the newest frame
// counter. Software-trigger mode delivers only after a trigger fired;
// a retrieval without a pending trigger times out like real hardware.
type SimDevice struct {
	cfg      SimConfig
	features *FeatureSet
	view     FeatureMap
	stream   *FeatureSet

	mu              sync.Mutex
	open            bool
	grabbing        bool
	removed         bool
	seq             uint64
	retrievals      int
	pendingTriggers int
}

// NewSimDevice builds a simulated camera from cfg.
func NewSimDevice(cfg SimConfig) *SimDevice {
	if cfg.Serial == "" {
		cfg.Serial = "sim-0"
	}
	if cfg.Class == "" {
		cfg.Class = "Emulated"
	}
	if cfg.PixelFormat == "" {
		cfg.PixelFormat = "BayerRG8"
	}

	f := NewFeatureSet()
	f.SeedInt("Width", 640)
	f.SeedInt("Height", 480)
	f.SeedBool("CenterX", false)
	f.SeedBool("CenterY", false)
	f.SeedEnum("PixelFormat", cfg.PixelFormat, "Mono8", "RGB8", "BGR8", "YUY2", "BayerRG8")
	if !cfg.NoFrameRateFeatures {
		f.SeedBool("AcquisitionFrameRateEnable", false)
		f.SeedFloat("AcquisitionFrameRate", 30)
		f.SeedFloat("ResultingFrameRate", 30)
	}
	if !cfg.NoTriggerSupport {
		f.SeedEnum("TriggerSelector", "FrameStart", "AcquisitionStart", "FrameBurstStart", "FrameStart")
		f.SeedEnum("TriggerMode", "Off", "Off", "On")
		f.SeedEnum("TriggerSource", "Software", "Software", "Line1")
		if cfg.NoFrameStart {
			f.DropEnumEntry("TriggerSelector", "FrameStart")
		}
	}
	switch cfg.Class {
	case "BaslerUsb":
		f.SeedEnum("BslUSBSpeedMode", "SuperSpeed", "HighSpeed", "SuperSpeed")
		f.SeedEnum("DeviceLinkThroughputLimitMode", "Off", "Off", "On")
		f.SeedInt("DeviceLinkThroughputLimit", 0)
	case "BaslerGigE":
		f.SeedInt("GevSCPSPacketSize", 8192)
	}

	s := NewFeatureSet()
	if cfg.Class == "BaslerUsb" {
		s.SeedInt("NumMaxQueuedUrbs", 64)
	}

	d := &SimDevice{cfg: cfg, features: f, stream: s}
	d.view = f
	if cfg.RoundWidth > 0 || cfg.RoundHeight > 0 {
		d.view = &roundingFeatures{FeatureSet: f, cfg: cfg}
	}
	return d
}

// roundingFeatures emulates a driver that rounds requested geometry: the
// stored value is the rounded one, so a read-back observes what the
// sensor will actually deliver.
type roundingFeatures struct {
	*FeatureSet
	cfg SimConfig
}

func (f *roundingFeatures) SetInt(name string, v int64) error {
	if name == "Width" && f.cfg.RoundWidth > 0 {
		v = int64(f.cfg.RoundWidth)
	}
	if name == "Height" && f.cfg.RoundHeight > 0 {
		v = int64(f.cfg.RoundHeight)
	}
	return f.FeatureSet.SetInt(name, v)
}

func (d *SimDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return ErrRemoved
	}
	d.open = true
	return nil
}

func (d *SimDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.grabbing = false
	return nil
}

func (d *SimDevice) SerialNumber() string { return d.cfg.Serial }
func (d *SimDevice) DeviceClass() string  { return d.cfg.Class }

func (d *SimDevice) Features() FeatureMap       { return d.view }
func (d *SimDevice) StreamFeatures() FeatureMap { return d.stream }

func (d *SimDevice) StartGrabbing(strategy GrabStrategy) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return fmt.Errorf("genicam: device %s is not open", d.cfg.Serial)
	}
	if d.removed {
		return ErrRemoved
	}
	d.grabbing = true
	return nil
}

func (d *SimDevice) StopGrabbing() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grabbing = false
	return nil
}

func (d *SimDevice) IsGrabbing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grabbing
}

func (d *SimDevice) ExecuteSoftwareTrigger() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.grabbing {
		return ErrNotGrabbing
	}
	if d.cfg.FailTrigger {
		return fmt.Errorf("genicam: simulated trigger fault on %s", d.cfg.Serial)
	}
	d.pendingTriggers++
	return nil
}

// RetrieveResult implements the Device contract. The simulation is
// synchronous: a result is fabricated immediately instead of waiting out
// the timeout, except in software-trigger mode with no pending trigger,
// which reports ErrTimeout immediately.
func (d *SimDevice) RetrieveResult(timeout time.Duration) (*GrabResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.removed {
		return nil, ErrRemoved
	}
	if !d.grabbing {
		return nil, ErrNotGrabbing
	}

	mode, _ := d.features.GetEnum("TriggerMode")
	source, _ := d.features.GetEnum("TriggerSource")
	if mode == "On" && source == "Software" {
		if d.pendingTriggers == 0 {
			return nil, ErrTimeout
		}
		d.pendingTriggers--
	}

	d.seq++
	d.retrievals++
	if d.cfg.RemoveAfter > 0 && d.retrievals > d.cfg.RemoveAfter {
		d.removed = true
		return nil, ErrRemoved
	}

	width, _ := d.features.GetInt("Width")
	height, _ := d.features.GetInt("Height")
	format, _ := d.features.GetEnum("PixelFormat")

	if d.cfg.FailEveryNth > 0 && d.retrievals%d.cfg.FailEveryNth == 0 {
		return &GrabResult{
			OK:               false,
			ErrorDescription: fmt.Sprintf("simulated sensor error on frame %d", d.seq),
			PixelFormat:      format,
			Width:            int(width),
			Height:           int(height),
		}, nil
	}

	return &GrabResult{
		OK:          true,
		PixelFormat: format,
		Width:       int(width),
		Height:      int(height),
		Data:        d.renderFrame(format, int(width), int(height)),
	}, nil
}

func (d *SimDevice) IsRemoved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed
}

// renderFrame produces a deterministic moving gradient so consecutive
// frames differ and tests can assert on content.
func (d *SimDevice) renderFrame(format string, width, height int) []byte {
	bpp := 1
	switch format {
	case "YUY2":
		bpp = 2
	case "RGB8", "BGR8":
		bpp = 3
	}
	data := make([]byte, width*height*bpp)
	for i := range data {
		data[i] = byte(i + int(d.seq)*7)
	}
	return data
}

// SimProvider discovers simulated devices.
type SimProvider struct {
	devices []*SimDevice
}

// NewSimProvider returns a provider over the given devices, in order.
func NewSimProvider(devices ...*SimDevice) *SimProvider {
	return &SimProvider{devices: devices}
}

func (p *SimProvider) FirstDevice() (Device, error) {
	if len(p.devices) == 0 {
		return nil, ErrNoDevice
	}
	return p.devices[0], nil
}

func (p *SimProvider) DeviceBySerial(serial string) (Device, error) {
	for _, d := range p.devices {
		if d.SerialNumber() == serial {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: serial %q", ErrNoDevice, serial)
}
