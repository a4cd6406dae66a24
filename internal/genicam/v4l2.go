//go:build linux

package genicam

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/blackjack/webcam"
)

// V4L2Device adapts a V4L2 webcam to the Device contract so the bridge
// can run against commodity hardware. The feature surface is deliberately
// sparse: only Width, Height and PixelFormat exist; frame-rate and
// trigger features are absent, which exercises the adapter's free-run
// fallback paths the same way a reduced-feature industrial camera would.
//
// Freshest-frame semantics come from a single-buffer V4L2 queue: with one
// mapped buffer the driver overwrites the unread frame, matching the
// latest-image-only grab strategy.
type V4L2Device struct {
	path     string
	features *FeatureSet
	view     *v4l2Features
	stream   *FeatureSet

	mu         sync.Mutex
	cam        *webcam.Webcam
	format     webcam.PixelFormat
	negotiated bool
	grabbing   bool
	removed    bool
}

// v4l2Features renegotiates the image format with the driver whenever
// the geometry features change, so a read-back immediately after a set
// observes the driver's rounding rather than the requested value.
type v4l2Features struct {
	*FeatureSet
	dev *V4L2Device
}

func (f *v4l2Features) SetInt(name string, v int64) error {
	if err := f.FeatureSet.SetInt(name, v); err != nil {
		return err
	}
	if name == "Width" || name == "Height" {
		return f.dev.negotiate()
	}
	return nil
}

// NewV4L2Device prepares a device for the given /dev/video* path. The
// device node is opened by Open.
func NewV4L2Device(path string) *V4L2Device {
	f := NewFeatureSet()
	f.SeedInt("Width", 640)
	f.SeedInt("Height", 480)
	f.SeedEnum("PixelFormat", "YUY2", "YUY2")
	d := &V4L2Device{path: path, features: f, stream: NewFeatureSet()}
	d.view = &v4l2Features{FeatureSet: f, dev: d}
	return d
}

func (d *V4L2Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam != nil {
		return nil
	}
	cam, err := webcam.Open(d.path)
	if err != nil {
		return fmt.Errorf("genicam: open %s: %w", d.path, err)
	}

	var yuyv webcam.PixelFormat
	for pf, name := range cam.GetSupportedFormats() {
		if strings.Contains(name, "YUYV") || strings.Contains(name, "YUY2") {
			yuyv = pf
			break
		}
	}
	if yuyv == 0 {
		cam.Close()
		return fmt.Errorf("genicam: %s offers no YUYV format", d.path)
	}

	d.cam = cam
	d.format = yuyv
	return nil
}

func (d *V4L2Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return nil
	}
	if d.grabbing {
		d.cam.StopStreaming()
		d.grabbing = false
	}
	err := d.cam.Close()
	d.cam = nil
	d.negotiated = false
	if err != nil {
		return fmt.Errorf("genicam: close %s: %w", d.path, err)
	}
	return nil
}

func (d *V4L2Device) SerialNumber() string { return d.path }
func (d *V4L2Device) DeviceClass() string  { return "V4L2" }

func (d *V4L2Device) Features() FeatureMap       { return d.view }
func (d *V4L2Device) StreamFeatures() FeatureMap { return d.stream }

// negotiate passes the current geometry to the driver and writes the
// rounded result back into the feature map. Called on every geometry
// set, so the adapter's read-back after applying Width/Height already
// reflects the driver's rounding. A no-op before Open or while
// streaming.
func (d *V4L2Device) negotiate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.negotiateLocked()
}

func (d *V4L2Device) negotiateLocked() error {
	if d.cam == nil || d.grabbing {
		return nil
	}

	width, _ := d.features.GetInt("Width")
	height, _ := d.features.GetInt("Height")

	_, w, h, err := d.cam.SetImageFormat(d.format, uint32(width), uint32(height))
	if err != nil {
		return fmt.Errorf("genicam: set %dx%d YUYV on %s: %w", width, height, d.path, err)
	}
	d.features.SeedInt("Width", int64(w))
	d.features.SeedInt("Height", int64(h))
	d.negotiated = true
	return nil
}

// StartGrabbing starts streaming with the negotiated geometry.
func (d *V4L2Device) StartGrabbing(strategy GrabStrategy) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return fmt.Errorf("genicam: device %s is not open", d.path)
	}
	if d.grabbing {
		return nil
	}

	if !d.negotiated {
		if err := d.negotiateLocked(); err != nil {
			return err
		}
	}

	// One buffer keeps only the freshest frame in the driver queue.
	if strategy == StrategyLatestImageOnly {
		if err := d.cam.SetBufferCount(1); err != nil {
			return fmt.Errorf("genicam: set buffer count on %s: %w", d.path, err)
		}
	}

	if err := d.cam.StartStreaming(); err != nil {
		return fmt.Errorf("genicam: start streaming on %s: %w", d.path, err)
	}
	d.grabbing = true
	return nil
}

func (d *V4L2Device) StopGrabbing() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil || !d.grabbing {
		return nil
	}
	d.grabbing = false
	if err := d.cam.StopStreaming(); err != nil {
		return fmt.Errorf("genicam: stop streaming on %s: %w", d.path, err)
	}
	return nil
}

func (d *V4L2Device) IsGrabbing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grabbing
}

// ExecuteSoftwareTrigger is not supported by V4L2 capture devices.
func (d *V4L2Device) ExecuteSoftwareTrigger() error {
	return &FeatureError{Feature: "TriggerSoftware", Reason: "not supported by V4L2"}
}

func (d *V4L2Device) RetrieveResult(timeout time.Duration) (*GrabResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.removed {
		return nil, ErrRemoved
	}
	if d.cam == nil || !d.grabbing {
		return nil, ErrNotGrabbing
	}

	secs := uint32(timeout / time.Second)
	if secs == 0 {
		secs = 1
	}
	if err := d.cam.WaitForFrame(secs); err != nil {
		var to *webcam.Timeout
		if errors.As(err, &to) {
			return nil, ErrTimeout
		}
		if errors.Is(err, syscall.ENODEV) {
			d.removed = true
			return nil, ErrRemoved
		}
		return nil, fmt.Errorf("genicam: wait for frame on %s: %w", d.path, err)
	}

	frame, err := d.cam.ReadFrame()
	if err != nil {
		if errors.Is(err, syscall.ENODEV) {
			d.removed = true
			return nil, ErrRemoved
		}
		return nil, fmt.Errorf("genicam: read frame on %s: %w", d.path, err)
	}

	width, _ := d.features.GetInt("Width")
	height, _ := d.features.GetInt("Height")
	want := int(width) * int(height) * 2
	if len(frame) != want {
		return &GrabResult{
			OK:               false,
			ErrorDescription: fmt.Sprintf("short frame: %d bytes, want %d", len(frame), want),
			PixelFormat:      "YUY2",
			Width:            int(width),
			Height:           int(height),
		}, nil
	}

	return &GrabResult{
		OK:          true,
		PixelFormat: "YUY2",
		Width:       int(width),
		Height:      int(height),
		Data:        frame,
	}, nil
}

func (d *V4L2Device) IsRemoved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed
}

// V4L2Provider discovers V4L2 devices by path. The serial number of a
// V4L2 device is its device path.
type V4L2Provider struct {
	// DefaultPath is opened by FirstDevice. Defaults to /dev/video0.
	DefaultPath string
}

func (p *V4L2Provider) FirstDevice() (Device, error) {
	path := p.DefaultPath
	if path == "" {
		path = "/dev/video0"
	}
	return p.open(path)
}

func (p *V4L2Provider) DeviceBySerial(serial string) (Device, error) {
	return p.open(serial)
}

func (p *V4L2Provider) open(path string) (Device, error) {
	d := NewV4L2Device(path)
	if err := d.Open(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return d, nil
}
