package pylongstreamer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryan-flywire/pylon-gstreamer/internal/recording"
	"github.com/tinyzimmer/go-gst/gst"
)

// Queue tuning for the assembled graphs. The leaky value 2 drops the
// oldest buffers downstream, keeping live preview latency bounded when
// a sink stalls.
const (
	queueLeakyDownstream = 2
	displayQueueNs       = uint64(5_000_000_000)
	teeBranchQueueNs     = uint64(2_500_000_000)
)

// rotate180 is the video-direction value flipping the image both ways,
// matching a camera mounted upside down.
const rotate180 = 3

// Pipeline assembles and runs one GStreamer graph downstream of a
// source entry element. Exactly one Build* call is allowed per
// instance; a second returns ErrAlreadyBuilt.
type Pipeline struct {
	mu       sync.Mutex
	pipeline *gst.Pipeline
	entry    *gst.Element
	built    bool
	variant  string
	overlay  *gst.Element

	startedAt time.Time

	elementErrs atomic.Uint64
	encoderErrs atomic.Uint64
	storageErrs atomic.Uint64
	unknownErrs atomic.Uint64
}

// PipelineStats is a snapshot of bus error counters by category.
type PipelineStats struct {
	Variant       string
	Uptime        time.Duration
	ElementErrors uint64
	EncoderErrors uint64
	StorageErrors uint64
	UnknownErrors uint64
}

// NewPipeline creates an empty graph holding the given entry element.
// The entry is typically a CameraSource's AppSrc, but any element with
// a src pad works.
func NewPipeline(entry *gst.Element) (*Pipeline, error) {
	if entry == nil {
		return nil, fmt.Errorf("pylon-gstreamer: pipeline entry element is required")
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: create pipeline: %w", err)
	}

	return &Pipeline{
		pipeline: pipeline,
		entry:    entry,
	}, nil
}

// BuildDisplay assembles a live preview graph:
//
//	entry → queue(leaky) → videoflip(180°) → videoconvert → autovideosink
func (p *Pipeline) BuildDisplay() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.built {
		return ErrAlreadyBuilt
	}

	queue, err := p.makeQueue(displayQueueNs)
	if err != nil {
		return p.abortBuild(err)
	}
	flip, err := p.makeFlip()
	if err != nil {
		return p.abortBuild(err)
	}
	convert, err := p.makeElement("videoconvert")
	if err != nil {
		return p.abortBuild(err)
	}
	sink, err := p.makeElement("autovideosink")
	if err != nil {
		return p.abortBuild(err)
	}

	p.pipeline.AddMany(p.entry, queue, flip, convert, sink)
	if err := gst.ElementLinkMany(p.entry, queue, flip, convert, sink); err != nil {
		return p.abortBuild(fmt.Errorf("pylon-gstreamer: link display graph: %w", err))
	}

	p.built = true
	p.variant = "display"
	slog.Info("pylon-gstreamer: display graph assembled")
	return nil
}

// BuildRecord assembles a segmented H.264 recording graph:
//
//	entry → videoconvert → queue → videoflip(180°) → encoder →
//	h264parse → splitmuxsink
//
// Segment files are named by a wall-clock namer bound to this graph;
// see RecordConfig for the timing and bitrate knobs.
func (p *Pipeline) BuildRecord(rc RecordConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.built {
		return ErrAlreadyBuilt
	}
	rc = rc.withDefaults()
	if rc.BasePath == "" {
		return fmt.Errorf("pylon-gstreamer: recording base path is required")
	}

	convert, err := p.makeElement("videoconvert")
	if err != nil {
		return p.abortBuild(err)
	}
	queue, err := p.makeQueue(displayQueueNs)
	if err != nil {
		return p.abortBuild(err)
	}
	flip, err := p.makeFlip()
	if err != nil {
		return p.abortBuild(err)
	}
	encoder, err := p.makeEncoder(rc)
	if err != nil {
		return p.abortBuild(err)
	}
	parse, err := p.makeElement("h264parse")
	if err != nil {
		return p.abortBuild(err)
	}
	mux, err := p.makeSplitMux(rc)
	if err != nil {
		return p.abortBuild(err)
	}

	p.pipeline.AddMany(p.entry, convert, queue, flip, encoder, parse, mux)
	if err := gst.ElementLinkMany(p.entry, convert, queue, flip, encoder, parse, mux); err != nil {
		return p.abortBuild(fmt.Errorf("pylon-gstreamer: link record graph: %w", err))
	}

	p.built = true
	p.variant = "record"
	slog.Info("pylon-gstreamer: record graph assembled",
		"base_path", rc.BasePath,
		"segment_duration", rc.SegmentDuration,
		"bitrate", rc.Bitrate,
	)
	return nil
}

// BuildDisplayRecord assembles a combined graph fanning one stream out
// to a live preview and a segmented recording through a tee. Each
// branch gets its own leaky queue so a stalled preview window cannot
// back-pressure the recording.
func (p *Pipeline) BuildDisplayRecord(rc RecordConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.built {
		return ErrAlreadyBuilt
	}
	rc = rc.withDefaults()
	if rc.BasePath == "" {
		return fmt.Errorf("pylon-gstreamer: recording base path is required")
	}

	queue, err := p.makeQueue(teeBranchQueueNs)
	if err != nil {
		return p.abortBuild(err)
	}
	flip, err := p.makeFlip()
	if err != nil {
		return p.abortBuild(err)
	}
	convert, err := p.makeElement("videoconvert")
	if err != nil {
		return p.abortBuild(err)
	}
	tee, err := p.makeElement("tee")
	if err != nil {
		return p.abortBuild(err)
	}

	dispQueue, err := p.makeQueue(teeBranchQueueNs)
	if err != nil {
		return p.abortBuild(err)
	}
	dispSink, err := p.makeElement("autovideosink")
	if err != nil {
		return p.abortBuild(err)
	}

	recQueue, err := p.makeQueue(teeBranchQueueNs)
	if err != nil {
		return p.abortBuild(err)
	}
	encoder, err := p.makeEncoder(rc)
	if err != nil {
		return p.abortBuild(err)
	}
	parse, err := p.makeElement("h264parse")
	if err != nil {
		return p.abortBuild(err)
	}
	mux, err := p.makeSplitMux(rc)
	if err != nil {
		return p.abortBuild(err)
	}

	p.pipeline.AddMany(
		p.entry, queue, flip, convert, tee,
		dispQueue, dispSink,
		recQueue, encoder, parse, mux,
	)
	if err := gst.ElementLinkMany(p.entry, queue, flip, convert, tee); err != nil {
		return p.abortBuild(fmt.Errorf("pylon-gstreamer: link trunk: %w", err))
	}
	if err := gst.ElementLinkMany(tee, dispQueue, dispSink); err != nil {
		return p.abortBuild(fmt.Errorf("pylon-gstreamer: link display branch: %w", err))
	}
	if err := gst.ElementLinkMany(tee, recQueue, encoder, parse, mux); err != nil {
		return p.abortBuild(fmt.Errorf("pylon-gstreamer: link record branch: %w", err))
	}

	p.built = true
	p.variant = "display-record"
	slog.Info("pylon-gstreamer: display+record graph assembled",
		"base_path", rc.BasePath,
		"segment_duration", rc.SegmentDuration,
		"bitrate", rc.Bitrate,
	)
	return nil
}

// Start moves the graph to PLAYING. Requires a prior Build* call.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.built {
		return ErrNotBuilt
	}
	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("pylon-gstreamer: set pipeline playing: %w", err)
	}
	p.startedAt = time.Now()
	slog.Info("pylon-gstreamer: pipeline playing", "variant", p.variant)
	return nil
}

// Run monitors the pipeline bus until end-of-stream, a pipeline error
// or context cancellation. End-of-stream and cancellation return nil;
// a bus error is classified, counted and returned.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	pipeline, variant, startedAt := p.pipeline, p.variant, p.startedAt
	built := p.built
	p.mu.Unlock()

	if !built {
		return ErrNotBuilt
	}

	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("pylon-gstreamer: context cancelled, stopping bus monitor")
			return nil

		default:
			// Short poll timeout keeps shutdown responsive.
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				slog.Info("pylon-gstreamer: end of stream received",
					"variant", variant,
					"uptime", time.Since(startedAt),
				)
				return nil

			case gst.MessageError:
				gerr := msg.ParseError()
				category := classifyBusError(gerr)
				switch category {
				case BusCategoryElement:
					p.elementErrs.Add(1)
				case BusCategoryEncoder:
					p.encoderErrs.Add(1)
				case BusCategoryStorage:
					p.storageErrs.Add(1)
				default:
					p.unknownErrs.Add(1)
				}
				slog.Error("pylon-gstreamer: pipeline error",
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"category", category.String(),
					"variant", variant,
					"uptime", time.Since(startedAt),
				)
				return fmt.Errorf("pylon-gstreamer: pipeline error [%s]: %s",
					category.String(), gerr.Error())

			case gst.MessageStateChanged:
				if msg.Source() == pipeline.GetName() {
					old, new := msg.ParseStateChanged()
					slog.Debug("pylon-gstreamer: pipeline state changed",
						"from", old, "to", new)
				}
			}
		}
	}
}

// Close requests a clean shutdown by sending end-of-stream through the
// entry element. Downstream muxers finalize their current segment; Run
// returns once the EOS reaches the bus.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.built {
		return ErrNotBuilt
	}
	if ok := p.entry.SendEvent(gst.NewEOSEvent()); !ok {
		return fmt.Errorf("pylon-gstreamer: send EOS event failed")
	}
	slog.Info("pylon-gstreamer: EOS sent through pipeline", "variant", p.variant)
	return nil
}

// Stop moves the graph to NULL and releases its resources. Safe to call
// repeatedly.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pipeline == nil {
		return nil
	}
	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("pylon-gstreamer: set pipeline null: %w", err)
	}
	slog.Info("pylon-gstreamer: pipeline stopped", "variant", p.variant)
	return nil
}

// UpdateOverlayText replaces the on-screen overlay text. Only graphs
// with a text overlay (banner graphs) support this.
func (p *Pipeline) UpdateOverlayText(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.built {
		return ErrNotBuilt
	}
	if p.overlay == nil {
		return ErrNoOverlay
	}
	p.overlay.SetProperty("text", text)
	slog.Debug("pylon-gstreamer: overlay text updated", "text", text)
	return nil
}

// Variant returns the graph variant name set by the Build* call, or ""
// before any build.
func (p *Pipeline) Variant() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.variant
}

// Stats returns a snapshot of bus error counters.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	variant, startedAt := p.variant, p.startedAt
	p.mu.Unlock()

	var uptime time.Duration
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}
	return PipelineStats{
		Variant:       variant,
		Uptime:        uptime,
		ElementErrors: p.elementErrs.Load(),
		EncoderErrors: p.encoderErrs.Load(),
		StorageErrors: p.storageErrs.Load(),
		UnknownErrors: p.unknownErrs.Load(),
	}
}

// abortBuild tears down a half-assembled graph by signalling EOS to the
// entry, so a source already grabbing does not push into a dead graph.
func (p *Pipeline) abortBuild(err error) error {
	p.entry.SendEvent(gst.NewEOSEvent())
	return err
}

func (p *Pipeline) makeElement(factory string) (*gst.Element, error) {
	elem, err := gst.NewElement(factory)
	if err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: create %s: %w", factory, err)
	}
	return elem, nil
}

func (p *Pipeline) makeQueue(maxSizeTimeNs uint64) (*gst.Element, error) {
	queue, err := p.makeElement("queue")
	if err != nil {
		return nil, err
	}
	queue.SetProperty("leaky", queueLeakyDownstream)
	queue.SetProperty("max-size-time", maxSizeTimeNs)
	return queue, nil
}

func (p *Pipeline) makeFlip() (*gst.Element, error) {
	flip, err := p.makeElement("videoflip")
	if err != nil {
		return nil, err
	}
	flip.SetProperty("video-direction", rotate180)
	return flip, nil
}

// makeEncoder prefers the OMX hardware encoder and falls back to
// x264enc when the platform does not provide one. The two take bitrate
// in different units (bit/s vs kbit/s).
func (p *Pipeline) makeEncoder(rc RecordConfig) (*gst.Element, error) {
	encoder, err := gst.NewElement("omxh264enc")
	if err == nil {
		encoder.SetProperty("control-rate", rc.RateControl)
		encoder.SetProperty("bitrate", rc.Bitrate)
		slog.Info("pylon-gstreamer: using hardware H.264 encoder",
			"bitrate", rc.Bitrate, "control_rate", rc.RateControl)
		return encoder, nil
	}

	slog.Warn("pylon-gstreamer: omxh264enc not available, using software encoder", "error", err)
	encoder, err = gst.NewElement("x264enc")
	if err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: no H.264 encoder available: %w", err)
	}
	encoder.SetProperty("bitrate", rc.Bitrate/1000)
	encoder.SetProperty("speed-preset", 1)
	encoder.SetProperty("tune", 4)
	return encoder, nil
}

// makeSplitMux creates the segmenting sink and binds the segment namer
// to this graph via the format-location signal.
func (p *Pipeline) makeSplitMux(rc RecordConfig) (*gst.Element, error) {
	mux, err := p.makeElement("splitmuxsink")
	if err != nil {
		return nil, err
	}
	mux.SetProperty("max-size-time", uint64(rc.SegmentDuration.Nanoseconds()))
	if rc.SegmentBytes > 0 {
		mux.SetProperty("max-size-bytes", rc.SegmentBytes)
	}

	namer := recording.NewNamer(rc.BasePath, rc.UTCOffsetHours)
	if _, err := mux.Connect("format-location", func(_ *gst.Element, fragmentID uint) string {
		name := namer.Name(fragmentID)
		slog.Info("pylon-gstreamer: opening segment file", "path", name, "fragment", fragmentID)
		return name
	}); err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: connect format-location: %w", err)
	}
	return mux, nil
}
