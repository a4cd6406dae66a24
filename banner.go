package pylongstreamer

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
)

// NewBannerPipeline assembles a self-contained status banner graph that
// needs no camera: a black test source with a centered text overlay
// rendered to the display.
//
//	videotestsrc(black) → capsfilter → videoconvert → textoverlay →
//	autovideosink
//
// The overlay text starts as the banner kind's message and can be
// replaced at runtime with UpdateOverlayText.
func NewBannerPipeline(kind BannerKind, width, height int) (*Pipeline, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("pylon-gstreamer: invalid banner resolution %dx%d", width, height)
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: create pipeline: %w", err)
	}

	src, err := gst.NewElement("videotestsrc")
	if err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: create videotestsrc: %w", err)
	}
	src.SetProperty("pattern", 2) // solid black
	src.SetProperty("is-live", true)

	caps, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: create capsfilter: %w", err)
	}
	caps.SetProperty("caps", gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,width=%d,height=%d,framerate=5/1", width, height)))

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: create videoconvert: %w", err)
	}

	overlay, err := gst.NewElement("textoverlay")
	if err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: create textoverlay: %w", err)
	}
	overlay.SetProperty("text", kind.Text())
	overlay.SetProperty("font-desc", "Sans 36")
	overlay.SetProperty("halignment", 1) // center
	overlay.SetProperty("valignment", 4) // center

	sink, err := gst.NewElement("autovideosink")
	if err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: create autovideosink: %w", err)
	}

	pipeline.AddMany(src, caps, convert, overlay, sink)
	if err := gst.ElementLinkMany(src, caps, convert, overlay, sink); err != nil {
		return nil, fmt.Errorf("pylon-gstreamer: link banner graph: %w", err)
	}

	p := &Pipeline{
		pipeline: pipeline,
		entry:    src,
		built:    true,
		variant:  "banner:" + kind.String(),
		overlay:  overlay,
	}

	slog.Info("pylon-gstreamer: banner graph assembled",
		"kind", kind.String(),
		"resolution", fmt.Sprintf("%dx%d", width, height),
	)
	return p, nil
}
