package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	pylongstreamer "github.com/bryan-flywire/pylon-gstreamer"
	"github.com/bryan-flywire/pylon-gstreamer/internal/genicam"
)

const version = "v0.1.0"

func main() {
	variant := flag.String("variant", "display", "Graph variant: display, record, display-record, banner")
	banner := flag.String("banner", "camera-failure", "Banner kind: camera-failure, low-power, overheat, restart-required, storage-full")
	device := flag.String("device", "sim", "Camera backend: sim, v4l2")
	v4l2Path := flag.String("v4l2-path", "/dev/video0", "V4L2 device path (v4l2 backend)")
	serial := flag.String("serial", "", "Camera serial number (empty = first device)")
	width := flag.Int("width", 1920, "Capture width in pixels")
	height := flag.Int("height", 1080, "Capture height in pixels")
	fps := flag.Float64("fps", 25.0, "Acquisition frame rate (0-240)")
	onDemand := flag.Bool("ondemand", false, "Software-trigger one frame per pipeline demand")
	triggered := flag.Bool("triggered", false, "Gate frames on the hardware trigger line")
	outputDir := flag.String("output", "", "Directory for video segments (record variants)")
	tzOffset := flag.Int("tz-offset", 0, "Hour offset applied to segment filenames")
	bitrate := flag.Uint("bitrate", 10_000_000, "Encoder bitrate in bits per second")
	segment := flag.Duration("segment", 5*time.Minute, "Segment rotation interval")
	statsInterval := flag.Duration("stats-interval", 10*time.Second, "Interval between stats reports")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pylongstreamer %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *variant == "banner" {
		runBanner(ctx, *banner, *width, *height)
		return
	}

	needsRecording := *variant == "record" || *variant == "display-record"
	if needsRecording {
		if *outputDir == "" {
			fmt.Fprintf(os.Stderr, "Error: -output is required for variant %q\n\n", *variant)
			flag.PrintDefaults()
			os.Exit(1)
		}
		if err := os.MkdirAll(*outputDir, 0o755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	var provider genicam.Provider
	switch *device {
	case "sim":
		provider = genicam.NewSimProvider(genicam.NewSimDevice(genicam.SimConfig{
			Serial: *serial,
		}))
	case "v4l2":
		provider = &genicam.V4L2Provider{DefaultPath: *v4l2Path}
	default:
		log.Fatalf("Invalid device backend: %s (must be sim or v4l2)", *device)
	}

	source, err := pylongstreamer.NewCameraSource(provider, pylongstreamer.SourceConfig{
		Serial:    *serial,
		Width:     *width,
		Height:    *height,
		FrameRate: *fps,
		OnDemand:  *onDemand,
		Triggered: *triggered,
	})
	if err != nil {
		log.Fatalf("Failed to create camera source: %v", err)
	}
	defer source.Close()

	if err := source.Initialize(); err != nil {
		log.Fatalf("Failed to initialize camera: %v", err)
	}

	entry, err := source.AppSrc()
	if err != nil {
		log.Fatalf("Failed to create graph entry: %v", err)
	}

	pipeline, err := pylongstreamer.NewPipeline(entry)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	recordCfg := pylongstreamer.RecordConfig{
		BasePath:        *outputDir,
		UTCOffsetHours:  *tzOffset,
		Bitrate:         *bitrate,
		SegmentDuration: *segment,
	}
	switch *variant {
	case "display":
		err = pipeline.BuildDisplay()
	case "record":
		err = pipeline.BuildRecord(recordCfg)
	case "display-record":
		err = pipeline.BuildDisplayRecord(recordCfg)
	default:
		log.Fatalf("Invalid variant: %s", *variant)
	}
	if err != nil {
		log.Fatalf("Failed to build %s graph: %v", *variant, err)
	}

	if err := source.Start(); err != nil {
		log.Fatalf("Failed to start acquisition: %v", err)
	}
	if err := pipeline.Start(); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}

	go reportStats(ctx, source, *statsInterval)

	// Block on the bus until EOS, error or a signal.
	runErr := pipeline.Run(ctx)

	// Orderly teardown: EOS first so splitmuxsink finalizes its segment.
	if ctx.Err() != nil {
		if err := pipeline.Close(); err != nil {
			slog.Warn("EOS on shutdown failed", "error", err)
		} else {
			drain, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			pipeline.Run(drain)
			cancel()
		}
	}
	source.Stop()
	pipeline.Stop()

	stats := source.Stats()
	fmt.Printf("\nSession summary:\n")
	fmt.Printf("  Frames pushed:     %d\n", stats.FramesPushed)
	fmt.Printf("  Grab failures:     %d\n", stats.GrabFailures)
	fmt.Printf("  Software triggers: %d\n", stats.SoftwareTriggers)
	fmt.Printf("  Push rate:         %.2f fps (stable: %v)\n", stats.FPSMean, stats.FPSStable)

	if runErr != nil {
		log.Fatalf("Pipeline failed: %v", runErr)
	}
}

func runBanner(ctx context.Context, kind string, width, height int) {
	kinds := map[string]pylongstreamer.BannerKind{
		"camera-failure":   pylongstreamer.BannerCameraFailure,
		"low-power":        pylongstreamer.BannerLowPower,
		"overheat":         pylongstreamer.BannerOverheat,
		"restart-required": pylongstreamer.BannerRestartRequired,
		"storage-full":     pylongstreamer.BannerStorageFull,
	}
	k, ok := kinds[kind]
	if !ok {
		log.Fatalf("Invalid banner kind: %s", kind)
	}

	pipeline, err := pylongstreamer.NewBannerPipeline(k, width, height)
	if err != nil {
		log.Fatalf("Failed to build banner graph: %v", err)
	}
	if err := pipeline.Start(); err != nil {
		log.Fatalf("Failed to start banner: %v", err)
	}
	defer pipeline.Stop()

	if err := pipeline.Run(ctx); err != nil {
		log.Fatalf("Banner pipeline failed: %v", err)
	}
}

func reportStats(ctx context.Context, source *pylongstreamer.CameraSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := source.Stats()
			slog.Info("session stats",
				"state", stats.State.String(),
				"mode", stats.Mode.String(),
				"frames_pushed", stats.FramesPushed,
				"grab_failures", stats.GrabFailures,
				"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
				"fps_stable", stats.FPSStable,
			)
		}
	}
}
