package pylongstreamer

import (
	"errors"
	"testing"
	"time"
)

// The build guard must reject a second build before touching any
// GStreamer state, so it is testable on a bare struct.
func TestPipeline_DuplicateBuildRejected(t *testing.T) {
	p := &Pipeline{built: true, variant: "display"}

	if err := p.BuildDisplay(); !errors.Is(err, ErrAlreadyBuilt) {
		t.Errorf("BuildDisplay error = %v, want ErrAlreadyBuilt", err)
	}
	if err := p.BuildRecord(RecordConfig{BasePath: "/tmp"}); !errors.Is(err, ErrAlreadyBuilt) {
		t.Errorf("BuildRecord error = %v, want ErrAlreadyBuilt", err)
	}
	if err := p.BuildDisplayRecord(RecordConfig{BasePath: "/tmp"}); !errors.Is(err, ErrAlreadyBuilt) {
		t.Errorf("BuildDisplayRecord error = %v, want ErrAlreadyBuilt", err)
	}
	if got := p.Variant(); got != "display" {
		t.Errorf("Variant() = %q, want unchanged %q", got, "display")
	}
}

func TestPipeline_OperationsBeforeBuild(t *testing.T) {
	p := &Pipeline{}

	if err := p.Start(); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("Start error = %v, want ErrNotBuilt", err)
	}
	if err := p.Close(); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("Close error = %v, want ErrNotBuilt", err)
	}
	if err := p.UpdateOverlayText("x"); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("UpdateOverlayText error = %v, want ErrNotBuilt", err)
	}
}

func TestPipeline_OverlayRequiresBannerGraph(t *testing.T) {
	p := &Pipeline{built: true, variant: "display"}

	if err := p.UpdateOverlayText("x"); !errors.Is(err, ErrNoOverlay) {
		t.Errorf("UpdateOverlayText error = %v, want ErrNoOverlay", err)
	}
}

func TestPipeline_StatsSnapshot(t *testing.T) {
	p := &Pipeline{built: true, variant: "record"}
	p.startedAt = time.Now().Add(-time.Second)
	p.storageErrs.Add(2)
	p.unknownErrs.Add(1)

	stats := p.Stats()
	if stats.Variant != "record" {
		t.Errorf("Variant = %q, want record", stats.Variant)
	}
	if stats.Uptime <= 0 {
		t.Errorf("Uptime = %v, want > 0", stats.Uptime)
	}
	if stats.StorageErrors != 2 || stats.UnknownErrors != 1 {
		t.Errorf("error counters = %d/%d, want 2/1", stats.StorageErrors, stats.UnknownErrors)
	}
}

func TestClassifyBusError_NilIsUnknown(t *testing.T) {
	if got := classifyBusError(nil); got != BusCategoryUnknown {
		t.Errorf("classifyBusError(nil) = %v, want BusCategoryUnknown", got)
	}
}

func TestBusCategory_String(t *testing.T) {
	tests := []struct {
		category BusCategory
		want     string
	}{
		{BusCategoryElement, "element"},
		{BusCategoryEncoder, "encoder"},
		{BusCategoryStorage, "storage"},
		{BusCategoryUnknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.category.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.category, got, tt.want)
		}
	}
}
