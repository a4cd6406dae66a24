package pylongstreamer

import (
	"testing"
	"time"
)

func TestRecordConfig_Defaults(t *testing.T) {
	got := RecordConfig{BasePath: "/video"}.withDefaults()

	if got.Bitrate != 10_000_000 {
		t.Errorf("Bitrate = %d, want 10000000", got.Bitrate)
	}
	if got.RateControl != 2 {
		t.Errorf("RateControl = %d, want 2", got.RateControl)
	}
	if got.SegmentDuration != 5*time.Minute {
		t.Errorf("SegmentDuration = %v, want 5m", got.SegmentDuration)
	}
	if got.SegmentBytes != 0 {
		t.Errorf("SegmentBytes = %d, want 0 (disabled)", got.SegmentBytes)
	}

	custom := RecordConfig{
		BasePath:        "/video",
		Bitrate:         4_000_000,
		RateControl:     1,
		SegmentDuration: time.Minute,
	}.withDefaults()
	if custom.Bitrate != 4_000_000 || custom.RateControl != 1 || custom.SegmentDuration != time.Minute {
		t.Errorf("explicit values were overwritten: %+v", custom)
	}
}

func TestBannerKind_Text(t *testing.T) {
	tests := []struct {
		kind     BannerKind
		wantName string
		wantText string
	}{
		{BannerCameraFailure, "camera-failure", "CAMERA FAILURE - CHECK CONNECTION"},
		{BannerLowPower, "low-power", "LOW POWER - CONNECT CHARGER"},
		{BannerOverheat, "overheat", "TEMPERATURE LIMIT - COOLING DOWN"},
		{BannerRestartRequired, "restart-required", "SYSTEM ERROR - RESTART REQUIRED"},
		{BannerStorageFull, "storage-full", "STORAGE FULL - REPLACE MEDIA"},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.wantName {
				t.Errorf("String() = %q, want %q", got, tt.wantName)
			}
			if got := tt.kind.Text(); got != tt.wantText {
				t.Errorf("Text() = %q, want %q", got, tt.wantText)
			}
		})
	}
}

func TestModeAndState_Strings(t *testing.T) {
	if ModeOnDemand.String() != "on-demand" || ModeFreeRun.String() != "free-run" {
		t.Error("acquisition mode names changed")
	}
	if StateGrabbing.String() != "grabbing" || StateClosed.String() != "closed" {
		t.Error("source state names changed")
	}
}
