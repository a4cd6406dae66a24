// Package recording names video segment files for the splitmuxsink
// rotation callback.
//
// Each graph owns its Namer, bound by closure at node-creation time, so
// two graphs with different timezone offsets can coexist in one process.
package recording

import (
	"fmt"
	"path/filepath"
	"time"
)

// Namer produces segment filenames of the form
//
//	<basePath>/<YY>.<MM>.<DD>_<HH>.<mm>.<ss>_<fragmentIndex>.mp4
//
// with the hour shifted by a fixed UTC offset, applied mod 24. The date
// is evaluated at each segment boundary, not at build time.
type Namer struct {
	basePath    string
	offsetHours int

	// now is the clock; overridable in tests.
	now func() time.Time
}

// NewNamer returns a Namer rooted at basePath with the given timezone
// offset in hours. Offsets of any sign and magnitude are normalized into
// [0, 24).
func NewNamer(basePath string, offsetHours int) *Namer {
	return &Namer{
		basePath:    basePath,
		offsetHours: ((offsetHours % 24) + 24) % 24,
		now:         time.Now,
	}
}

// WithClock replaces the wall clock. Test hook.
func (n *Namer) WithClock(now func() time.Time) *Namer {
	n.now = now
	return n
}

// Name returns the filename for the segment with the given fragment
// index, timestamped at the moment of the call.
func (n *Namer) Name(fragmentIndex uint) string {
	t := n.now().UTC()
	hour := (t.Hour() + n.offsetHours) % 24
	file := fmt.Sprintf("%02d.%02d.%02d_%02d.%02d.%02d_%d.mp4",
		t.Year()%100, int(t.Month()), t.Day(),
		hour, t.Minute(), t.Second(),
		fragmentIndex)
	return filepath.Join(n.basePath, file)
}
