// Package quota answers "is there room for N more bytes" before a download
// is admitted. The platform disk probe is treated as a capability that may
// be unavailable; when it is, a documented conservative constant stands in
// rather than failing open or closed arbitrarily.
package quota

import (
	"fmt"
	"log/slog"
	"syscall"
)

// FallbackQuotaBytes is the conservative total assumed when no disk
// estimate is available (500 MiB, mirroring the storage allowance typical
// of the constrained devices this app targets).
const FallbackQuotaBytes int64 = 500 * 1024 * 1024

// Estimator reports the total and available bytes of the storage backing
// the data directory.
type Estimator interface {
	Estimate() (total, available int64, err error)
}

// UsageReporter reports the bytes already consumed by stored content. The
// storage layer satisfies this.
type UsageReporter interface {
	LessonContentBytes() (int64, error)
}

// DiskEstimator probes the filesystem holding path.
type DiskEstimator struct {
	Path string
}

// Estimate implements Estimator via statfs.
func (d DiskEstimator) Estimate() (int64, int64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(d.Path, &st); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", d.Path, err)
	}
	bsize := int64(st.Bsize)
	return int64(st.Blocks) * bsize, int64(st.Bavail) * bsize, nil
}

// Info is a point-in-time storage snapshot.
type Info struct {
	Used       int64
	Available  int64
	Total      int64
	Percentage float64
}

// Guard gates downloads on available storage.
type Guard struct {
	estimator Estimator
	usage     UsageReporter
}

// NewGuard builds a guard. A nil estimator means the probe capability is
// absent and every snapshot uses the fallback constant.
func NewGuard(estimator Estimator, usage UsageReporter) *Guard {
	return &Guard{estimator: estimator, usage: usage}
}

// Quota returns the current storage snapshot. Probe failures degrade to the
// fallback constant instead of erroring.
func (g *Guard) Quota() Info {
	var used int64
	if g.usage != nil {
		u, err := g.usage.LessonContentBytes()
		if err != nil {
			slog.Warn("content usage unavailable", "error", err)
		} else {
			used = u
		}
	}

	total, available := FallbackQuotaBytes, FallbackQuotaBytes-used
	if g.estimator != nil {
		t, a, err := g.estimator.Estimate()
		if err != nil {
			slog.Warn("storage estimate unavailable, using fallback quota", "error", err)
		} else {
			total, available = t, a
		}
	}
	if available < 0 {
		available = 0
	}

	info := Info{Used: used, Available: available, Total: total}
	if total > 0 {
		info.Percentage = float64(used) / float64(total) * 100
	}
	return info
}

// HasSpaceFor reports whether the available storage can hold n more bytes.
func (g *Guard) HasSpaceFor(n int64) bool {
	return g.Quota().Available >= n
}
