package runtime

import (
	goruntime "runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const cpuSecondsMetric = "/sched/cpu:seconds"

// resourceTracker samples process CPU and memory for procedure stats. CPU is
// reported as a share of all cores since the previous sample.
type resourceTracker struct {
	mu      sync.Mutex
	sample  []metrics.Sample
	prevCPU float64
	prevAt  time.Time
	cores   float64
	now     func() time.Time
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		sample: []metrics.Sample{{Name: cpuSecondsMetric}},
		cores:  float64(goruntime.NumCPU()),
		now:    time.Now,
	}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	usage := ResourceUsage{Goroutines: goruntime.NumGoroutine()}
	var mem goruntime.MemStats
	goruntime.ReadMemStats(&mem)
	usage.MemoryBytes = mem.Alloc

	if len(r.sample) == 0 {
		r.sample = []metrics.Sample{{Name: cpuSecondsMetric}}
	}
	metrics.Read(r.sample)
	if r.sample[0].Value.Kind() != metrics.KindFloat64 {
		return usage
	}

	now := time.Now()
	if r.now != nil {
		now = r.now()
	}
	cpu := r.sample[0].Value.Float64()
	if !r.prevAt.IsZero() && r.cores > 0 {
		if wall := now.Sub(r.prevAt).Seconds(); wall > 0 {
			usage.CPUPercent = (cpu - r.prevCPU) / wall / r.cores * 100
		}
	}
	r.prevCPU = cpu
	r.prevAt = now
	return usage
}
