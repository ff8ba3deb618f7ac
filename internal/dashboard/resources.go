package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"fundingflow/logger"
)

// resourceSample is a single measurement of host resource usage.
type resourceSample struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskPct     float64   `json:"disk_percent"`
}

// Sampling functions are variables so tests can substitute deterministic
// readings for the gopsutil calls.
var (
	cpuPercentFn = func(ctx context.Context) ([]float64, error) {
		return cpu.PercentWithContext(ctx, 0, false)
	}
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
)

// resourceSampler measures CPU, memory and disk usage of the crawler host on
// a fixed interval and retains a bounded history for the dashboard charts.
type resourceSampler struct {
	mu      sync.RWMutex
	samples []resourceSample
	limit   int

	interval time.Duration
	diskPath string
	log      *logger.Log

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	done      chan struct{}
	stopped   chan struct{}
}

func newResourceSampler(limit int, interval time.Duration, diskPath string, log *logger.Log) *resourceSampler {
	if limit <= 0 {
		limit = 200
	}
	if interval <= 0 {
		interval = time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &resourceSampler{
		limit:    limit,
		interval: interval,
		diskPath: diskPath,
		log:      log,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run(ctx)
	})
}

// stop is safe to call whether or not the sampler was started.
func (s *resourceSampler) stop() {
	s.stopOnce.Do(func() { close(s.done) })
	if s.started.Load() {
		<-s.stopped
	}
}

func (s *resourceSampler) run(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *resourceSampler) sample(ctx context.Context) {
	cpuSamples, err := cpuPercentFn(ctx)
	if err != nil {
		s.log.WithComponent("resource_sampler").WithError(err).Debug("failed to sample cpu usage")
		return
	}
	memStats, err := memoryStatsFn(ctx)
	if err != nil {
		s.log.WithComponent("resource_sampler").WithError(err).Debug("failed to sample memory usage")
		return
	}
	diskStats, err := diskUsageFn(ctx, s.diskPath)
	if err != nil {
		s.log.WithComponent("resource_sampler").WithError(err).Debug("failed to sample disk usage")
		return
	}

	cpuPct := 0.0
	if len(cpuSamples) > 0 {
		cpuPct = cpuSamples[0]
	}

	s.append(resourceSample{
		Timestamp:   time.Now(),
		CPUPercent:  cpuPct,
		MemoryUsed:  memStats.Used,
		MemoryTotal: memStats.Total,
		MemoryPct:   memStats.UsedPercent,
		DiskUsed:    diskStats.Used,
		DiskTotal:   diskStats.Total,
		DiskPct:     diskStats.UsedPercent,
	})
}

func (s *resourceSampler) append(sample resourceSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	if len(s.samples) > s.limit {
		s.samples = append([]resourceSample(nil), s.samples[len(s.samples)-s.limit:]...)
	}
}

func (s *resourceSampler) snapshot() []resourceSample {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]resourceSample, len(s.samples))
	copy(out, s.samples)
	return out
}

// latest returns the most recent sample, if any.
func (s *resourceSampler) latest() (resourceSample, bool) {
	if s == nil {
		return resourceSample{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return resourceSample{}, false
	}
	return s.samples[len(s.samples)-1], true
}
