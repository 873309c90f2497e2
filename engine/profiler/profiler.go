package profiler

import (
	"log"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Section accumulates the time spent in one named process between two ticks.
type Section struct {
	Name  string
	Calls int
	Total time.Duration
	Max   time.Duration
}

// Profiler tracks frame rate, memory statistics and named process sections
// for performance monitoring. Outputs stats to the log at a configurable
// interval.
type Profiler struct {
	mu             *sync.Mutex
	log            logr.Logger
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	open     map[string]time.Time
	sections map[string]*Section
	now      func() time.Time
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options configuring the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		mu:             &sync.Mutex{},
		log:            logr.Discard(),
		frameCount:     0,
		lastTime:       time.Now(),
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
		open:           make(map[string]time.Time),
		sections:       make(map[string]*Section),
		now:            time.Now,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// BeginProcess marks the start of a named section. A nil profiler ignores the call.
//
// Parameters:
//   - name: the section name, such as "Shadow Map Population"
func (p *Profiler) BeginProcess(name string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open[name] = p.now()
}

// EndProcess closes a section opened by BeginProcess and adds its duration to
// the section totals.
//
// Parameters:
//   - name: the section name
//
// Returns:
//   - time.Duration: the time spent, or 0 if the section was not open
func (p *Profiler) EndProcess(name string) time.Duration {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	start, ok := p.open[name]
	if !ok {
		return 0
	}
	delete(p.open, name)
	d := p.now().Sub(start)
	s := p.sections[name]
	if s == nil {
		s = &Section{Name: name}
		p.sections[name] = s
	}
	s.Calls++
	s.Total += d
	s.Max = max(s.Max, d)
	return d
}

// Sections returns the section totals since the last logged tick, sorted by name.
//
// Returns:
//   - []Section: the sections
func (p *Profiler) Sections() []Section {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Section, 0, len(p.sections))
	for _, s := range p.sections {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed >= p.updateInterval {
		fps := float64(p.frameCount) / elapsed.Seconds()

		runtime.ReadMemStats(&p.memStats)
		// Alloc: Bytes of allocated heap objects (live memory)
		// TotalAlloc: Cumulative bytes allocated for heap objects (increases forever, tracks churn)
		// Sys: Total bytes of memory obtained from the OS (actual process footprint)
		allocMB := float64(p.memStats.Alloc) / 1024 / 1024
		sysMB := float64(p.memStats.Sys) / 1024 / 1024

		// Calculate allocation rate (MB/sec)
		allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
		allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

		// Calculate GC pause stats (last pause and max recent pause)
		gcCount := p.memStats.NumGC
		var lastPauseUs, maxPauseUs uint64
		if gcCount > 0 {
			// PauseNs is a circular buffer of last 256 GC pauses
			lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

			// Find max pause since last tick
			startIdx := p.lastGCCount
			if gcCount-startIdx > 256 {
				startIdx = gcCount - 256
			}
			for i := startIdx; i < gcCount; i++ {
				pause := p.memStats.PauseNs[i%256] / 1000
				if pause > maxPauseUs {
					maxPauseUs = pause
				}
			}
		}

		log.Printf("[Profiler] FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
			fps, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)

		for _, s := range p.Sections() {
			p.log.Info("section", "name", s.Name, "calls", s.Calls, "total", s.Total, "max", s.Max)
		}
		p.mu.Lock()
		clear(p.sections)
		p.mu.Unlock()

		p.frameCount = 0
		p.lastTime = currentTime
		p.lastGCCount = gcCount
		p.lastTotalAlloc = p.memStats.TotalAlloc
		return true
	}

	return false
}
