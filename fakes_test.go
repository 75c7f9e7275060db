package biomepruner

import "sync"

// gridSampler is a test Sampler backed by a function of biome-grid
// coordinates (nx, nz); ny is ignored unless byHeight is set, in which case
// the function also receives ny so tests can model cave/surface layering.
// It counts invocations per (nx, ny, nz) for coalescing assertions.
type gridSampler struct {
	mu       sync.Mutex
	counts   map[[3]int]int
	fn       func(nx, ny, nz int) (BiomeId, error)
}

func newGridSampler(fn func(nx, ny, nz int) (BiomeId, error)) *gridSampler {
	return &gridSampler{counts: make(map[[3]int]int), fn: fn}
}

func (s *gridSampler) Sample(nx, ny, nz int) (BiomeId, error) {
	s.mu.Lock()
	s.counts[[3]int{nx, ny, nz}]++
	s.mu.Unlock()
	return s.fn(nx, ny, nz)
}

func (s *gridSampler) callsFor(nx, ny, nz int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[[3]int{nx, ny, nz}]
}

func (s *gridSampler) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, c := range s.counts {
		total += c
	}
	return total
}

type constHeight struct{ y int }

func (c constHeight) SurfaceHeight(bx, bz int) (int, error) { return c.y, nil }

// recordingTelemetry is a TelemetrySink fake that records every callback for
// test assertions.
type recordingTelemetry struct {
	mu     sync.Mutex
	debug  []DebugEvent
	faults []FaultClass
}

func (r *recordingTelemetry) DebugEvent(e DebugEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debug = append(r.debug, e)
}

func (r *recordingTelemetry) PerformanceEvent(PerformanceEvent) {}

func (r *recordingTelemetry) Fault(class FaultClass, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, class)
}

func (r *recordingTelemetry) debugEvents() []DebugEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DebugEvent, len(r.debug))
	copy(out, r.debug)
	return out
}

func (r *recordingTelemetry) faultCount(class FaultClass) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.faults {
		if f == class {
			n++
		}
	}
	return n
}
