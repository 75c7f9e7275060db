package biomepruner

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DebugEvent describes one micro-biome replacement, emitted to the host's
// chat/telemetry layer.
type DebugEvent struct {
	CorrelationID string
	X, Y, Z       int
	From, To      BiomeId
	RegionCells   int
}

// PerformanceEvent carries a per-section timing, emitted to an optional
// performance sink.
type PerformanceEvent struct {
	CorrelationID string
	Section       string
	Duration      time.Duration
}

// FaultClass enumerates the engine's recoverable fault taxonomy.
type FaultClass int

const (
	FaultValidation FaultClass = iota
	FaultSampler
	FaultHeight
	FaultDispatcherTimeout
	FaultCacheValidity
)

func (f FaultClass) String() string {
	switch f {
	case FaultValidation:
		return "validation"
	case FaultSampler:
		return "sampler"
	case FaultHeight:
		return "height"
	case FaultDispatcherTimeout:
		return "dispatcher_timeout"
	case FaultCacheValidity:
		return "cache_validity"
	default:
		return "unknown"
	}
}

// TelemetrySink receives optional debug/performance/fault callbacks from
// the engine. A nil sink is valid everywhere; engines default to a no-op.
type TelemetrySink interface {
	DebugEvent(DebugEvent)
	PerformanceEvent(PerformanceEvent)
	Fault(class FaultClass, err error)
}

// noopTelemetry discards everything.
type noopTelemetry struct{}

func (noopTelemetry) DebugEvent(DebugEvent)             {}
func (noopTelemetry) PerformanceEvent(PerformanceEvent) {}
func (noopTelemetry) Fault(FaultClass, error)           {}

// SlogTelemetry is a default TelemetrySink backed by log/slog, rate
// limiting faults to at most one log line per class per interval.
type SlogTelemetry struct {
	log      *slog.Logger
	interval time.Duration
	debug    bool
	perf     bool

	mu       sync.Mutex
	lastLog  map[FaultClass]time.Time
}

// NewSlogTelemetry builds a rate-limited slog-backed sink. interval <= 0
// defaults to one second.
func NewSlogTelemetry(log *slog.Logger, interval time.Duration, debug, performanceLogging bool) *SlogTelemetry {
	if interval <= 0 {
		interval = time.Second
	}
	return &SlogTelemetry{log: log, interval: interval, debug: debug, perf: performanceLogging, lastLog: make(map[FaultClass]time.Time)}
}

func (s *SlogTelemetry) DebugEvent(ev DebugEvent) {
	if !s.debug || s.log == nil {
		return
	}
	s.log.Debug("biome smoothed",
		"correlation_id", ev.CorrelationID,
		"x", ev.X, "y", ev.Y, "z", ev.Z,
		"from", ev.From.Key, "to", ev.To.Key,
		"region_cells", ev.RegionCells,
	)
}

func (s *SlogTelemetry) PerformanceEvent(ev PerformanceEvent) {
	if !s.perf || s.log == nil {
		return
	}
	s.log.Info("biomepruner timing",
		"correlation_id", ev.CorrelationID,
		"section", ev.Section,
		"dur", ev.Duration.String(),
	)
}

func (s *SlogTelemetry) Fault(class FaultClass, err error) {
	if s.log == nil {
		return
	}
	now := time.Now()
	s.mu.Lock()
	last, ok := s.lastLog[class]
	if ok && now.Sub(last) < s.interval {
		s.mu.Unlock()
		return
	}
	s.lastLog[class] = now
	s.mu.Unlock()
	s.log.Warn("biomepruner fault absorbed", "class", class.String(), "err", err)
}

func newCorrelationID() string {
	return uuid.NewString()
}
