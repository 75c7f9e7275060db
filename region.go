package biomepruner

import (
	"sync"
	"time"
)

// BiomeResult is the immutable outcome of the surface/flood-fill pipeline
// for one column: either the vanilla biome (unchanged) or a micro-biome
// replacement.
type BiomeResult struct {
	Biome    BiomeId
	WasMicro bool
	// RegionCells is the visited micro-component's cell count when WasMicro
	// is true; zero otherwise. Carried into DebugEvent.RegionCells.
	RegionCells int
}

// spatialTTL is the validity window for a SpatialResult.
const spatialTTL = 30 * time.Second

// SpatialResult is a cached fill outcome attached to a grid-aligned
// position, covering queries within a Chebyshev radius.
type SpatialResult struct {
	IsLarge     bool
	Replacement BiomeId
	Radius      int
	Cells       int // the originating micro component's cell count; 0 for IsLarge
	storedAt    time.Time
}

func (s SpatialResult) expired(now time.Time) bool {
	return now.Sub(s.storedAt) > spatialTTL
}

// spatialGridSizes are the grid alignments probed by the spatial-reuse
// cache, smallest first.
var spatialGridSizes = [...]int{32, 64, 128}

// largeAreaRadius is the Chebyshev coverage radius of a large-area anchor.
const largeAreaRadius = 32

type spatialKey struct {
	grid   int
	gx, gz int32
	biome  string
}

type mismatchKey struct {
	column uint32
	biome  string
}

type surfaceKey uint32 // columnKey

// region is a 512x512 block tile, the unit of cache organisation and
// eviction. All sub-maps are guarded by a single mutex: columns within one
// region are rarely contended enough to warrant finer striping than the
// position locks already provide upstream (see cache.go).
type region struct {
	key RegionKey

	mu sync.Mutex

	surface   map[surfaceKey]BiomeResult
	mismatch  map[mismatchKey]bool
	spatial   map[spatialKey]SpatialResult
	largeArea map[string][][2]int32 // biome key -> sorted (cx, cz) centers, block coords

	lastAccessNanos int64
}

func newRegion(key RegionKey) *region {
	return &region{
		key:       key,
		surface:   make(map[surfaceKey]BiomeResult),
		mismatch:  make(map[mismatchKey]bool),
		spatial:   make(map[spatialKey]SpatialResult),
		largeArea: make(map[string][][2]int32),
	}
}

func (r *region) touch(now int64) {
	r.lastAccessNanos = now
}

// estimatedBytes gives a cheap structural occupancy estimate of the region,
// charging each entry the same fixed size that RegionCache adds to its
// liveBytes counter. The cache's memory-bound eviction reads that counter
// and does not call this method. The sizes do not reflect Go's actual
// allocator behaviour.
func (r *region) estimatedBytes() int64 {
	const (
		surfaceEntryBytes  = 48
		mismatchEntryBytes = 40
		spatialEntryBytes  = 72
		largeAreaCenterB   = 16
	)
	r.mu.Lock()
	defer r.mu.Unlock()
	total := int64(len(r.surface)) * surfaceEntryBytes
	total += int64(len(r.mismatch)) * mismatchEntryBytes
	total += int64(len(r.spatial)) * spatialEntryBytes
	for _, centers := range r.largeArea {
		total += int64(len(centers)) * largeAreaCenterB
	}
	return total
}
