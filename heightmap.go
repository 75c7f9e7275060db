package biomepruner

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	heightmapChunkStripeCount = 128
	maxHeightSamples          = 100_000
	unsetHeight               = math.MinInt32

	batchCacheSize      = 8
	batchCacheFreshness = 100 * time.Millisecond
)

// chunkHeightGrid stores the (n+1)x(n+1) height samples for one 16-block
// tile at the configured grid spacing, n = 16/spacing. Cells publish their
// computed value lock-free via compare-and-swap against unsetHeight; only
// grid creation needs the chunk's striped RW lock.
type chunkHeightGrid struct {
	key     heightmapChunkKey
	spacing int
	n       int // samples per axis minus one

	cells []atomic.Int32 // flattened (n+1)*(n+1), unsetHeight until computed
}

func newChunkHeightGrid(key heightmapChunkKey, spacing int) *chunkHeightGrid {
	n := 16 / spacing
	g := &chunkHeightGrid{key: key, spacing: spacing, n: n}
	g.cells = make([]atomic.Int32, (n+1)*(n+1))
	for i := range g.cells {
		g.cells[i].Store(unsetHeight)
	}
	return g
}

func (g *chunkHeightGrid) index(localX, localZ int) int {
	return localZ*(g.n+1) + localX
}

func (g *chunkHeightGrid) sampleCount() int64 {
	return int64(len(g.cells))
}

type batchEntry struct {
	height   int
	storedAt time.Time
}

// HeightmapCache is a sparse chunk-aligned heightmap: a concurrent map of
// 16-block chunk grids with bilinear interpolation between grid corners,
// plus a small bounded batch cache to absorb locality bursts from a single
// caller.
type HeightmapCache struct {
	log       *slog.Logger
	telemetry TelemetrySink
	spacing   int
	surface   SurfaceHeight

	chunkStripes [heightmapChunkStripeCount]sync.RWMutex
	chunks       *lru.Cache[heightmapChunkKey, *chunkHeightGrid]

	liveSamples atomic.Int64

	batchPool sync.Pool // *lru.Cache[int64, batchEntry]
}

// NewHeightmapCache builds a HeightmapCache. spacing must divide 16 (the
// caller, Config.withDefaults, guarantees this). telemetry receives
// FaultHeight whenever the host's SurfaceHeight errors and computeDirect
// falls back to the deterministic estimator.
func NewHeightmapCache(spacing int, surface SurfaceHeight, telemetry TelemetrySink, log *slog.Logger) *HeightmapCache {
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	h := &HeightmapCache{log: log, telemetry: telemetry, spacing: spacing, surface: surface}
	chunks, _ := lru.NewWithEvict[heightmapChunkKey, *chunkHeightGrid](8192, func(key heightmapChunkKey, grid *chunkHeightGrid) {
		h.liveSamples.Add(-grid.sampleCount())
		if h.log != nil {
			h.log.Debug("evicted heightmap chunk", "x", key.X, "z", key.Z)
		}
	})
	h.chunks = chunks
	h.batchPool = sync.Pool{
		New: func() any {
			c, _ := lru.New[int64, batchEntry](batchCacheSize)
			return c
		},
	}
	return h
}

func (h *HeightmapCache) chunkStripe(key heightmapChunkKey) *sync.RWMutex {
	idx := strideIndex(heightmapChunkStripeHash(key), heightmapChunkStripeCount)
	return &h.chunkStripes[idx]
}

// Height returns the interpolated surface height at (bx, bz), matching the
// host's uncached SurfaceHeight exactly at grid corners.
func (h *HeightmapCache) Height(bx, bz int) (int, error) {
	batch, _ := h.batchPool.Get().(*lru.Cache[int64, batchEntry])
	defer h.batchPool.Put(batch)

	packed := hashInts(int64(bx), int64(bz))
	if entry, ok := batch.Get(int64(packed)); ok {
		if time.Since(entry.storedAt) <= batchCacheFreshness {
			return entry.height, nil
		}
	}

	s := h.spacing
	gx0 := floorDiv(bx, s)
	gz0 := floorDiv(bz, s)

	h00, err := h.gridHeight(gx0, gz0)
	if err != nil {
		return 0, err
	}
	h10, err := h.gridHeight(gx0+1, gz0)
	if err != nil {
		return 0, err
	}
	h01, err := h.gridHeight(gx0, gz0+1)
	if err != nil {
		return 0, err
	}
	h11, err := h.gridHeight(gx0+1, gz0+1)
	if err != nil {
		return 0, err
	}

	fx := float64(bx-gx0*s) / float64(s)
	fz := float64(bz-gz0*s) / float64(s)

	corners := mgl64.Vec4{float64(h00), float64(h10), float64(h01), float64(h11)}
	weights := mgl64.Vec4{
		(1 - fx) * (1 - fz),
		fx * (1 - fz),
		(1 - fx) * fz,
		fx * fz,
	}
	result := int(math.Round(corners.Dot(weights)))

	batch.Add(int64(packed), batchEntry{height: result, storedAt: time.Now()})
	return result, nil
}

// gridHeight resolves the owning chunk and local indices for a grid-unit
// corner (gx, gz) and returns its cached or freshly-computed height.
func (h *HeightmapCache) gridHeight(gx, gz int) (int, error) {
	s := h.spacing
	blockX, blockZ := gx*s, gz*s
	chunkKey := heightmapChunkKeyFor(blockX, blockZ)
	chunkOriginX, chunkOriginZ := int(chunkKey.X)*16, int(chunkKey.Z)*16
	localX := (blockX - chunkOriginX) / s
	localZ := (blockZ - chunkOriginZ) / s

	n := 16 / s
	if localX < 0 || localX > n || localZ < 0 || localZ > n {
		return h.computeDirect(blockX, blockZ)
	}

	grid := h.chunkFor(chunkKey, s)
	idx := grid.index(localX, localZ)
	cell := &grid.cells[idx]

	if v := cell.Load(); v != unsetHeight {
		return int(v), nil
	}

	computed, err := h.computeDirect(blockX, blockZ)
	if err != nil {
		return 0, err
	}
	if cell.CompareAndSwap(unsetHeight, int32(computed)) {
		return computed, nil
	}
	// Lost the race: adopt the winner's value.
	return int(cell.Load()), nil
}

func (h *HeightmapCache) chunkFor(key heightmapChunkKey, spacing int) *chunkHeightGrid {
	stripe := h.chunkStripe(key)
	stripe.RLock()
	if g, ok := h.chunks.Get(key); ok {
		stripe.RUnlock()
		return g
	}
	stripe.RUnlock()

	stripe.Lock()
	defer stripe.Unlock()
	if g, ok := h.chunks.Get(key); ok {
		return g
	}
	g := newChunkHeightGrid(key, spacing)
	h.chunks.Add(key, g)
	h.liveSamples.Add(g.sampleCount())
	h.evictIfNeeded()
	return g
}

func (h *HeightmapCache) evictIfNeeded() {
	for h.liveSamples.Load() > maxHeightSamples && h.chunks.Len() > 1 {
		h.chunks.RemoveOldest()
	}
}

// computeDirect calls the external SurfaceHeight function, falling back to
// a cheap deterministic estimator on failure.
func (h *HeightmapCache) computeDirect(bx, bz int) (int, error) {
	if h.surface != nil {
		y, err := h.surface.SurfaceHeight(bx, bz)
		if err == nil {
			return y, nil
		}
		h.telemetry.Fault(FaultHeight, ErrHeightFault)
	}
	return fallbackHeight(bx, bz), nil
}

// fallbackHeight is a cheap, deterministic pure function of (x,z) used when
// the host's surface height generator is unavailable or fails.
func fallbackHeight(x, z int) int {
	return 64 + int(math.Round(10*math.Sin(0.01*float64(x))+10*math.Cos(0.01*float64(z))))
}

// clearAll drops all cached chunks.
func (h *HeightmapCache) clearAll() {
	h.chunks.Purge()
	h.liveSamples.Store(0)
}
