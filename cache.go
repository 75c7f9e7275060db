package biomepruner

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	regionShardCount  = 256
	positionLockCount = 4096
)

// regionShard is one of the 256 stripes protecting region creation and
// directory lookups. Each shard owns a disjoint slice of the keyspace
// (picked by a stable hash of the region key), so two goroutines touching
// different shards never contend.
type regionShard struct {
	mu sync.Mutex
	m  map[RegionKey]*region
}

// RegionCache is the layered memo sitting in front of the flood-fill
// dispatcher: per-column surface results, biome-mismatch memos, large-area
// markers, and spatial result reuse, all partitioned into 512x512 regions
// for cache organisation and LRU eviction.
type RegionCache struct {
	log       *slog.Logger
	telemetry TelemetrySink
	cfg       *Config

	shards [regionShardCount]regionShard

	positionLocks [positionLockCount]sync.Mutex

	maxBytes  int64
	liveBytes atomic.Int64
	regionGen atomic.Int64 // monotonic clock substitute for last-access ordering

	dispatcher *dispatcher
}

// NewRegionCache builds a RegionCache. cfg is read for MaxCacheMemoryMB at
// construction time; later config changes require a new cache, consistent
// with the engine being reconstructed wholesale on config reload. telemetry
// receives CacheValidityFault when an invalid cached entry is stripped; the
// embedded dispatcher is given only the logger.
func NewRegionCache(cfg *Config, telemetry TelemetrySink, log *slog.Logger) *RegionCache {
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	rc := &RegionCache{log: log, telemetry: telemetry, cfg: cfg}
	rc.maxBytes = int64(cfg.MaxCacheMemoryMB) * 1024 * 1024
	for i := range rc.shards {
		rc.shards[i].m = make(map[RegionKey]*region)
	}
	rc.dispatcher = newDispatcher(log)
	return rc
}

func (rc *RegionCache) shardFor(key RegionKey) *regionShard {
	idx := strideIndex(regionStripeHash(key), regionShardCount)
	return &rc.shards[idx]
}

func (rc *RegionCache) positionStripe(bx, bz int) *sync.Mutex {
	idx := strideIndex(positionStripeHash(bx, bz), positionLockCount)
	return &rc.positionLocks[idx]
}

// regionFor returns the region for the block coordinate, creating and
// registering it on first touch.
func (rc *RegionCache) regionFor(bx, bz int) *region {
	key := regionKeyFor(bx, bz)
	shard := rc.shardFor(key)
	shard.mu.Lock()
	r, ok := shard.m[key]
	if !ok {
		r = newRegion(key)
		shard.m[key] = r
	}
	shard.mu.Unlock()
	r.touch(rc.regionGen.Add(1))
	return r
}

// GetOrCompute atomically invokes computer exactly once per (bx,bz) column
// at a time: the position-lock stripe serialises concurrent callers for the
// same column so that mismatch/surface population races never occur.
// computer is expected to consult and populate the layered caches itself
// (see smoother.go); GetOrCompute only provides the serialisation.
func (rc *RegionCache) GetOrCompute(bx, bz int, computer func() (BiomeResult, error)) (BiomeResult, error) {
	stripe := rc.positionStripe(bx, bz)
	stripe.Lock()
	defer stripe.Unlock()
	return computer()
}

// --- surface cache ---

func (rc *RegionCache) getSurface(bx, bz int) (BiomeResult, bool) {
	r := rc.regionFor(bx, bz)
	key := surfaceKey(columnKey(bx, bz))
	r.mu.Lock()
	res, ok := r.surface[key]
	r.mu.Unlock()
	if !ok {
		return BiomeResult{}, false
	}
	if !res.Biome.Valid() {
		rc.removeSurface(bx, bz)
		rc.telemetry.Fault(FaultCacheValidity, ErrCacheValidityFault)
		return BiomeResult{}, false
	}
	return res, true
}

func (rc *RegionCache) putSurface(bx, bz int, res BiomeResult) {
	r := rc.regionFor(bx, bz)
	key := surfaceKey(columnKey(bx, bz))
	r.mu.Lock()
	_, existed := r.surface[key]
	r.surface[key] = res
	r.mu.Unlock()
	if !existed {
		rc.liveBytes.Add(48)
		rc.maybeEvict()
	}
}

func (rc *RegionCache) removeSurface(bx, bz int) {
	r := rc.regionFor(bx, bz)
	key := surfaceKey(columnKey(bx, bz))
	r.mu.Lock()
	if _, ok := r.surface[key]; ok {
		delete(r.surface, key)
		r.mu.Unlock()
		rc.liveBytes.Add(-48)
		return
	}
	r.mu.Unlock()
}

// --- mismatch memo ---

func (rc *RegionCache) getMismatch(bx, bz int, biome BiomeId) (bool, bool) {
	r := rc.regionFor(bx, bz)
	key := mismatchKey{column: columnKey(bx, bz), biome: biome.Key}
	r.mu.Lock()
	v, ok := r.mismatch[key]
	r.mu.Unlock()
	return v, ok
}

func (rc *RegionCache) putMismatch(bx, bz int, biome BiomeId, value bool) {
	r := rc.regionFor(bx, bz)
	key := mismatchKey{column: columnKey(bx, bz), biome: biome.Key}
	r.mu.Lock()
	_, existed := r.mismatch[key]
	r.mismatch[key] = value
	r.mu.Unlock()
	if !existed {
		rc.liveBytes.Add(40)
		rc.maybeEvict()
	}
}

// --- spatial reuse ---

// spatialGridFor chooses the smallest grid alignment G such that radius < G/2.
func spatialGridFor(radius int) int {
	for _, g := range spatialGridSizes {
		if radius < g/2 {
			return g
		}
	}
	return spatialGridSizes[len(spatialGridSizes)-1]
}

func gridAlign(v, grid int) int32 {
	if v >= 0 {
		return int32((v / grid) * grid)
	}
	return int32(-(((-v + grid - 1) / grid) * grid))
}

func (rc *RegionCache) putSpatial(bx, bz int, biome BiomeId, isLarge bool, replacement BiomeId, radius, cells int) {
	grid := spatialGridFor(radius)
	gx := gridAlign(bx, grid)
	gz := gridAlign(bz, grid)
	r := rc.regionFor(bx, bz)
	key := spatialKey{grid: grid, gx: gx, gz: gz, biome: biome.Key}
	entry := SpatialResult{IsLarge: isLarge, Replacement: replacement, Radius: radius, Cells: cells, storedAt: time.Now()}
	r.mu.Lock()
	_, existed := r.spatial[key]
	r.spatial[key] = entry
	r.mu.Unlock()
	if !existed {
		rc.liveBytes.Add(72)
		rc.maybeEvict()
	}
}

// getSpatial probes the three gridded keys in order, smallest grid first,
// and returns the first non-stale entry whose Chebyshev distance from the
// query to the grid center is within its radius.
func (rc *RegionCache) getSpatial(bx, bz int, biome BiomeId) (SpatialResult, bool) {
	r := rc.regionFor(bx, bz)
	now := time.Now()
	for _, grid := range spatialGridSizes {
		gx := gridAlign(bx, grid)
		gz := gridAlign(bz, grid)
		key := spatialKey{grid: grid, gx: gx, gz: gz, biome: biome.Key}
		r.mu.Lock()
		entry, ok := r.spatial[key]
		r.mu.Unlock()
		if !ok {
			continue
		}
		if entry.expired(now) {
			continue
		}
		if chebyshev(bx, bz, int(gx), int(gz)) <= entry.Radius {
			return entry, true
		}
	}
	return SpatialResult{}, false
}

func chebyshev(x1, z1, x2, z2 int) int {
	dx := abs(x1 - x2)
	dz := abs(z1 - z2)
	if dx > dz {
		return dx
	}
	return dz
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// --- large-area anchors ---

func (rc *RegionCache) markLargeArea(bx, bz int, biome BiomeId) {
	r := rc.regionFor(bx, bz)
	r.mu.Lock()
	centers := r.largeArea[biome.Key]
	for _, c := range centers {
		if int(c[0]) == bx && int(c[1]) == bz {
			r.mu.Unlock()
			return
		}
	}
	centers = append(centers, [2]int32{int32(bx), int32(bz)})
	sort.Slice(centers, func(i, j int) bool {
		if centers[i][0] != centers[j][0] {
			return centers[i][0] < centers[j][0]
		}
		return centers[i][1] < centers[j][1]
	})
	r.largeArea[biome.Key] = centers
	r.mu.Unlock()
	rc.liveBytes.Add(16)
	rc.maybeEvict()
}

func (rc *RegionCache) isKnownLargeArea(bx, bz int, biome BiomeId) bool {
	r := rc.regionFor(bx, bz)
	r.mu.Lock()
	centers := r.largeArea[biome.Key]
	r.mu.Unlock()
	for _, c := range centers {
		if chebyshev(bx, bz, int(c[0]), int(c[1])) <= largeAreaRadius {
			return true
		}
	}
	return false
}

// clearAll drops all regions and the dispatcher's retained flood-fill
// results. Used on a world-unload hook. Flood fills still running are not
// cancelled: each finishes in the background and stores its result in the
// emptied dispatcher map.
func (rc *RegionCache) clearAll() {
	for i := range rc.shards {
		s := &rc.shards[i]
		s.mu.Lock()
		s.m = make(map[RegionKey]*region)
		s.mu.Unlock()
	}
	rc.liveBytes.Store(0)
	rc.dispatcher.cancelAll()
	if rc.log != nil {
		rc.log.Debug("region cache cleared")
	}
}

// maybeEvict evicts LRU regions, layer by layer (spatial -> surface ->
// large-area -> mismatch) until the aggregate estimate is back under
// budget. The last remaining region is never evicted.
func (rc *RegionCache) maybeEvict() {
	if rc.liveBytes.Load() <= rc.maxBytes {
		return
	}
	for rc.liveBytes.Load() > rc.maxBytes {
		victim, total := rc.findLRU()
		if victim == nil {
			return
		}
		if total <= 1 {
			return
		}
		freed := rc.evictLayer(victim)
		if freed == 0 {
			rc.removeRegion(victim.key)
			if rc.log != nil {
				rc.log.Debug("evicted region", "x", victim.key.X, "z", victim.key.Z)
			}
			continue
		}
		rc.liveBytes.Add(-freed)
	}
}

func (rc *RegionCache) findLRU() (*region, int) {
	var victim *region
	var victimTime int64 = 1<<63 - 1
	count := 0
	for i := range rc.shards {
		s := &rc.shards[i]
		s.mu.Lock()
		for _, r := range s.m {
			count++
			if r.lastAccessNanos < victimTime {
				victimTime = r.lastAccessNanos
				victim = r
			}
		}
		s.mu.Unlock()
	}
	return victim, count
}

// evictLayer clears the first non-empty layer (in committed order) of the
// victim region and returns the bytes freed.
func (rc *RegionCache) evictLayer(r *region) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.spatial); n > 0 {
		freed := int64(n) * 72
		r.spatial = make(map[spatialKey]SpatialResult)
		return freed
	}
	if n := len(r.surface); n > 0 {
		freed := int64(n) * 48
		r.surface = make(map[surfaceKey]BiomeResult)
		return freed
	}
	if len(r.largeArea) > 0 {
		var freed int64
		for _, centers := range r.largeArea {
			freed += int64(len(centers)) * 16
		}
		r.largeArea = make(map[string][][2]int32)
		return freed
	}
	if n := len(r.mismatch); n > 0 {
		freed := int64(n) * 40
		r.mismatch = make(map[mismatchKey]bool)
		return freed
	}
	return 0
}

func (rc *RegionCache) removeRegion(key RegionKey) {
	shard := rc.shardFor(key)
	shard.mu.Lock()
	delete(shard.m, key)
	shard.mu.Unlock()
}
