package biomepruner

import (
	"log/slog"
	"testing"
	"time"
)

func newTestRegionCache(t *testing.T, maxMB int) *RegionCache {
	t.Helper()
	cfg := (&Config{MaxCacheMemoryMB: maxMB}).withDefaults()
	return NewRegionCache(&cfg, nil, slog.Default())
}

func TestRegionCacheSurfaceRoundTrip(t *testing.T) {
	rc := newTestRegionCache(t, 512)
	res := BiomeResult{Biome: BiomeId{Key: "minecraft:forest"}}
	rc.putSurface(1, 2, res)
	got, ok := rc.getSurface(1, 2)
	if !ok {
		t.Fatalf("expected surface hit")
	}
	if got != res {
		t.Fatalf("expected %+v, got %+v", res, got)
	}
}

func TestRegionCacheSurfaceSelfHealsInvalidEntry(t *testing.T) {
	rc := newTestRegionCache(t, 512)
	rc.putSurface(1, 2, BiomeResult{})
	if _, ok := rc.getSurface(1, 2); ok {
		t.Fatalf("expected invalid cached biome to be treated as a miss")
	}
	if _, ok := rc.getSurface(1, 2); ok {
		t.Fatalf("expected entry to have been removed on first read")
	}
}

func TestRegionCacheReportsCacheValidityFault(t *testing.T) {
	cfg := (&Config{MaxCacheMemoryMB: 512}).withDefaults()
	telemetry := &recordingTelemetry{}
	rc := NewRegionCache(&cfg, telemetry, slog.Default())

	rc.putSurface(1, 2, BiomeResult{})
	rc.getSurface(1, 2)

	if n := telemetry.faultCount(FaultCacheValidity); n != 1 {
		t.Fatalf("expected exactly one CacheValidityFault report, got %d", n)
	}
}

func TestRegionCacheMismatchMemo(t *testing.T) {
	rc := newTestRegionCache(t, 512)
	biome := BiomeId{Key: "minecraft:plains"}
	if _, ok := rc.getMismatch(0, 0, biome); ok {
		t.Fatalf("expected no mismatch entry yet")
	}
	rc.putMismatch(0, 0, biome, true)
	v, ok := rc.getMismatch(0, 0, biome)
	if !ok || !v {
		t.Fatalf("expected mismatch memo to read back true")
	}
}

func TestRegionCacheSpatialReuseSoundness(t *testing.T) {
	rc := newTestRegionCache(t, 512)
	biome := BiomeId{Key: "minecraft:forest"}
	// radius 5 < 32/2 selects the 32-grid; (100,100) aligns down to (96,96).
	rc.putSpatial(100, 100, biome, false, BiomeId{Key: "minecraft:plains"}, 5, 9)

	if _, ok := rc.getSpatial(100+20, 100, biome); ok {
		t.Fatalf("expected query outside radius to miss")
	}
	sr, ok := rc.getSpatial(98, 100, biome)
	if !ok {
		t.Fatalf("expected query within radius of the aligned grid center to hit")
	}
	if sr.Replacement.Key != "minecraft:plains" {
		t.Fatalf("expected cached replacement, got %+v", sr.Replacement)
	}
}

func TestRegionCacheSpatialReuseExpires(t *testing.T) {
	rc := newTestRegionCache(t, 512)
	biome := BiomeId{Key: "minecraft:forest"}
	r := rc.regionFor(0, 0)
	key := spatialKey{grid: spatialGridFor(5), gx: 0, gz: 0, biome: biome.Key}
	r.mu.Lock()
	r.spatial[key] = SpatialResult{Radius: 5, storedAt: time.Now().Add(-time.Hour)}
	r.mu.Unlock()

	if _, ok := rc.getSpatial(1, 1, biome); ok {
		t.Fatalf("expected stale spatial entry to be ignored")
	}
}

func TestRegionCacheLargeAreaAnchor(t *testing.T) {
	rc := newTestRegionCache(t, 512)
	biome := BiomeId{Key: "minecraft:forest"}
	rc.markLargeArea(100, 100, biome)

	if !rc.isKnownLargeArea(108, 108, biome) {
		t.Fatalf("expected point within Chebyshev radius 32 to be covered")
	}
	if rc.isKnownLargeArea(200, 200, biome) {
		t.Fatalf("expected distant point to be uncovered")
	}
}

func TestRegionCacheGetOrComputeRunsComputerOnEveryCall(t *testing.T) {
	rc := newTestRegionCache(t, 512)
	calls := 0
	for i := 0; i < 5; i++ {
		_, err := rc.GetOrCompute(1, 1, func() (BiomeResult, error) {
			calls++
			return BiomeResult{Biome: BiomeId{Key: "minecraft:plains"}}, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 5 {
		t.Fatalf("expected computer to run once per call (caching lives in the computer), got %d", calls)
	}
}

func TestRegionCacheEvictionNeverDropsLastRegion(t *testing.T) {
	rc := newTestRegionCache(t, 0) // withDefaults turns 0 MB into the 512 MB default; overridden below
	rc.maxBytes = 0
	rc.putSurface(0, 0, BiomeResult{Biome: BiomeId{Key: "minecraft:plains"}})
	rc.maybeEvict()
	if _, count := rc.findLRU(); count != 1 {
		t.Fatalf("expected the single region to survive eviction, got count %d", count)
	}
}

func TestRegionCacheEvictsLayeredOrder(t *testing.T) {
	rc := newTestRegionCache(t, 512)
	r := rc.regionFor(0, 0)
	r.mu.Lock()
	r.spatial[spatialKey{grid: 32, gx: 0, gz: 0, biome: "a"}] = SpatialResult{storedAt: time.Now()}
	r.surface[surfaceKey(1)] = BiomeResult{Biome: BiomeId{Key: "minecraft:plains"}}
	r.mu.Unlock()

	freed := rc.evictLayer(r)
	if freed == 0 {
		t.Fatalf("expected eviction to free spatial layer first")
	}
	r.mu.Lock()
	spatialLeft := len(r.spatial)
	surfaceLeft := len(r.surface)
	r.mu.Unlock()
	if spatialLeft != 0 {
		t.Fatalf("expected spatial layer cleared first, got %d remaining", spatialLeft)
	}
	if surfaceLeft != 1 {
		t.Fatalf("expected surface layer untouched by the first eviction pass, got %d", surfaceLeft)
	}
}

func TestRegionCacheClearAll(t *testing.T) {
	rc := newTestRegionCache(t, 512)
	rc.putSurface(0, 0, BiomeResult{Biome: BiomeId{Key: "minecraft:plains"}})
	rc.clearAll()
	if _, ok := rc.getSurface(0, 0); ok {
		t.Fatalf("expected clearAll to drop all cached state")
	}
}
