package biomepruner

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// joinDeadline bounds how long a caller will wait on someone else's
// in-flight flood fill before giving up and returning the vanilla biome.
// The fill itself keeps running in the background regardless.
const joinDeadline = 5 * time.Second

// largeSpatialRadius is the coarse spatial-reuse radius stored for a LARGE
// fill outcome.
const largeSpatialRadius = 128

// Engine is the BiomePruner entry point: one Engine per loaded world,
// composing the layered region cache, the heightmap cache, the flood-fill
// dispatcher and an optional telemetry sink.
type Engine struct {
	cfg       Config
	log       *slog.Logger
	telemetry TelemetrySink

	regions   *RegionCache
	heightmap *HeightmapCache
	filler    *FloodFiller
}

// NewEngine builds an Engine from cfg, a host-provided surface-height
// accessor and an optional telemetry sink (nil installs a no-op sink).
func NewEngine(cfg Config, surface SurfaceHeight, telemetry TelemetrySink, log *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	e := &Engine{cfg: cfg, log: log, telemetry: telemetry}
	e.heightmap = NewHeightmapCache(cfg.GridSpacing, surface, telemetry, log)
	e.regions = NewRegionCache(&e.cfg, telemetry, log)
	e.filler = NewFloodFiller(&e.cfg, e.heightmap)
	return e
}

// Clear drops all cached state, used on world unload/reload.
func (e *Engine) Clear() {
	e.regions.clearAll()
	e.heightmap.clearAll()
}

// ModifiedBiome is the engine's sole entry point: given a queried column
// and the vanilla biome the host's generator produced there, returns either
// vanilla
// unchanged or the dominant-neighbour replacement for a micro-biome
// component. It never returns an error: sampler and surface-height errors
// are absorbed by falling back to vanilla (or to a fallback height). Panics
// are not recovered: a panic raised by the sampler or the surface-height
// accessor, or a nil sampler, is not absorbed.
func (e *Engine) ModifiedBiome(bx, by, bz int, vanilla BiomeId, sampler Sampler) BiomeId {
	if !e.cfg.Enabled {
		return vanilla
	}
	if !vanilla.Valid() {
		e.telemetry.Fault(FaultValidation, ErrInvalidBiome)
		return vanilla
	}
	if e.cfg.preserve(vanilla) || e.cfg.isCave(vanilla) {
		return vanilla
	}

	ctx := context.Background()
	correlation := newCorrelationID()
	start := time.Now()
	defer func() {
		e.telemetry.PerformanceEvent(PerformanceEvent{CorrelationID: correlation, Section: "ModifiedBiome", Duration: time.Since(start)})
	}()

	result, err := e.regions.GetOrCompute(bx, bz, func() (BiomeResult, error) {
		return e.resolve(ctx, bx, bz, vanilla, sampler, correlation)
	})
	if err != nil {
		return vanilla
	}
	if result.WasMicro {
		e.telemetry.DebugEvent(DebugEvent{CorrelationID: correlation, X: bx, Y: by, Z: bz, From: vanilla, To: result.Biome, RegionCells: result.RegionCells})
	}
	return result.Biome
}

// resolve runs the full cache-then-fill pipeline for one column, assuming
// the caller already holds the column's position-lock stripe.
func (e *Engine) resolve(ctx context.Context, bx, bz int, vanilla BiomeId, sampler Sampler, correlation string) (BiomeResult, error) {
	if mismatch, ok := e.regions.getMismatch(bx, bz, vanilla); ok && mismatch {
		return BiomeResult{Biome: vanilla}, nil
	}

	y0, err := e.heightmap.Height(bx, bz)
	if err != nil {
		e.telemetry.Fault(FaultHeight, ErrHeightFault)
		y0 = 64
	}
	bs, err := surfaceBiome(ctx, &e.cfg, sampler, bx, bz, y0)
	if err != nil {
		e.telemetry.Fault(FaultSampler, ErrSamplerFault)
		return BiomeResult{Biome: vanilla}, nil
	}
	if vanilla != bs {
		e.regions.putMismatch(bx, bz, vanilla, true)
		return BiomeResult{Biome: vanilla}, nil
	}

	if cached, ok := e.regions.getSurface(bx, bz); ok && (cached.Biome == vanilla || cached.Biome == bs) {
		return cached, nil
	}

	if e.regions.isKnownLargeArea(bx, bz, vanilla) {
		res := BiomeResult{Biome: vanilla}
		e.regions.putSurface(bx, bz, res)
		return res, nil
	}

	if sr, ok := e.regions.getSpatial(bx, bz, vanilla); ok {
		var res BiomeResult
		if sr.IsLarge {
			res = BiomeResult{Biome: vanilla}
			e.regions.markLargeArea(bx, bz, vanilla)
		} else {
			res = BiomeResult{Biome: sr.Replacement, WasMicro: true, RegionCells: sr.Cells}
		}
		e.regions.putSurface(bx, bz, res)
		return res, nil
	}

	fp := fingerprint{bx: int32(bx), bz: int32(bz), biome: vanilla.Key}
	fill, _, done := e.regions.dispatcher.run(fp, joinDeadline, func() (FloodFillResult, error) {
		return e.filler.Fill(ctx, sampler, bx, bz, vanilla)
	})
	if !done {
		e.telemetry.Fault(FaultDispatcherTimeout, ErrDispatcherTimeout)
		return BiomeResult{Biome: vanilla}, nil
	}

	if fill.IsLarge {
		e.regions.markLargeArea(bx, bz, vanilla)
		e.regions.putSpatial(bx, bz, vanilla, true, vanilla, largeSpatialRadius, 0)
		res := BiomeResult{Biome: vanilla}
		e.regions.putSurface(bx, bz, res)
		return res, nil
	}

	cells := len(fill.Positions)
	res := BiomeResult{Biome: fill.Replacement, WasMicro: true, RegionCells: cells}
	e.regions.putSurface(bx, bz, res)
	e.regions.putSpatial(bx, bz, vanilla, false, fill.Replacement, microSpatialRadius(cells), cells)
	return res, nil
}

// microSpatialRadius is floor(sqrt(|V|)), the coverage radius stored for a
// MICRO fill's spatial-reuse entry, floored at 1 so a single-cell component
// still seeds a usable reuse window.
func microSpatialRadius(componentSize int) int {
	r := int(math.Sqrt(float64(componentSize)))
	if r < 1 {
		r = 1
	}
	return r
}

// surfaceBiome samples the column's surface biome, walking upward from y0
// in fixed 8-block steps to skip past cave biomes, and guarding every
// sample against re-entry into the engine itself.
func surfaceBiome(ctx context.Context, cfg *Config, sampler Sampler, bx, bz, y0 int) (BiomeId, error) {
	nx, nz := floorShift(bx, biomeShift), floorShift(bz, biomeShift)
	var fallback BiomeId
	var fallbackErr error
	y := y0
	for i := 0; i < 20 && y <= 320; i++ {
		ny := floorShift(y, biomeShift)
		b, err := sampleWithGuard(ctx, sampler, nx, ny, nz)
		if i == 0 {
			fallback, fallbackErr = b, err
		}
		if err == nil && !cfg.isCave(b) {
			return b, nil
		}
		y += 8
	}
	return fallback, fallbackErr
}
