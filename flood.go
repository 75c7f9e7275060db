package biomepruner

import (
	"context"

	"github.com/brentp/intintmap"
)

// neighborDirs fixes the 4-cardinal iteration order required for
// determinism: +x, -x, +z, -z.
var neighborDirs = [4][2]int32{
	{1, 0},
	{-1, 0},
	{0, 1},
	{0, -1},
}

// FloodFiller runs the bounded BFS with early bailout, seeded at a single
// biome-coordinate cell and bounded by the configured micro-biome
// threshold.
type FloodFiller struct {
	cfg       *Config
	heightmap *HeightmapCache
}

// NewFloodFiller builds a FloodFiller sharing the engine's config and
// heightmap cache.
func NewFloodFiller(cfg *Config, heightmap *HeightmapCache) *FloodFiller {
	return &FloodFiller{cfg: cfg, heightmap: heightmap}
}

// Fill runs the BFS seeded at (bx, bz) for target, returning either a LARGE
// result (component exceeds the threshold) or a MICRO result carrying the
// visited set and its dominant-neighbour replacement.
func (f *FloodFiller) Fill(ctx context.Context, sampler Sampler, bx, bz int, target BiomeId) (FloodFillResult, error) {
	threshold := f.cfg.threshold()
	seed := toBiomeCoord(bx, bz)

	// visited is the hot-path membership set: an open-addressed int64->int64
	// map (brentp/intintmap) keyed on the packed biome coordinate, avoiding
	// Go map's pointer-chasing overhead on the BFS's inner loop. order keeps
	// the insertion list so the final component can be materialised without
	// depending on the map's iteration behaviour.
	visited := intintmap.New(64, 0.75)
	var order []biomeCoord

	visited.Put(packBiomeCoord(seed), 1)
	order = append(order, seed)

	queue := []biomeCoord{seed}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		for _, d := range neighborDirs {
			q := biomeCoord{X: p.X + d[0], Z: p.Z + d[1]}
			key := packBiomeCoord(q)
			if _, ok := visited.Get(key); ok {
				continue
			}

			qbx, qbz := q.toBlock()
			b, err := f.surfaceAt(ctx, sampler, qbx, qbz)
			if err != nil {
				// SamplerFault: skip this neighbour, continue the fill.
				continue
			}
			if b != target {
				continue
			}

			visited.Put(key, 1)
			order = append(order, q)
			queue = append(queue, q)

			visitedCount := len(order)
			queueLen := len(queue)
			if bailout(visitedCount, queueLen, threshold) {
				return f.large(bx, bz, target), nil
			}
		}
	}

	// Queue exhausted within threshold: MICRO.
	positions := make(map[int64]struct{}, len(order))
	for _, c := range order {
		positions[packBiomeCoord(c)] = struct{}{}
	}
	replacement, err := selectDominantNeighbor(ctx, f.cfg, f.heightmap, sampler, order, target)
	if err != nil || !replacement.Valid() {
		replacement = target
	}
	return FloodFillResult{Positions: positions, IsLarge: false, Replacement: replacement}, nil
}

// bailout implements three deterministic early-exit heuristics, evaluated
// after each neighbour insertion.
func bailout(visitedCount, queueLen, threshold int) bool {
	t := float64(threshold)
	if visitedCount > threshold {
		return true
	}
	if float64(visitedCount) > 0.8*t && float64(queueLen) > 0.5*t {
		return true
	}
	if float64(visitedCount) > 0.95*t && queueLen > visitedCount {
		return true
	}
	return false
}

func (f *FloodFiller) large(bx, bz int, target BiomeId) FloodFillResult {
	return FloodFillResult{IsLarge: true, Replacement: target}
}

func (f *FloodFiller) surfaceAt(ctx context.Context, sampler Sampler, bx, bz int) (BiomeId, error) {
	y0, err := f.heightmap.Height(bx, bz)
	if err != nil {
		y0 = 64
	}
	return surfaceBiome(ctx, f.cfg, sampler, bx, bz, y0)
}
