package biomepruner

import "context"

// biomeTally accumulates perimeter sample counts for one candidate
// replacement biome during dominant-neighbour selection.
type biomeTally struct {
	all   int
	valid int
}

// selectDominantNeighbor picks the replacement biome for a micro component:
// given the component's cells (in visitation order) and its target biome,
// it samples the component's 4-cardinal perimeter and returns the biome
// occurring most often there, preferring biomes that pass the
// valid-replacement predicate. Samples equal to target are never tallied;
// target is returned only as the degenerate fallback when no other biome
// borders the component (or cells is empty). That fallback is not logged.
func selectDominantNeighbor(ctx context.Context, cfg *Config, heightmap *HeightmapCache, sampler Sampler, cells []biomeCoord, target BiomeId) (BiomeId, error) {
	if len(cells) == 0 {
		return target, nil
	}

	yHat, err := estimateHeight(heightmap, cells[0])
	if err != nil {
		yHat = 64
	}

	inComponent := make(map[biomeCoord]struct{}, len(cells))
	for _, c := range cells {
		inComponent[c] = struct{}{}
	}

	counts := make(map[string]*biomeTally)
	var order []string // first-encountered order, for deterministic tie-break

	for _, p := range cells {
		for _, d := range neighborDirs {
			q := biomeCoord{X: p.X + d[0], Z: p.Z + d[1]}
			if _, ok := inComponent[q]; ok {
				continue
			}
			qbx, qbz := q.toBlock()
			b, serr := surfaceBiome(ctx, cfg, sampler, qbx, qbz, yHat)
			if serr != nil {
				continue
			}
			if b == target {
				continue
			}
			t, ok := counts[b.Key]
			if !ok {
				t = &biomeTally{}
				counts[b.Key] = t
				order = append(order, b.Key)
			}
			t.all++
			if cfg.validReplacement(b) {
				t.valid++
			}
		}
	}

	if best, ok := argmaxFirstEncountered(order, counts, true); ok {
		return BiomeId{Key: best}, nil
	}
	if best, ok := argmaxFirstEncountered(order, counts, false); ok {
		return BiomeId{Key: best}, nil
	}
	return target, nil
}

func argmaxFirstEncountered(order []string, counts map[string]*biomeTally, validOnly bool) (string, bool) {
	best := ""
	bestCount := 0
	found := false
	for _, key := range order {
		t := counts[key]
		c := t.all
		if validOnly {
			c = t.valid
		}
		if c <= 0 {
			continue
		}
		if !found || c > bestCount {
			best = key
			bestCount = c
			found = true
		}
	}
	return best, found
}

// estimateHeight derives the single surface height used for perimeter
// sampling from the component's first visited cell, with a tiny
// deterministic perturbation (a pure function of x,z) to break otherwise
// degenerate ties at exact grid boundaries.
func estimateHeight(heightmap *HeightmapCache, first biomeCoord) (int, error) {
	bx, bz := first.toBlock()
	base, err := heightmap.Height(bx, bz)
	if err != nil {
		return 0, err
	}
	perturbation := absInt(mod(bx, 8)-4) + absInt(mod(bz, 8)-4)
	return base + perturbation, nil
}

func mod(v, m int) int {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
