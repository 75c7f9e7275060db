// Package biomepruner implements a micro-region smoothing engine for
// procedurally generated biome maps. It sits between a host world generator
// and the generator's noise-based biome source: when the biome at a query's
// projected surface column forms a connected component smaller than a
// configured threshold, the engine substitutes the dominant neighbouring
// biome instead.
package biomepruner

import (
	"github.com/cespare/xxhash/v2"
)

// BiomeId is an opaque biome identity. The engine never dereferences it
// beyond equality, hashing, and the predicates in Config. Key is the
// stable, registry-scoped identifier a host uses (e.g. "minecraft:plains");
// cache keys and the preserve/cave/excluded/village-class predicates are
// built on it. Lock-stripe selection hashes coordinates, not biome ids.
type BiomeId struct {
	Key string
}

// Valid reports whether the id is safe to hand back to the host: non-null
// and carrying a resolvable identifier. This is the minimum bar a cached
// BiomeResult must clear before being returned to a caller.
func (b BiomeId) Valid() bool {
	return b.Key != ""
}

// xxhashSum64 hashes raw bytes, used by coords.go to combine packed
// coordinate pairs into a stable stripe-selection hash.
func xxhashSum64(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// Sampler is the host's noise-based biome source, treated as a pure
// function of biome-grid coordinates: (nx, ny, nz) = (bx>>2, by>>2, bz>>2).
type Sampler interface {
	Sample(nx, ny, nz int) (BiomeId, error)
}

// SamplerFunc adapts a function into a Sampler.
type SamplerFunc func(nx, ny, nz int) (BiomeId, error)

func (f SamplerFunc) Sample(nx, ny, nz int) (BiomeId, error) { return f(nx, ny, nz) }

// SurfaceHeight is the host's pure surface-height generator.
type SurfaceHeight interface {
	SurfaceHeight(bx, bz int) (int, error)
}

// SurfaceHeightFunc adapts a function into a SurfaceHeight.
type SurfaceHeightFunc func(bx, bz int) (int, error)

func (f SurfaceHeightFunc) SurfaceHeight(bx, bz int) (int, error) { return f(bx, bz) }
