package biomepruner

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Config holds the tunable parameters for the smoothing engine. The zero
// value is usable; sensible defaults are applied by withDefaults.
type Config struct {
	// Enabled is the master switch. When false, ModifiedBiome always
	// returns vanilla unchanged.
	Enabled bool

	// MicroBiomeThreshold is the micro-biome cutoff in blocks. Internally
	// divided by 16 to get the biome-coordinate cell threshold used by the
	// flood fill. Default 50, valid range 10-1000.
	MicroBiomeThreshold int

	// MaxCacheMemoryMB bounds the aggregate estimated memory of the region
	// cache. Default 512.
	MaxCacheMemoryMB int

	// GridSpacing is the heightmap sample spacing in blocks and must divide
	// 16 (1, 2, 4, 8 or 16); any other value, 32 and 64 included, is reset
	// to the default 16.
	GridSpacing int

	// PreservedBiomes are returned unchanged without any surface or flood
	// fill computation.
	PreservedBiomes map[string]struct{}
	// ExcludedAsReplacement biomes are passed over as a dominant-neighbour
	// replacement whenever a non-excluded biome also borders the component;
	// if every bordering biome is excluded, the most frequent one is still
	// chosen. They can still be the target of a fill.
	ExcludedAsReplacement map[string]struct{}
	// CaveBiomes are skipped when sampling upward for the surface biome.
	CaveBiomes map[string]struct{}

	// PreserveVillageClass additionally preserves any biome whose
	// identifier contains one of plains/desert/savanna/taiga/snowy,
	// case-insensitively.
	PreserveVillageClass bool

	Debug             bool
	PerformanceLogging bool
}

// villageClassFragments are matched case-insensitively against a biome's
// Key by the PreserveVillageClass policy.
var villageClassFragments = []string{"plains", "desert", "savanna", "taiga", "snowy"}

var villageClassFolder = cases.Fold()

func (c *Config) withDefaults() Config {
	out := *c
	if out.MicroBiomeThreshold <= 0 {
		out.MicroBiomeThreshold = 50
	}
	if out.MicroBiomeThreshold < 10 {
		out.MicroBiomeThreshold = 10
	}
	if out.MicroBiomeThreshold > 1000 {
		out.MicroBiomeThreshold = 1000
	}
	if out.MaxCacheMemoryMB <= 0 {
		out.MaxCacheMemoryMB = 512
	}
	if out.GridSpacing <= 0 {
		out.GridSpacing = 16
	}
	if 16%out.GridSpacing != 0 {
		out.GridSpacing = 16
	}
	if out.PreservedBiomes == nil {
		out.PreservedBiomes = map[string]struct{}{}
	}
	if out.ExcludedAsReplacement == nil {
		out.ExcludedAsReplacement = map[string]struct{}{}
	}
	if out.CaveBiomes == nil {
		out.CaveBiomes = map[string]struct{}{}
	}
	return out
}

// threshold returns T, the biome-coordinate cell threshold (microBiomeThreshold / 16).
func (c *Config) threshold() int {
	t := c.MicroBiomeThreshold / 16
	if t < 1 {
		t = 1
	}
	return t
}

func (c *Config) preserve(b BiomeId) bool {
	if _, ok := c.PreservedBiomes[b.Key]; ok {
		return true
	}
	if c.PreserveVillageClass && isVillageClass(b.Key) {
		return true
	}
	return false
}

func (c *Config) isCave(b BiomeId) bool {
	_, ok := c.CaveBiomes[b.Key]
	return ok
}

func (c *Config) validReplacement(b BiomeId) bool {
	if !b.Valid() {
		return false
	}
	_, excluded := c.ExcludedAsReplacement[b.Key]
	return !excluded
}

// isVillageClass reports whether key contains, case-insensitively, any of
// plains/desert/savanna/taiga/snowy.
func isVillageClass(key string) bool {
	folded := villageClassFolder.String(key)
	for _, frag := range villageClassFragments {
		if strings.Contains(folded, frag) {
			return true
		}
	}
	return false
}
