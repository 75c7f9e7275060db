package biomepruner

import (
	"context"
	"log/slog"
	"testing"
)

func TestSelectDominantNeighborFallsBackToTargetWithoutOtherNeighbours(t *testing.T) {
	cfg := (&Config{}).withDefaults()
	hm := NewHeightmapCache(16, constHeight{y: 64}, nil, slog.Default())

	target := BiomeId{Key: "minecraft:forest"}
	// Every neighbour sample (even perimeter queries) incorrectly echoes the
	// target; the only valid fallback is target itself, but selection must
	// still never *choose* target as a tallied vote.
	sampler := newGridSampler(func(nx, ny, nz int) (BiomeId, error) {
		return target, nil
	})

	got, err := selectDominantNeighbor(context.Background(), &cfg, hm, sampler, []biomeCoord{{X: 0, Z: 0}}, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != target {
		t.Fatalf("expected fallback to target when every perimeter sample equals target, got %+v", got)
	}
}

func TestSelectDominantNeighborPrefersValidReplacement(t *testing.T) {
	cfg := (&Config{ExcludedAsReplacement: map[string]struct{}{"minecraft:void": {}}}).withDefaults()
	hm := NewHeightmapCache(16, constHeight{y: 64}, nil, slog.Default())

	target := BiomeId{Key: "minecraft:forest"}
	cells := []biomeCoord{{X: 0, Z: 0}}

	// (1,0) -> block (4,0) -> nx=1,nz=0: majority "void" (excluded), but
	// (-1,0) -> block (-4,0) -> nx=-1,nz=0 gives "plains" a single vote; the
	// valid-replacement tier must prefer plains even though void has more
	// raw votes from other directions.
	sampler := newGridSampler(func(nx, ny, nz int) (BiomeId, error) {
		if nx == -1 && nz == 0 {
			return BiomeId{Key: "minecraft:plains"}, nil
		}
		return BiomeId{Key: "minecraft:void"}, nil
	})

	got, err := selectDominantNeighbor(context.Background(), &cfg, hm, sampler, cells, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Key != "minecraft:plains" {
		t.Fatalf("expected valid-replacement tier to prefer plains over excluded void, got %+v", got)
	}
}

func TestArgmaxFirstEncounteredTieBreak(t *testing.T) {
	order := []string{"a", "b", "c"}
	counts := map[string]*biomeTally{
		"a": {all: 2, valid: 2},
		"b": {all: 2, valid: 2},
		"c": {all: 1, valid: 1},
	}
	got, ok := argmaxFirstEncountered(order, counts, true)
	if !ok || got != "a" {
		t.Fatalf("expected first-encountered tie winner \"a\", got %q (ok=%v)", got, ok)
	}
}
