package biomepruner

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FloodFillResult is the immutable outcome of one flood fill.
type FloodFillResult struct {
	// Positions holds the micro-biome component's packed biome-coordinate
	// points. Empty (nil) when IsLarge is true.
	Positions map[int64]struct{}
	IsLarge   bool
	// Replacement is the dominant-neighbour biome for a micro component, or
	// the target biome itself when IsLarge is true.
	Replacement BiomeId
}

// fingerprint is the flood-fill dedup key: (block-x, block-z, target
// biome), not the column alone, because the same column can seed fills for
// distinct biomes.
type fingerprint struct {
	bx, bz int32
	biome  string
}

func (f fingerprint) String() string {
	return fmt.Sprintf("%d:%d:%s", f.bx, f.bz, f.biome)
}

// floodTask is a retained flood-fill result, shared by every past and
// future caller for its fingerprint. Once complete it is immutable and
// stays in the dispatcher's map so later lookups are O(1).
type floodTask struct {
	fp     fingerprint
	done   chan struct{}
	result FloodFillResult
	err    error
}

func (t *floodTask) await(deadline time.Duration) (FloodFillResult, error, bool) {
	select {
	case <-t.done:
		return t.result, t.err, true
	case <-time.After(deadline):
		return FloodFillResult{}, nil, false
	}
}

// dispatcher guarantees at most one concurrent flood fill runs per
// fingerprint, with losers awaiting the producer's shared completion
// handle. Built on golang.org/x/sync/singleflight for the in-flight
// coalescing, layered with a retained-result map so that completed tasks
// keep serving O(1) lookups after singleflight itself forgets the key.
type dispatcher struct {
	log   *slog.Logger
	group singleflight.Group

	mu    sync.Mutex
	tasks map[fingerprint]*floodTask
}

func newDispatcher(log *slog.Logger) *dispatcher {
	return &dispatcher{log: log, tasks: make(map[fingerprint]*floodTask)}
}

// existing is the read-only dispatcher lookup.
func (d *dispatcher) existing(fp fingerprint) (*floodTask, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[fp]
	return t, ok
}

// run dispatches or joins the flood fill for fp and waits up to deadline
// for a result. Timing out does not cancel the producer: its fn keeps
// running in the background (singleflight's own goroutine) and the result
// still lands in the retained map for subsequent callers.
func (d *dispatcher) run(fp fingerprint, deadline time.Duration, fn func() (FloodFillResult, error)) (FloodFillResult, error, bool) {
	if t, ok := d.existing(fp); ok {
		return t.await(deadline)
	}

	ch := d.group.DoChan(fp.String(), func() (interface{}, error) {
		if t, ok := d.existing(fp); ok {
			return t, nil
		}
		res, runErr := fn()
		t := &floodTask{fp: fp, done: make(chan struct{}), result: res, err: runErr}
		close(t.done)
		d.mu.Lock()
		d.tasks[fp] = t
		d.mu.Unlock()
		return t, nil
	})

	select {
	case r := <-ch:
		t := r.Val.(*floodTask)
		return t.result, t.err, true
	case <-time.After(deadline):
		if d.log != nil {
			d.log.Debug("flood fill join deadline exceeded", "fingerprint", fp.String())
		}
		return FloodFillResult{}, nil, false
	}
}

// cancelAll drops retained tasks, used by clearAll on a world-unload hook.
// Any flood fill still running in the background is unaffected; it simply
// repopulates the (now-empty) map when it finishes.
func (d *dispatcher) cancelAll() {
	d.mu.Lock()
	dropped := len(d.tasks)
	d.tasks = make(map[fingerprint]*floodTask)
	d.mu.Unlock()
	if d.log != nil {
		d.log.Debug("dispatcher retained tasks cleared", "dropped", dropped)
	}
}
