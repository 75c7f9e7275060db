package biomepruner

import "context"

// ContextSampler is an optional upgrade a host's Sampler can implement to
// receive a context carrying the engine's re-entry guard. A host's own
// hook/mixin layer may be reachable from deep inside the sampler
// implementation it hands the engine; if so, it can check InCore(ctx) and
// bypass the engine instead of recursing into it. This replaces a
// thread-local "in-core" flag, which Go has no equivalent for. Hosts that
// have no re-entrancy concern can simply implement Sampler and ignore
// this.
type ContextSampler interface {
	SampleContext(ctx context.Context, nx, ny, nz int) (BiomeId, error)
}

type inCoreKeyType struct{}

var inCoreKey = inCoreKeyType{}

// InCore reports whether ctx was produced while the engine is in the
// middle of calling the host sampler — i.e. whether the current call is a
// nested re-entrance rather than a fresh top-level host query.
func InCore(ctx context.Context) bool {
	v, _ := ctx.Value(inCoreKey).(bool)
	return v
}

func withInCore(ctx context.Context) context.Context {
	return context.WithValue(ctx, inCoreKey, true)
}

// sampleWithGuard calls the sampler, upgrading to ContextSampler when
// available so the host can observe the in-core guard.
func sampleWithGuard(ctx context.Context, sampler Sampler, nx, ny, nz int) (BiomeId, error) {
	ctx = withInCore(ctx)
	if cs, ok := sampler.(ContextSampler); ok {
		return cs.SampleContext(ctx, nx, ny, nz)
	}
	return sampler.Sample(nx, ny, nz)
}
