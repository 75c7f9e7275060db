package biomepruner

import "errors"

// Sentinel errors passed, together with their FaultClass, to
// TelemetrySink.Fault when the engine absorbs a fault. ModifiedBiome never
// returns an error to the host; it absorbs all of these and falls back to
// the vanilla biome.
var (
	ErrInvalidBiome       = errors.New("biomepruner: invalid biome id")
	ErrSamplerFault       = errors.New("biomepruner: sampler returned an error")
	ErrHeightFault        = errors.New("biomepruner: surface height unavailable")
	ErrDispatcherTimeout  = errors.New("biomepruner: flood-fill join timed out")
	ErrCacheValidityFault = errors.New("biomepruner: cached entry failed validation")
)
