package config

import "time"

// ConfigBuilderOption is a functional option applied to a Config by New.
type ConfigBuilderOption func(*Config)

// WithFramesInFlight sets the number of frames in flight.
//
// Parameters:
//   - n: the frame count
//
// Returns:
//   - ConfigBuilderOption: option function to apply
func WithFramesInFlight(n int) ConfigBuilderOption {
	return func(c *Config) {
		c.FramesInFlight = n
	}
}

// WithKernels sets the number of recording workers.
//
// Parameters:
//   - n: the kernel count
//
// Returns:
//   - ConfigBuilderOption: option function to apply
func WithKernels(n int) ConfigBuilderOption {
	return func(c *Config) {
		c.Kernels = n
	}
}

// WithShadows sets the shadow map budget and the cascade count of the directional light.
//
// Parameters:
//   - maxShadowMaps: the number of shadow maps that may be allocated
//   - cascades: the number of cascades rendered
//
// Returns:
//   - ConfigBuilderOption: option function to apply
func WithShadows(maxShadowMaps, cascades int) ConfigBuilderOption {
	return func(c *Config) {
		c.MaxShadowMapsCount = maxShadowMaps
		c.CascadedShadowCount = cascades
	}
}

// WithSamplesCount sets the resolve sample count.
func WithSamplesCount(n int) ConfigBuilderOption {
	return func(c *Config) {
		c.SamplesCount = n
	}
}

// WithFenceTimeout bounds frame fence waits. Zero waits forever.
func WithFenceTimeout(d time.Duration) ConfigBuilderOption {
	return func(c *Config) {
		c.FenceTimeout = d
	}
}

// WithEffects toggles the optional screen-space passes.
func WithEffects(ssao, ssr bool) ConfigBuilderOption {
	return func(c *Config) {
		c.SSAO = ssao
		c.SSR = ssr
	}
}

// WithViewport sets the initial window and render target size.
func WithViewport(width, height int) ConfigBuilderOption {
	return func(c *Config) {
		c.Width = width
		c.Height = height
	}
}

// WithLogging sets the log level and format.
func WithLogging(level, format string) ConfigBuilderOption {
	return func(c *Config) {
		c.LogLevel = level
		c.LogFormat = format
	}
}
