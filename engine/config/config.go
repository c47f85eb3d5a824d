// Package config holds the engine's tunables: frame and kernel counts, shadow and
// sampling parameters, window size and logging. Values come from Default, functional
// options, or an HCL file loaded with LoadFile.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// MaxShadowMaps is the number of shadow-map link slots a directional accumulator can read.
const MaxShadowMaps = 6

// Config is the complete engine configuration.
type Config struct {
	// FramesInFlight is the number of swapchain images and per-frame resource sets.
	FramesInFlight int

	// Kernels is the number of recording workers. Defaults to runtime.NumCPU().
	Kernels int

	// MaxShadowMapsCount bounds how many shadow maps the deferred graph allocates.
	MaxShadowMapsCount int

	// CascadedShadowCount is the number of cascades rendered for the directional light.
	CascadedShadowCount int

	// SamplesCount is the resolve sample count written into the deferred composer uniform.
	SamplesCount int

	// ShadowMapAspect is the edge length in texels of each square shadow map.
	ShadowMapAspect int

	// FenceTimeout bounds the wait on a frame slot's fence. Zero waits forever.
	FenceTimeout time.Duration

	// SSAO enables the ambient occlusion pass.
	SSAO bool

	// SSR enables the screen-space reflection pass.
	SSR bool

	// PresentMode is "vsync" or "uncapped".
	PresentMode string

	// BufferArenaBytes caps the total size of buffers allocated through the buffer manager.
	BufferArenaBytes uint64

	Title  string
	Width  int
	Height int

	LogLevel  string
	LogFormat string
}

// Default returns the configuration used when no file or option overrides a value.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		FramesInFlight:      3,
		Kernels:             runtime.NumCPU(),
		MaxShadowMapsCount:  MaxShadowMaps,
		CascadedShadowCount: 4,
		SamplesCount:        4,
		ShadowMapAspect:     1024,
		FenceTimeout:        0,
		SSAO:                true,
		SSR:                 false,
		PresentMode:         "vsync",
		BufferArenaBytes:    256 << 20,
		Title:               "oxy-graph",
		Width:               1280,
		Height:              720,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// New builds a configuration from Default and the given options, then validates it.
//
// Parameters:
//   - options: functional options applied in order
//
// Returns:
//   - Config: the resulting configuration
//   - error: a validation error, if any
func New(options ...ConfigBuilderOption) (Config, error) {
	c := Default()
	for _, opt := range options {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every invalid field joined into one error.
//
// Returns:
//   - error: nil when the configuration is usable
func (c Config) Validate() error {
	var errs []error
	if c.FramesInFlight < 1 || c.FramesInFlight > 8 {
		errs = append(errs, fmt.Errorf("frames_in_flight must be between 1 and 8, got %d", c.FramesInFlight))
	}
	if c.Kernels < 1 {
		errs = append(errs, fmt.Errorf("kernels must be at least 1, got %d", c.Kernels))
	}
	if c.MaxShadowMapsCount < 0 || c.MaxShadowMapsCount > MaxShadowMaps {
		errs = append(errs, fmt.Errorf("max_shadow_maps_count must be between 0 and %d, got %d", MaxShadowMaps, c.MaxShadowMapsCount))
	}
	if c.CascadedShadowCount < 0 || c.CascadedShadowCount > c.MaxShadowMapsCount {
		errs = append(errs, fmt.Errorf("cascaded_shadow_count must be between 0 and max_shadow_maps_count (%d), got %d", c.MaxShadowMapsCount, c.CascadedShadowCount))
	}
	switch c.SamplesCount {
	case 1, 2, 4, 8, 16:
	default:
		errs = append(errs, fmt.Errorf("samples_count must be a power of two up to 16, got %d", c.SamplesCount))
	}
	if c.ShadowMapAspect < 1 {
		errs = append(errs, fmt.Errorf("shadow_map_aspect must be positive, got %d", c.ShadowMapAspect))
	}
	if c.FenceTimeout < 0 {
		errs = append(errs, fmt.Errorf("fence_timeout must not be negative, got %s", c.FenceTimeout))
	}
	if c.PresentMode != "vsync" && c.PresentMode != "uncapped" {
		errs = append(errs, fmt.Errorf("present_mode must be 'vsync' or 'uncapped', got %q", c.PresentMode))
	}
	if c.BufferArenaBytes == 0 {
		errs = append(errs, errors.New("buffer_arena_bytes must be positive"))
	}
	if c.Width < 1 || c.Height < 1 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.Width, c.Height))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level must be 'debug', 'info', 'warn' or 'error', got %q", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log format must be 'text' or 'json', got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
