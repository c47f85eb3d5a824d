package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// hclFile is the top-level structure of a configuration file. Every block and
// attribute is optional; anything left out keeps its Default value.
type hclFile struct {
	Render *hclRender `hcl:"render,block"`
	Window *hclWindow `hcl:"window,block"`
	Log    *hclLog    `hcl:"log,block"`
}

type hclRender struct {
	FramesInFlight      *int    `hcl:"frames_in_flight,optional"`
	Kernels             *int    `hcl:"kernels,optional"`
	MaxShadowMapsCount  *int    `hcl:"max_shadow_maps_count,optional"`
	CascadedShadowCount *int    `hcl:"cascaded_shadow_count,optional"`
	SamplesCount        *int    `hcl:"samples_count,optional"`
	ShadowMapAspect     *int    `hcl:"shadow_map_aspect,optional"`
	FenceTimeout        *string `hcl:"fence_timeout,optional"`
	SSAO                *bool   `hcl:"ssao,optional"`
	SSR                 *bool   `hcl:"ssr,optional"`
	PresentMode         *string `hcl:"present_mode,optional"`
	BufferArenaMiB      *int    `hcl:"buffer_arena_mib,optional"`
}

type hclWindow struct {
	Title  *string `hcl:"title,optional"`
	Width  *int    `hcl:"width,optional"`
	Height *int    `hcl:"height,optional"`
}

type hclLog struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// evalContext exposes host facts and a few numeric helpers to configuration expressions,
// so a file can say `kernels = max(1, cpu_count - 1)`.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"cpu_count": cty.NumberIntVal(int64(runtime.NumCPU())),
		},
		Functions: map[string]function.Function{
			"min": stdlib.MinFunc,
			"max": stdlib.MaxFunc,
		},
	}
}

// LoadFile reads and parses an HCL configuration file.
//
// Parameters:
//   - path: the file to load
//
// Returns:
//   - Config: Default overlaid with the file's values
//   - error: a read, parse, decode or validation error
func LoadFile(path string) (Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(src, path)
}

// Parse decodes HCL source into a Config.
//
// Parameters:
//   - src: the HCL source
//   - filename: the name used in diagnostics
//
// Returns:
//   - Config: Default overlaid with the source's values
//   - error: a parse, decode or validation error
func Parse(src []byte, filename string) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", filename, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, evalContext(), &parsed)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to decode config %s: %w", filename, diags)
	}

	c := Default()
	if err := parsed.apply(&c); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return c, nil
}

func (f *hclFile) apply(c *Config) error {
	if r := f.Render; r != nil {
		setIfPresent(&c.FramesInFlight, r.FramesInFlight)
		setIfPresent(&c.Kernels, r.Kernels)
		setIfPresent(&c.MaxShadowMapsCount, r.MaxShadowMapsCount)
		setIfPresent(&c.CascadedShadowCount, r.CascadedShadowCount)
		setIfPresent(&c.SamplesCount, r.SamplesCount)
		setIfPresent(&c.ShadowMapAspect, r.ShadowMapAspect)
		setIfPresent(&c.SSAO, r.SSAO)
		setIfPresent(&c.SSR, r.SSR)
		setIfPresent(&c.PresentMode, r.PresentMode)
		if r.FenceTimeout != nil {
			d, err := time.ParseDuration(*r.FenceTimeout)
			if err != nil {
				return fmt.Errorf("fence_timeout: %w", err)
			}
			c.FenceTimeout = d
		}
		if r.BufferArenaMiB != nil {
			if *r.BufferArenaMiB < 1 {
				return fmt.Errorf("buffer_arena_mib must be positive, got %d", *r.BufferArenaMiB)
			}
			c.BufferArenaBytes = uint64(*r.BufferArenaMiB) << 20
		}
	}
	if w := f.Window; w != nil {
		setIfPresent(&c.Title, w.Title)
		setIfPresent(&c.Width, w.Width)
		setIfPresent(&c.Height, w.Height)
	}
	if l := f.Log; l != nil {
		setIfPresent(&c.LogLevel, l.Level)
		setIfPresent(&c.LogFormat, l.Format)
	}
	return nil
}

func setIfPresent[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
