package graph

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/config"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/link"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/node"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
)

// Names under which BuildDeferred attaches the built-in passes. Shadow mappers are attached
// under their template names, node.ShadowMapperName followed by the cascade index.
const (
	GBufferNode           = node.GBufferFillerName
	ShadowAccumulatorNode = node.ShadowAccumulatorDirectionalName
	SSAONode              = node.SSAOName
	DeferredNode          = node.DeferredPBRName
	SSRNode               = node.SSRName
)

// BuildDeferred builds the built-in templates concurrently and wires one instance of each
// into a deferred lighting graph:
//
//	gbuffer -> [shadow mappers -> accumulator] -> [ssao] -> deferred-pbr -> [ssr]
//
// Shadows are built when both MaxShadowMapsCount and CascadedShadowCount are non-zero, with
// one mapper per cascade. The graph output is the SSR reflection when SSR is enabled, the
// deferred color otherwise.
//
// Parameters:
//   - ctx: cancels the remaining template builds
//   - r: the renderer
//   - cfg: the engine configuration
//
// Returns:
//   - *Graph: the wired graph, owning its templates
//   - error: the first template build error
func BuildDeferred(ctx context.Context, r renderer.Renderer, cfg config.Config) (*Graph, error) {
	cascades := min(cfg.CascadedShadowCount, cfg.MaxShadowMapsCount, link.MaxShadowMaps)

	var (
		gbuffer, accumulator, ssao, deferred, ssr *node.Template
		mappers                                   = make([]*node.Template, cascades)
	)
	eg, ctx := errgroup.WithContext(ctx)
	build := func(dst **node.Template, fn func() (*node.Template, error)) {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := fn()
			if err != nil {
				return err
			}
			*dst = t
			return nil
		})
	}

	build(&gbuffer, func() (*node.Template, error) { return node.NewGBufferFiller(r, 0) })
	build(&deferred, func() (*node.Template, error) { return node.NewDeferredPBR(r, cfg.SamplesCount) })
	for c := range cascades {
		build(&mappers[c], func() (*node.Template, error) {
			return node.NewShadowMapper(r, c, uint32(cfg.ShadowMapAspect), 0)
		})
	}
	if cascades > 0 {
		build(&accumulator, func() (*node.Template, error) { return node.NewShadowAccumulatorDirectional(r, cascades) })
	}
	if cfg.SSAO {
		build(&ssao, func() (*node.Template, error) { return node.NewSSAO(r) })
	}
	if cfg.SSR {
		build(&ssr, func() (*node.Template, error) { return node.NewSSR(r) })
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("graph: building deferred templates: %w", err)
	}

	g := New(r)
	fail := func(err error) (*Graph, error) {
		g.Release()
		return nil, err
	}
	attach := func(name string, t *node.Template) error {
		g.Own(t)
		inst, err := t.Instantiate(r)
		if err != nil {
			return fmt.Errorf("graph: instantiating %s: %w", name, err)
		}
		g.Attach(name, inst)
		return nil
	}

	if err := attach(GBufferNode, gbuffer); err != nil {
		return fail(err)
	}
	gbufferInputs := func(consumer string, links ...link.ID) {
		for _, id := range links {
			name := link.Get(id).Name
			g.Link(consumer, name, GBufferNode, name)
		}
	}

	if cascades > 0 {
		for c, t := range mappers {
			if err := attach(t.Name(), t); err != nil {
				return fail(err)
			}
			n, _ := g.Node(t.Name())
			node.SetShadowCascade(n, c, cascades)
		}
		if err := attach(ShadowAccumulatorNode, accumulator); err != nil {
			return fail(err)
		}
		gbufferInputs(ShadowAccumulatorNode, link.Position, link.Normal)
		for c, t := range mappers {
			g.Link(ShadowAccumulatorNode, link.ShadowMap(c).Name, t.Name(), link.Get(link.SingleOutput).Name)
		}
	}

	if ssao != nil {
		if err := attach(SSAONode, ssao); err != nil {
			return fail(err)
		}
		gbufferInputs(SSAONode, link.Position, link.Normal, link.Depth)
	}

	if err := attach(DeferredNode, deferred); err != nil {
		return fail(err)
	}
	gbufferInputs(DeferredNode, link.Position, link.Normal, link.Albedo, link.Depth)
	if ssao != nil {
		g.Link(DeferredNode, link.Get(link.Occlusion).Name, SSAONode, link.Get(link.SingleOutput).Name)
	}
	if accumulator != nil {
		g.Link(DeferredNode, link.Get(link.AccumulatedShadows).Name, ShadowAccumulatorNode, link.Get(link.SingleOutput).Name)
	}
	g.SetOutput(DeferredNode, link.Get(link.Color).Name)

	if ssr != nil {
		if err := attach(SSRNode, ssr); err != nil {
			return fail(err)
		}
		gbufferInputs(SSRNode, link.Position, link.Normal, link.Depth)
		g.Link(SSRNode, link.Get(link.Color).Name, DeferredNode, link.Get(link.Color).Name)
		g.SetOutput(SSRNode, link.Get(link.Reflection).Name)
	}

	common.Logger().Info("deferred graph built",
		"nodes", g.Len(),
		"templates", g.Templates().Len(),
		"cascades", cascades,
		"ssao", ssao != nil,
		"ssr", ssr != nil)
	return g, nil
}
