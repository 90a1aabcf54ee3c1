package treeservice

import (
	"context"

	"github.com/starford/hiertree/internal/connector"
	"github.com/starford/hiertree/internal/layout"
	"github.com/starford/hiertree/internal/models"
)

// ConnectorQuery selects the view a connector overlay is computed for.
type ConnectorQuery struct {
	Collapsed map[int64]bool
	Gap       float64
	ScrollX   float64
	ScrollY   float64
}

// ConnectorView is one computed overlay.
type ConnectorView struct {
	Paths  []connector.Path `json:"paths"`
	Width  float64          `json:"width"`
	Height float64          `json:"height"`
	Passes int              `json:"passes"`
}

// Layout returns the rendered rows of the stored collection.
func (s *Service) Layout(ctx context.Context, collapsed map[int64]bool) ([]layout.Placed, error) {
	nodes, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	surface := layout.NewSurface(connector.NewRegistry(), 0, 0, s.layout)
	return surface.Apply(nodes, collapsed), nil
}

// Connectors computes the overlay for the stored collection.
func (s *Service) Connectors(ctx context.Context, q ConnectorQuery) (ConnectorView, error) {
	nodes, err := s.store.All(ctx)
	if err != nil {
		return ConnectorView{}, err
	}
	if !connector.UsableGap(q.Gap) {
		q.Gap = s.gap
	}
	return Render(nodes, q, s.layout), nil
}

// Render lays nodes out on a fresh surface sized to fit every card and
// runs one overlay frame against it.
func Render(nodes []models.Node, q ConnectorQuery, opts layout.Options) ConnectorView {
	reg := connector.NewRegistry()
	surface := layout.NewSurface(reg, 0, 0, opts)
	placed := surface.Apply(nodes, q.Collapsed)
	w, h := extent(placed, opts)
	surface.Resize(w, h)

	frames := connector.NewManualFrames()
	ov := connector.NewOverlay(reg, surface,
		connector.WithGap(q.Gap),
		connector.WithFrames(frames),
	)
	defer ov.Close()
	ov.Mount(surface)
	ov.SetNodes(nodes)
	surface.ScrollTo(q.ScrollX, q.ScrollY)
	frames.Flush()

	return ConnectorView{
		Paths:  ov.Paths(),
		Width:  w,
		Height: h,
		Passes: ov.Passes(),
	}
}

func extent(placed []layout.Placed, opts layout.Options) (w, h float64) {
	for _, p := range placed {
		w = max(w, p.Rect.Right())
		h = max(h, p.Rect.Bottom())
	}
	if len(placed) > 0 {
		h += opts.MarginTop
	}
	return w, h
}
