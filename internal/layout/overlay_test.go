package layout

import (
	"testing"

	"github.com/starford/hiertree/internal/connector"
	"github.com/starford/hiertree/internal/models"
)

// mountedOverlay wires a surface and an overlay the way a live editor
// session does.
func mountedOverlay(t *testing.T) (*Surface, *connector.Overlay, *connector.ManualFrames) {
	t.Helper()
	reg := connector.NewRegistry()
	s := NewSurface(reg, 800, 600, DefaultOptions())
	frames := connector.NewManualFrames()
	o := connector.NewOverlay(reg, s, connector.WithFrames(frames))
	o.Mount(s)
	t.Cleanup(o.Close)
	return s, o, frames
}

func apply(s *Surface, o *connector.Overlay, n []models.Node, collapsed map[int64]bool) {
	s.Apply(n, collapsed)
	o.SetNodes(n)
}

func TestOverlayFollowsLayout(t *testing.T) {
	s, o, frames := mountedOverlay(t)
	apply(s, o, nodes(), nil)
	frames.Flush()

	paths := o.Paths()
	if len(paths) != 2 {
		t.Fatalf("paths = %d, want 2", len(paths))
	}
	// Child card: left 48, center y 140; parent center y 60.
	if want := "M 36 60 V 128 Q 36 140 48 140 H 48"; paths[0].D != want {
		t.Errorf("d = %q, want %q", paths[0].D, want)
	}
}

func TestOverlayFollowsScroll(t *testing.T) {
	s, o, frames := mountedOverlay(t)
	apply(s, o, nodes(), nil)
	frames.Flush()
	passes := o.Passes()

	s.ScrollTo(0, 20)
	frames.Flush()
	if o.Passes() != passes+1 {
		t.Fatalf("scroll did not trigger a pass")
	}
	if want := "M 36 40 V 108 Q 36 120 48 120 H 48"; o.Paths()[0].D != want {
		t.Errorf("d = %q, want %q", o.Paths()[0].D, want)
	}
}

func TestOverlayCollapseDropsEdges(t *testing.T) {
	s, o, frames := mountedOverlay(t)
	apply(s, o, nodes(), nil)
	frames.Flush()

	apply(s, o, nodes(), map[int64]bool{2: true})
	frames.Flush()
	paths := o.Paths()
	if len(paths) != 1 || paths[0].Child != 2 {
		t.Errorf("paths = %+v, want only 2->1", paths)
	}
}

func TestOverlayUnmountDetachesFromSurface(t *testing.T) {
	s, o, _ := mountedOverlay(t)
	if s.Observers() != 1 || s.Listeners() != 2 {
		t.Fatalf("observers = %d listeners = %d", s.Observers(), s.Listeners())
	}
	o.Unmount()
	if s.Observers() != 0 || s.Listeners() != 0 {
		t.Errorf("after unmount observers = %d listeners = %d", s.Observers(), s.Listeners())
	}
}
