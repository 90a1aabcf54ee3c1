package layout

import (
	"strings"
	"testing"

	"github.com/starford/hiertree/internal/connector"
	"github.com/starford/hiertree/internal/models"
)

func nodes() []models.Node {
	return []models.Node{
		{ID: 1, Parent: 0, Text: "Root", Droppable: true},
		{ID: 2, Parent: 1, Text: "Child", Droppable: true},
		{ID: 3, Parent: 2, Text: "Grandchild", Droppable: true},
	}
}

func TestApplyPlacesCards(t *testing.T) {
	reg := connector.NewRegistry()
	s := NewSurface(reg, 800, 600, DefaultOptions())
	placed := s.Apply(nodes(), nil)

	if len(placed) != 3 {
		t.Fatalf("placed = %d, want 3", len(placed))
	}
	want := []connector.Rect{
		{Left: 0, Top: 40, Width: 240, Height: 40},
		{Left: 48, Top: 120, Width: 240, Height: 40},
		{Left: 96, Top: 200, Width: 240, Height: 40},
	}
	for i, p := range placed {
		if p.Rect != want[i] {
			t.Errorf("row %d rect = %+v, want %+v", i, p.Rect, want[i])
		}
	}
	if reg.Len() != 3 {
		t.Errorf("registry size = %d, want 3", reg.Len())
	}
}

func TestApplyCollapseUnmounts(t *testing.T) {
	reg := connector.NewRegistry()
	s := NewSurface(reg, 800, 600, DefaultOptions())
	s.Apply(nodes(), nil)
	s.Apply(nodes(), map[int64]bool{2: true})

	if _, ok := reg.Lookup(3); ok {
		t.Error("collapsed grandchild still registered")
	}
	if _, ok := s.Box(3); ok {
		t.Error("collapsed grandchild still mounted")
	}
	if reg.Len() != 2 {
		t.Errorf("registry size = %d, want 2", reg.Len())
	}
}

func TestApplyKeepsElementIdentity(t *testing.T) {
	reg := connector.NewRegistry()
	s := NewSurface(reg, 800, 600, DefaultOptions())
	s.Apply(nodes(), nil)
	before, _ := reg.Lookup(2)
	s.Apply(nodes(), nil)
	after, _ := reg.Lookup(2)
	if before != after {
		t.Error("re-layout remounted an unchanged card")
	}
}

func TestLongLabelWidensCardAndNotifiesObserver(t *testing.T) {
	reg := connector.NewRegistry()
	s := NewSurface(reg, 800, 600, DefaultOptions())
	s.Apply(nodes(), nil)

	var calls int
	obs := s.NewResizeObserver(func() { calls++ })
	box, _ := s.Box(2)
	obs.Observe(box)

	renamed := nodes()
	renamed[1].Text = strings.Repeat("w", 40)
	s.Apply(renamed, nil)

	if got := box.Rect().Width; got != cardPadding+8*40 {
		t.Errorf("width = %v", got)
	}
	if calls != 1 {
		t.Errorf("observer calls = %d, want 1", calls)
	}

	obs.Disconnect()
	s.Apply(nodes(), nil)
	if calls != 1 {
		t.Errorf("disconnected observer called")
	}
}

func TestScrollDispatchesToCapturingListeners(t *testing.T) {
	reg := connector.NewRegistry()
	s := NewSurface(reg, 800, 600, DefaultOptions())
	s.Apply(nodes(), nil)

	var captured, bubbled int
	remove := s.AddListener(connector.EventScroll, true, func() { captured++ })
	s.AddListener(connector.EventScroll, false, func() { bubbled++ })

	s.ScrollTo(0, 30)
	if captured != 1 || bubbled != 0 {
		t.Errorf("captured = %d bubbled = %d", captured, bubbled)
	}
	box, _ := s.Box(1)
	if box.Rect().Top != 10 {
		t.Errorf("scrolled top = %v, want 10", box.Rect().Top)
	}

	s.ScrollTo(0, 30)
	if captured != 1 {
		t.Error("scrolling to the same offset dispatched again")
	}

	remove()
	s.ScrollTo(0, 0)
	if captured != 1 {
		t.Error("removed listener still called")
	}
}

func TestResizeNotifiesContainerObservers(t *testing.T) {
	s := NewSurface(connector.NewRegistry(), 800, 600, DefaultOptions())
	var observed, events int
	obs := s.NewResizeObserver(func() { observed++ })
	obs.Observe(s)
	s.AddListener(connector.EventResize, false, func() { events++ })

	s.Resize(1024, 768)
	if observed != 1 || events != 1 {
		t.Errorf("observed = %d events = %d", observed, events)
	}
	if r := s.Rect(); r.Width != 1024 || r.Height != 768 {
		t.Errorf("rect = %+v", r)
	}
}
