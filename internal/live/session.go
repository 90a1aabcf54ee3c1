// Package live keeps a long-lived editor view on the server: a laid out
// surface with a mounted connector overlay whose coalesced passes are
// streamed to clients.
package live

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/starford/hiertree/internal/connector"
	"github.com/starford/hiertree/internal/layout"
	"github.com/starford/hiertree/internal/models"
	"github.com/starford/hiertree/internal/sse"
)

// Publisher receives connectors.updated events.
type Publisher interface {
	Publish(event sse.Event)
}

// DefaultHighlightTTL is how long a newly created node stays highlighted.
const DefaultHighlightTTL = 2 * time.Second

// Config sizes the view and configures the overlay.
type Config struct {
	Width  float64
	Height float64
	Gap    float64
	Layout layout.Options
	// Frames drives overlay passes; TickerFrames at the default interval
	// when nil.
	Frames connector.Frames
	// HighlightTTL bounds how long Highlight marks a node; zero selects
	// DefaultHighlightTTL.
	HighlightTTL time.Duration
}

// View is the state reported to clients.
type View struct {
	Paths     []connector.Path `json:"paths"`
	Collapsed []int64          `json:"collapsed"`
	ScrollX   float64          `json:"scroll_x"`
	ScrollY   float64          `json:"scroll_y"`
	Passes    int              `json:"passes"`
	// Highlighted is the recently created node, 0 once its highlight
	// expired.
	Highlighted int64 `json:"highlighted,omitempty"`
}

// Session is one shared editor view.
type Session struct {
	pub     Publisher
	surface *layout.Surface
	overlay *connector.Overlay

	mu        sync.Mutex
	nodes     []models.Node
	collapsed map[int64]bool
	last      []connector.Path
	published bool

	highlightTTL   time.Duration
	highlighted    int64
	highlightUntil time.Time
	now            func() time.Time
}

// NewSession creates a mounted view. Call Close to release it.
func NewSession(pub Publisher, cfg Config) *Session {
	frames := cfg.Frames
	if frames == nil {
		frames = connector.TickerFrames{Interval: connector.DefaultFrameInterval}
	}
	reg := connector.NewRegistry()
	ttl := cfg.HighlightTTL
	if ttl <= 0 {
		ttl = DefaultHighlightTTL
	}
	s := &Session{
		pub:          pub,
		surface:      layout.NewSurface(reg, cfg.Width, cfg.Height, cfg.Layout),
		collapsed:    make(map[int64]bool),
		highlightTTL: ttl,
		now:          time.Now,
	}
	s.overlay = connector.NewOverlay(reg, s.surface,
		connector.WithGap(cfg.Gap),
		connector.WithFrames(frames),
		connector.WithOnPaths(s.onPaths),
	)
	s.overlay.Mount(s.surface)
	return s
}

// Update re-lays out the view for a new collection.
func (s *Session) Update(nodes []models.Node) {
	s.mu.Lock()
	s.nodes = models.Clone(nodes)
	for id := range s.collapsed {
		if !slices.ContainsFunc(s.nodes, func(n models.Node) bool { return n.ID == id }) {
			delete(s.collapsed, id)
		}
	}
	if s.highlighted != 0 && !slices.ContainsFunc(s.nodes, func(n models.Node) bool { return n.ID == s.highlighted }) {
		s.highlighted = 0
	}
	s.applyLocked()
	s.mu.Unlock()
}

// Highlight marks id as freshly created for the highlight TTL and tells
// clients so they can flash its card.
func (s *Session) Highlight(id int64) {
	s.mu.Lock()
	s.highlighted = id
	s.highlightUntil = s.now().Add(s.highlightTTL)
	ttl := s.highlightTTL
	s.mu.Unlock()

	if s.pub != nil {
		s.pub.Publish(sse.Event{Type: sse.TypeHighlighted, Data: map[string]int64{
			"id":     id,
			"ttl_ms": ttl.Milliseconds(),
		}})
	}
}

// SetCollapsed replaces the set of collapsed nodes.
func (s *Session) SetCollapsed(ids []int64) {
	s.mu.Lock()
	s.collapsed = make(map[int64]bool, len(ids))
	for _, id := range ids {
		s.collapsed[id] = true
	}
	s.applyLocked()
	s.mu.Unlock()
}

// ScrollTo scrolls the view. Non-finite offsets are ignored.
func (s *Session) ScrollTo(x, y float64) {
	if !finite(x) || !finite(y) {
		return
	}
	s.surface.ScrollTo(x, y)
}

// Resize changes the viewport size. Negative or non-finite sizes are
// ignored.
func (s *Session) Resize(width, height float64) {
	if !finite(width) || !finite(height) || width < 0 || height < 0 {
		return
	}
	s.surface.Resize(width, height)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Size returns the viewport rectangle.
func (s *Session) Size() connector.Rect {
	return s.surface.Rect()
}

// View returns the current state of the view.
func (s *Session) View() View {
	s.mu.Lock()
	collapsed := make([]int64, 0, len(s.collapsed))
	for id := range s.collapsed {
		collapsed = append(collapsed, id)
	}
	var highlighted int64
	if s.highlighted != 0 && s.now().Before(s.highlightUntil) {
		highlighted = s.highlighted
	}
	s.mu.Unlock()
	slices.Sort(collapsed)

	x, y := s.surface.Scroll()
	return View{
		Paths:       s.overlay.Paths(),
		Collapsed:   collapsed,
		ScrollX:     x,
		ScrollY:     y,
		Passes:      s.overlay.Passes(),
		Highlighted: highlighted,
	}
}

// Close unmounts the overlay.
func (s *Session) Close() {
	s.overlay.Close()
}

// applyLocked lays the cards out before handing the overlay the new
// collection so the pass sees mounted elements.
func (s *Session) applyLocked() {
	s.surface.Apply(s.nodes, s.collapsed)
	s.overlay.SetNodes(s.nodes)
}

// onPaths publishes a pass result unless it repeats the previous one.
func (s *Session) onPaths(paths []connector.Path) {
	s.mu.Lock()
	if s.published && slices.Equal(s.last, paths) {
		s.mu.Unlock()
		return
	}
	s.last = paths
	s.published = true
	s.mu.Unlock()

	if s.pub != nil {
		s.pub.Publish(sse.Event{Type: sse.TypeConnectors, Data: map[string]any{"paths": paths}})
	}
}
