// Package layout places tree cards the way the editor renders them and
// plays the host role for the connector overlay: it binds mounted cards
// into the element registry, runs resize observers and dispatches scroll
// and viewport resize events.
package layout

import (
	"sync"
	"unicode/utf8"

	"github.com/starford/hiertree/internal/connector"
	"github.com/starford/hiertree/internal/models"
	"github.com/starford/hiertree/internal/tree"
)

// Options holds card geometry.
type Options struct {
	OriginX    float64 `yaml:"origin_x"`
	OriginY    float64 `yaml:"origin_y"`
	Indent     float64 `yaml:"indent"`
	MarginTop  float64 `yaml:"margin_top"`
	CardHeight float64 `yaml:"card_height"`
	CardWidth  float64 `yaml:"card_width"`
	// CharWidth estimates label width; cards grow past CardWidth for long
	// labels.
	CharWidth float64 `yaml:"char_width"`
}

// DefaultOptions matches the editor stylesheet: 48px indent per level,
// 40px top margin per card.
func DefaultOptions() Options {
	return Options{
		Indent:     48,
		MarginTop:  40,
		CardHeight: 40,
		CardWidth:  240,
		CharWidth:  8,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Indent <= 0 {
		o.Indent = d.Indent
	}
	if o.MarginTop < 0 {
		o.MarginTop = d.MarginTop
	}
	if o.CardHeight <= 0 {
		o.CardHeight = d.CardHeight
	}
	if o.CardWidth <= 0 {
		o.CardWidth = d.CardWidth
	}
	if o.CharWidth < 0 {
		o.CharWidth = d.CharWidth
	}
	return o
}

// cardPadding covers the toggle button and icon area of a card.
const cardPadding = 96

func (o Options) cardWidth(text string) float64 {
	w := cardPadding + o.CharWidth*float64(utf8.RuneCountInString(text))
	if w < o.CardWidth {
		return o.CardWidth
	}
	return w
}

// Placed is a rendered row with its card rectangle in viewport coordinates.
type Placed struct {
	tree.Row
	Rect connector.Rect `json:"rect"`
}

// Box is a mounted card element.
type Box struct {
	id int64
	mu sync.RWMutex
	r  connector.Rect
}

// ID returns the node id the card renders.
func (b *Box) ID() int64 { return b.id }

// Rect implements connector.Element.
func (b *Box) Rect() connector.Rect {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.r
}

func (b *Box) set(r connector.Rect) (resized bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	resized = b.r.Width != r.Width || b.r.Height != r.Height
	b.r = r
	return resized
}

// Surface is the scrollable container the tree renders into.
type Surface struct {
	registry *connector.Registry
	opts     Options

	mu        sync.Mutex
	width     float64
	height    float64
	scrollX   float64
	scrollY   float64
	boxes     map[int64]*Box
	content   map[int64]connector.Rect // unscrolled card positions
	observers map[*observer]struct{}
	listeners map[int]*listener
	nextL     int
}

// NewSurface creates an empty surface of the given viewport size that
// binds its cards into registry.
func NewSurface(registry *connector.Registry, width, height float64, opts Options) *Surface {
	return &Surface{
		registry:  registry,
		opts:      opts.withDefaults(),
		width:     width,
		height:    height,
		boxes:     make(map[int64]*Box),
		content:   make(map[int64]connector.Rect),
		observers: make(map[*observer]struct{}),
		listeners: make(map[int]*listener),
	}
}

// Registry returns the element registry the surface binds into.
func (s *Surface) Registry() *connector.Registry { return s.registry }

// Rect implements connector.Element. The container sits at the viewport
// origin.
func (s *Surface) Rect() connector.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return connector.Rect{Width: s.width, Height: s.height}
}

// Apply lays out nodes, mounting cards that became visible, unmounting the
// ones that disappeared and moving the rest. Observers of cards whose size
// changed are notified.
func (s *Surface) Apply(nodes []models.Node, collapsed map[int64]bool) []Placed {
	rows := tree.Visible(nodes, collapsed)

	s.mu.Lock()
	placed := make([]Placed, 0, len(rows))
	visible := make(map[int64]struct{}, len(rows))
	var resized []connector.Element
	var mounted, unmounted []int64

	y := s.opts.OriginY
	for _, row := range rows {
		y += s.opts.MarginTop
		content := connector.Rect{
			Left:   s.opts.OriginX + float64(row.Depth)*s.opts.Indent,
			Top:    y,
			Width:  s.opts.cardWidth(row.Node.Text),
			Height: s.opts.CardHeight,
		}
		y += s.opts.CardHeight
		s.content[row.Node.ID] = content
		visible[row.Node.ID] = struct{}{}

		r := s.scrolledLocked(content)
		box, ok := s.boxes[row.Node.ID]
		if !ok {
			box = &Box{id: row.Node.ID, r: r}
			s.boxes[row.Node.ID] = box
			mounted = append(mounted, row.Node.ID)
		} else if box.set(r) {
			resized = append(resized, box)
		}
		placed = append(placed, Placed{Row: row, Rect: r})
	}

	for id := range s.boxes {
		if _, ok := visible[id]; !ok {
			unmounted = append(unmounted, id)
		}
	}
	boxes := make(map[int64]*Box, len(mounted))
	for _, id := range mounted {
		boxes[id] = s.boxes[id]
	}
	for _, id := range unmounted {
		delete(s.boxes, id)
		delete(s.content, id)
	}
	s.mu.Unlock()

	for _, id := range unmounted {
		s.registry.Ref(id)(nil)
	}
	for _, id := range mounted {
		s.registry.Ref(id)(boxes[id])
	}
	s.notifyResized(resized)
	return placed
}

// Box returns the mounted card for id.
func (s *Surface) Box(id int64) (*Box, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boxes[id]
	return b, ok
}

// ScrollTo scrolls the content and dispatches a scroll event to capturing
// listeners. Scroll events do not bubble, so non-capturing window
// listeners never see them.
func (s *Surface) ScrollTo(x, y float64) {
	s.mu.Lock()
	if s.scrollX == x && s.scrollY == y {
		s.mu.Unlock()
		return
	}
	s.scrollX, s.scrollY = x, y
	for id, box := range s.boxes {
		box.set(s.scrolledLocked(s.content[id]))
	}
	cbs := s.listenersLocked(connector.EventScroll, true)
	s.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// Scroll returns the current scroll offset.
func (s *Surface) Scroll() (x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrollX, s.scrollY
}

// Resize changes the viewport size, notifies observers of the container
// and dispatches a resize event.
func (s *Surface) Resize(width, height float64) {
	s.mu.Lock()
	if s.width == width && s.height == height {
		s.mu.Unlock()
		return
	}
	s.width, s.height = width, height
	cbs := s.listenersLocked(connector.EventResize, false)
	s.mu.Unlock()

	s.notifyResized([]connector.Element{s})
	for _, cb := range cbs {
		cb()
	}
}

func (s *Surface) scrolledLocked(r connector.Rect) connector.Rect {
	r.Left -= s.scrollX
	r.Top -= s.scrollY
	return r
}
