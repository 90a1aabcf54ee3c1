package connector

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/starford/hiertree/internal/models"
)

const (
	// DefaultGap is the horizontal distance between the trunk column and
	// the child's left edge.
	DefaultGap = 12.0
	// Radius is the elbow corner radius.
	Radius = 12.0
)

// UsableGap reports whether gap is a positive finite number.
func UsableGap(gap float64) bool {
	return gap > 0 && !math.IsInf(gap, 1)
}

// Rect is a bounding rectangle. Coordinates grow right and down.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// CenterY returns the vertical center.
func (r Rect) CenterY() float64 { return r.Top + r.Height/2 }

// Relative expresses r in the frame whose origin is the top-left corner of
// frame.
func (r Rect) Relative(frame Rect) Rect {
	return Rect{
		Left:   r.Left - frame.Left,
		Top:    r.Top - frame.Top,
		Width:  r.Width,
		Height: r.Height,
	}
}

// Element is an opaque handle to a mounted node card or container. Rect
// reports its current bounding rectangle in viewport coordinates.
type Element interface {
	Rect() Rect
}

// Lookup resolves a node id to its mounted element.
type Lookup interface {
	Lookup(id int64) (Element, bool)
}

// Path is one connector between a child and its parent.
type Path struct {
	Child  int64  `json:"child"`
	Parent int64  `json:"parent"`
	D      string `json:"d"`
}

// Compute returns one path per edge whose endpoints are both mounted, in
// node order. Edges with a missing endpoint are skipped; a nil container
// yields no paths. A gap that is not a positive finite number falls back
// to DefaultGap.
func Compute(nodes []models.Node, elements Lookup, container Element, gap float64) []Path {
	if container == nil || elements == nil {
		return nil
	}
	if !UsableGap(gap) {
		gap = DefaultGap
	}
	frame := container.Rect()

	var out []Path
	for _, n := range nodes {
		if n.IsRoot() {
			continue
		}
		childEl, ok := elements.Lookup(n.ID)
		if !ok {
			continue
		}
		parentEl, ok := elements.Lookup(n.Parent)
		if !ok {
			continue
		}
		d := Elbow(childEl.Rect().Relative(frame), parentEl.Rect().Relative(frame), gap)
		out = append(out, Path{Child: n.ID, Parent: n.Parent, D: d})
	}
	return out
}

// Elbow synthesizes the connector for a child and parent rectangle that
// are already in the same frame. The trunk column always derives from the
// child's left edge.
func Elbow(child, parent Rect, gap float64) string {
	colX := child.Left - gap
	cY := child.CenterY()
	pY := parent.CenterY()

	// Stop one radius short of the child's center on the side we arrive
	// from; a child above its parent arrives from below.
	turnY := cY - Radius
	if pY >= cY {
		turnY = cY + Radius
	}

	d := fmt.Sprintf("M %s %s\n\tV %s\n\tQ %s %s %s %s\n\tH %s",
		num(colX), num(pY),
		num(turnY),
		num(colX), num(cY), num(colX+Radius), num(cY),
		num(colX+gap),
	)
	return collapseSpace(d)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
