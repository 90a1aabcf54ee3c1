package connector

import (
	"io"
	"math"
	"regexp"
	"strconv"

	svg "github.com/ajstarks/svgo"
)

// Stroke styling of connector lines.
const (
	StrokeColor = "#DFDFE2"
	StrokeWidth = 2
)

// colorPattern admits hex colors and bare CSS color keywords, nothing that
// can leave an attribute value.
var colorPattern = regexp.MustCompile(`^(#([0-9A-Fa-f]{3,4}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})|[A-Za-z]{3,20})$`)

// ValidColor reports whether c can be used as a stroke color.
func ValidColor(c string) bool {
	return colorPattern.MatchString(c)
}

const overlayStyle = `style="position:absolute;inset:0;pointer-events:none;overflow:visible"`

// SVGOptions controls overlay rendering.
type SVGOptions struct {
	// Width and Height size the canvas; zero values fall back to the
	// container size passed to RenderSVG.
	Width  int
	Height int
	// Color overrides StrokeColor. Values ValidColor rejects are ignored.
	Color string
}

// RenderSVG writes paths as a non-interactive SVG overlay sized to frame.
func RenderSVG(w io.Writer, paths []Path, frame Rect, opts SVGOptions) {
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = int(math.Ceil(frame.Width))
	}
	if height <= 0 {
		height = int(math.Ceil(frame.Height))
	}
	color := opts.Color
	if !ValidColor(color) {
		color = StrokeColor
	}

	canvas := svg.New(w)
	canvas.Start(width, height, overlayStyle, `aria-hidden="true"`)
	canvas.Group(`class="connectors"`)
	for _, p := range paths {
		canvas.Path(p.D,
			`fill="none"`,
			`stroke="`+color+`"`,
			`stroke-width="`+strconv.Itoa(StrokeWidth)+`"`,
			`stroke-linecap="round"`,
			`shape-rendering="geometricPrecision"`,
			`data-child="`+strconv.FormatInt(p.Child, 10)+`"`,
			`data-parent="`+strconv.FormatInt(p.Parent, 10)+`"`,
		)
	}
	canvas.Gend()
	canvas.End()
}
