package schema

import (
	"sort"
	"strings"
)

// ElementKind classifies a parsed document element.
type ElementKind string

const (
	KindParagraph ElementKind = "paragraph"
	KindTitle     ElementKind = "title"
	KindTableCell ElementKind = "table-cell"
	KindOther     ElementKind = "other"
)

// Element is one positioned text fragment of a parsed document. The
// bounding box is kept exactly as the parser reported it; the engine never
// re-normalises coordinates.
type Element struct {
	Text string      `json:"text"`
	Page int         `json:"page"`
	X0   float64     `json:"x0"`
	Y0   float64     `json:"y0"`
	X1   float64     `json:"x1"`
	Y1   float64     `json:"y1"`
	Kind ElementKind `json:"kind"`
}

// CenterX returns the horizontal centre of the bounding box.
func (e Element) CenterX() float64 { return (e.X0 + e.X1) / 2 }

// CenterY returns the vertical centre of the bounding box.
func (e Element) CenterY() float64 { return (e.Y0 + e.Y1) / 2 }

// Width returns the bounding box width.
func (e Element) Width() float64 { return e.X1 - e.X0 }

// Height returns the bounding box height.
func (e Element) Height() float64 { return e.Y1 - e.Y0 }

// Area returns the bounding box area.
func (e Element) Area() float64 { return e.Width() * e.Height() }

// ParsedDocument is the parser's output: positioned elements plus an opaque
// tag naming the coordinate convention they were produced in.
type ParsedDocument struct {
	Elements   []Element `json:"elements"`
	CoordSpace string    `json:"coord_space,omitempty"`
}

// Text returns the document text, elements joined by newlines in reading
// order (page, then top-to-bottom, then left-to-right).
func (d *ParsedDocument) Text() string {
	ordered := d.inReadingOrder()
	parts := make([]string, 0, len(ordered))
	for _, e := range ordered {
		if t := strings.TrimSpace(e.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// Line is a group of elements sharing a page and a near-equal vertical
// centre, ordered left to right.
type Line struct {
	Page     int
	Y        float64
	Elements []Element
}

// Lines groups the document's elements into lines. The vertical tolerance
// adapts to the coordinate space: half the median element height.
func (d *ParsedDocument) Lines() []Line {
	ordered := d.inReadingOrder()
	if len(ordered) == 0 {
		return nil
	}

	tol := lineTolerance(ordered)
	var lines []Line
	for _, e := range ordered {
		n := len(lines)
		if n > 0 && lines[n-1].Page == e.Page && abs(e.CenterY()-lines[n-1].Y) <= tol {
			lines[n-1].Elements = append(lines[n-1].Elements, e)
			continue
		}
		lines = append(lines, Line{Page: e.Page, Y: e.CenterY(), Elements: []Element{e}})
	}
	for i := range lines {
		sort.SliceStable(lines[i].Elements, func(a, b int) bool {
			return lines[i].Elements[a].X0 < lines[i].Elements[b].X0
		})
	}
	return lines
}

func (d *ParsedDocument) inReadingOrder() []Element {
	ordered := make([]Element, len(d.Elements))
	copy(ordered, d.Elements)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Page != ordered[j].Page {
			return ordered[i].Page < ordered[j].Page
		}
		if ordered[i].CenterY() != ordered[j].CenterY() {
			return ordered[i].CenterY() < ordered[j].CenterY()
		}
		return ordered[i].X0 < ordered[j].X0
	})
	return ordered
}

func lineTolerance(elements []Element) float64 {
	heights := make([]float64, 0, len(elements))
	for _, e := range elements {
		if h := e.Height(); h > 0 {
			heights = append(heights, h)
		}
	}
	if len(heights) == 0 {
		return 0.5
	}
	sort.Float64s(heights)
	return heights[len(heights)/2] / 2
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
