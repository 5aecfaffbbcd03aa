// Package parser turns PDF bytes into positioned text elements. The
// output keeps coordinates exactly as the underlying library reports
// them, re-expressed in a top-left origin so that reading order is a
// simple page/Y/X sort.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/extrato-ai/extrato/schema"
)

// DefaultTimeout bounds one parse. Parsing is never retried: a document
// that fails to parse once will fail the same way again.
const DefaultTimeout = 30 // seconds

// Parser extracts positioned text from PDF bytes.
type Parser interface {
	Parse(ctx context.Context, pdfBytes []byte) (*schema.ParsedDocument, error)
}

// ParseError represents a failure to parse a PDF.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse: " + e.Message + ": " + e.Err.Error()
	}
	return "parse: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(message string, err error) *ParseError {
	return &ParseError{Message: message, Err: err}
}

// PDFParser is the production Parser built on ledongthuc/pdf.
type PDFParser struct{}

// NewPDFParser creates a PDFParser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse extracts the document's positioned text runs, merging adjacent
// runs on the same baseline into elements.
func (p *PDFParser) Parse(ctx context.Context, pdfBytes []byte) (doc *schema.ParsedDocument, err error) {
	// The underlying library panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, NewParseError(fmt.Sprintf("malformed document: %v", r), nil)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, NewParseError("failed to open document", err)
	}
	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, NewParseError("document has no pages", nil)
	}

	out := &schema.ParsedDocument{CoordSpace: "top-left"}
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, NewParseError("parse cancelled", ctx.Err())
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		out.Elements = append(out.Elements, pageElements(page, pageNum-1)...)
	}
	if len(out.Elements) == 0 {
		return nil, NewParseError("no text content found", nil)
	}
	return out, nil
}

// pageElements merges a page's text runs into elements. Runs sharing a
// baseline are joined while the horizontal gap stays below roughly half
// a character; a wider gap starts a new element, which is what separates
// a printed label from the value next to it.
func pageElements(page pdf.Page, pageIndex int) []schema.Element {
	texts := page.Content().Text
	if len(texts) == 0 {
		return nil
	}
	height := pageHeight(page)

	sort.SliceStable(texts, func(i, j int) bool {
		if texts[i].Y != texts[j].Y {
			return texts[i].Y > texts[j].Y
		}
		return texts[i].X < texts[j].X
	})

	var (
		elements []schema.Element
		builder  strings.Builder
		x0, x1   float64
		y, size  float64
		open     bool
	)
	flush := func() {
		if !open {
			return
		}
		text := strings.TrimSpace(builder.String())
		if text != "" {
			elements = append(elements, schema.Element{
				Text: text,
				Page: pageIndex,
				X0:   x0,
				Y0:   height - y - size,
				X1:   x1,
				Y1:   height - y,
				Kind: schema.KindParagraph,
			})
		}
		builder.Reset()
		open = false
	}

	for _, t := range texts {
		gapLimit := t.FontSize * 0.6
		if gapLimit <= 0 {
			gapLimit = 3
		}
		sameLine := open && absf(t.Y-y) < size/2
		if !sameLine || t.X-x1 > gapLimit {
			flush()
		}
		if !open {
			x0, x1, y, size = t.X, t.X, t.Y, t.FontSize
			open = true
		} else if t.X-x1 > size*0.15 {
			builder.WriteString(" ")
		}
		builder.WriteString(t.S)
		if end := t.X + t.W; end > x1 {
			x1 = end
		}
	}
	flush()
	return elements
}

// pageHeight reads the MediaBox height used to flip the Y axis into a
// top-left origin.
func pageHeight(page pdf.Page) float64 {
	box := page.V.Key("MediaBox")
	if box.IsNull() || box.Len() < 4 {
		return 842 // A4 in points
	}
	return box.Index(3).Float64() - box.Index(1).Float64()
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

var _ Parser = (*PDFParser)(nil)
