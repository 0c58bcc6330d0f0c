// Package export renders the org chart as a standalone HTML page or a PDF.
package export

import (
	"errors"
	"time"

	"organiflow/api/internal/hierarchy"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query value to a Format. Empty means PDF.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for an export operation
type Request struct {
	Title   string
	Forest  hierarchy.Forest
	Version uint64
	Format  Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat indicates the requested format is not html or pdf.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)

// ChartData holds data for chart template rendering
type ChartData struct {
	Title       string
	Version     uint64
	Count       int
	GeneratedAt time.Time
	Roots       []ChartNode
}

// ChartNode is one card on the rendered chart.
type ChartNode struct {
	ID       int64
	Name     string
	Title    string
	Children []ChartNode
}

func chartNodes(nodes []*hierarchy.Node) []ChartNode {
	out := make([]ChartNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, ChartNode{
			ID:       n.Record.ID,
			Name:     n.Record.Name,
			Title:    n.Record.Title,
			Children: chartNodes(n.Children),
		})
	}
	return out
}
