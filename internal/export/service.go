package export

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type pdfRenderer func(ctx context.Context, html, title string) (*Result, error)

// Service renders chart exports.
type Service struct {
	pdf pdfRenderer
	now func() time.Time
}

// NewService creates an export service that prints PDFs with headless Chrome.
func NewService() *Service {
	return &Service{pdf: exportPDF, now: time.Now}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Org chart"
	}
	html, err := RenderChartHTML(ChartData{
		Title:       title,
		Version:     req.Version,
		Count:       req.Forest.Len(),
		GeneratedAt: s.now().UTC(),
		Roots:       chartNodes(req.Forest),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, html, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
