package export

import (
	"bytes"
	"html/template"
)

var chartTemplate = template.Must(template.New("chart").Parse(chartHTML))

// RenderChartHTML renders the chart template with provided data
func RenderChartHTML(data ChartData) (string, error) {
	var buf bytes.Buffer
	if err := chartTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const chartHTML = `{{define "node"}}<li>
  <div class="card" data-id="{{.ID}}"><strong>{{.Name}}</strong>{{if .Title}}<span>{{.Title}}</span>{{end}}</div>
  {{if .Children}}<ul>{{range .Children}}{{template "node" .}}{{end}}</ul>{{end}}
</li>{{end}}<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    @page { size: landscape; }
    body { font-family: Arial, sans-serif; margin: 1.5rem; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 1.5rem; }
    ul { list-style: none; padding-left: 1.5rem; border-left: 1px solid #ccc; }
    .chart > ul { border-left: none; padding-left: 0; }
    .card { display: inline-block; margin: 0.25rem 0; padding: 0.4rem 0.75rem; border: 1px solid #333; border-radius: 6px; }
    .card span { display: block; color: #666; font-size: 0.85em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Count}} employees | version {{.Version}} | {{.GeneratedAt.Format "Jan 2, 2006 15:04 MST"}}</div>
  <div class="chart">{{if .Roots}}<ul>{{range .Roots}}{{template "node" .}}{{end}}</ul>{{else}}<p>No employees.</p>{{end}}</div>
</body>
</html>`
