package render

import (
	"fmt"
	"html/template"
	"time"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct":     func(v float64) string { return fmt.Sprintf("%.0f%%", 100*v) },
	"minutes": formatMinutes,
	"float":   func(v float64) string { return fmt.Sprintf("%.3g", v) },
}).Parse(reportHTML))

func formatMinutes(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", d.Minutes())
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        * { font-family: Open Sans, sans-serif; color: black; }
        h2 { font-size: 20px; font-weight: 550; display: block; }
        h3 { font-size: 12px; display: block; }
        img { max-width: 100%; max-height: calc((100vh - 100px) * 1 / 2); width: auto; height: auto; object-fit: contain; }
        .wrapper { display: flex; overflow-x: scroll; gap: 20px; }
        table * { font-size: 10px; font-weight: normal; text-align: right; padding: 5px; }
        table { border-bottom: black 1px solid; border-top: black 1px solid; border-collapse: collapse; }
    </style>
    <title>{{.Title}}</title>
</head>
<body>
<div>
    <h2>Coverage</h2>
    <div class="wrapper">
    {{- range .Figures}}
        <img src="{{.Path}}" alt="{{.Title}}">
    {{- end}}
    </div>
    <div>
        <h3>Median Coverage (* significant against {{.Baseline}})</h3>
        <table>
            <tr>{{range .CoverageHeader}}<th>{{.}}</th>{{end}}</tr>
            {{- range .CoverageRows}}
            <tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
            {{- end}}
        </table>
    </div>
    {{- if .Pairwise}}
    <div>
        <h3>Pairwise P-Values and Effect Sizes</h3>
        <div class="wrapper">
        {{- range .Pairwise}}
            <table>
                <caption>{{.Subject}}</caption>
                <tr><th></th>{{range .Fuzzers}}<th>{{.}}</th>{{end}}</tr>
                {{- range .Rows}}
                <tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
                {{- end}}
            </table>
        {{- end}}
        </div>
    </div>
    {{- end}}
    {{- if .Detections}}
    <h2>Defect Detections</h2>
    <table>
        <tr><th>Subject</th><th>Defect</th><th>Fuzzer</th><th>Rate</th><th>Median (min)</th><th>p</th></tr>
        {{- range .Detections}}
        <tr><td>{{.Subject}}</td><td>{{.Defect}}</td><td>{{.Fuzzer}}</td><td>{{pct .Rate}}{{if .Significant}}*{{end}}</td><td>{{minutes .MedianTime}}</td><td>{{float .PValue}}</td></tr>
        {{- end}}
    </table>
    {{- end}}
    {{- if .Slowdown}}
    <h2>Runtime Slowdown</h2>
    <table>
        <tr><th>Benchmark</th><th>Technique</th><th>Geometric mean</th><th>Geometric std</th><th>Count</th></tr>
        {{- range .Slowdown}}
        <tr><td>{{.Benchmark}}</td><td>{{.Technique}}</td><td>{{float .GeoMean}}</td><td>{{float .GeoStd}}</td><td>{{.Count}}</td></tr>
        {{- end}}
    </table>
    {{- end}}
    {{- if .Mutations}}
    <h2>Mutations</h2>
    <div class="wrapper">
    {{- range .Mutations}}
        <img src="{{.Path}}" alt="{{.Title}}">
    {{- end}}
    </div>
    {{- end}}
    <h2>Artifacts</h2>
    <ul>
    {{- range .Artifacts}}
        <li><a href="{{.}}">{{.}}</a></li>
    {{- end}}
    </ul>
</div>
</body>
</html>
`
