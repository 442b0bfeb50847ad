package render

import (
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/analysis"
)

const (
	chartWidth  = 1024
	chartHeight = 512
)

// dashes per legend slot so lines stay apart in grayscale
var dashStyles = [][]float64{
	{6, 3, 2, 3}, {3, 1, 1, 1}, {1, 2}, {5, 3}, {5, 1}, nil,
}

func fuzzerColor(plan *config.Plan, fuzzer string) drawing.Color {
	return drawing.ColorFromHex(plan.Color(fuzzer))
}

func dashFor(plan *config.Plan, fuzzer string) []float64 {
	for i, f := range plan.LegendOrder {
		if f == fuzzer && i < len(dashStyles) {
			return dashStyles[i]
		}
	}
	return nil
}

func background() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}}
}

// CoverageChart plots the median covered branches over time of every
// fuzzer on one subject, with thin lines bounding the min-max spread.
func CoverageChart(w io.Writer, subject string, bands []analysis.Band, plan *config.Plan) error {
	var series []chart.Series
	var top float64
	for _, b := range bands {
		if len(b.Times) == 0 {
			continue
		}
		minutes := make([]float64, len(b.Times))
		for i, t := range b.Times {
			minutes[i] = t.Minutes()
		}
		color := fuzzerColor(plan, b.Fuzzer)
		spread := chart.Style{StrokeColor: color.WithAlpha(80), StrokeWidth: 1}
		series = append(series,
			chart.ContinuousSeries{
				Name:    b.Fuzzer,
				XValues: minutes,
				YValues: b.Median,
				Style:   chart.Style{StrokeColor: color, StrokeWidth: 2, StrokeDashArray: dashFor(plan, b.Fuzzer)},
			},
			chart.ContinuousSeries{XValues: minutes, YValues: b.Min, Style: spread},
			chart.ContinuousSeries{XValues: minutes, YValues: b.Max, Style: spread},
		)
		for _, v := range b.Max {
			top = math.Max(top, v)
		}
	}
	if len(series) == 0 {
		return fmt.Errorf("no coverage to plot for %s", subject)
	}

	graph := chart.Chart{
		Title:      Title(subject),
		Width:      chartWidth,
		Height:     chartHeight,
		Background: background(),
		XAxis:      chart.XAxis{Name: "Time (Minutes)"},
		YAxis:      chart.YAxis{Name: "Covered Branches", Range: &chart.ContinuousRange{Min: 0, Max: math.Max(1, top*1.05)}},
		Series:     series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}
	return graph.Render(chart.PNG, w)
}

// MutationScatter plots byte distance against string distance for one
// benchmark, one colour per algorithm, with the y = x diagonal. Infinite
// distances are left out.
func MutationScatter(w io.Writer, benchmark string, records []analysis.MutationRecord, plan *config.Plan) error {
	byAlgorithm := make(map[string][2][]float64)
	var algorithms []string
	for _, r := range records {
		if r.Benchmark != benchmark || r.SavedOnly() {
			continue
		}
		if !finite(r.MutationBytes) || !finite(r.MutationString) {
			continue
		}
		xy, ok := byAlgorithm[r.Algorithm]
		if !ok {
			algorithms = append(algorithms, r.Algorithm)
		}
		xy[0] = append(xy[0], r.MutationBytes)
		xy[1] = append(xy[1], r.MutationString)
		byAlgorithm[r.Algorithm] = xy
	}
	if len(algorithms) == 0 {
		return fmt.Errorf("no mutations to plot for %s", benchmark)
	}

	series := []chart.Series{chart.ContinuousSeries{
		Name:    "y = x",
		XValues: []float64{0, 1},
		YValues: []float64{0, 1},
		Style:   chart.Style{StrokeColor: drawing.ColorBlack, StrokeWidth: 1, StrokeDashArray: []float64{4, 4}},
	}}
	for _, a := range plan.Ordered(algorithms) {
		xy := byAlgorithm[a]
		series = append(series, chart.ContinuousSeries{
			Name:    a,
			XValues: xy[0],
			YValues: xy[1],
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    2,
				DotColor:    fuzzerColor(plan, a).WithAlpha(120),
			},
		})
	}

	graph := chart.Chart{
		Title:      Title(benchmark),
		Width:      chartHeight + 200,
		Height:     chartHeight + 200,
		Background: background(),
		XAxis:      chart.XAxis{Name: "Byte-level distance", Range: &chart.ContinuousRange{Min: 0, Max: 1}},
		YAxis:      chart.YAxis{Name: "String-level distance", Range: &chart.ContinuousRange{Min: 0, Max: 1}},
		Series:     series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}
	return graph.Render(chart.PNG, w)
}

// RateBars draws a grouped bar chart of a mutation matrix: one group per
// benchmark, one bar per algorithm. With logScale bars show log10 of the
// value around a zero baseline. Missing and infinite cells are skipped.
func RateBars(w io.Writer, title, yName string, m *analysis.MutationMatrix, plan *config.Plan, logScale bool) error {
	var bars []chart.Value
	for j, bench := range m.Benchmarks {
		if j > 0 {
			bars = append(bars, chart.Value{Label: " ", Style: chart.Style{FillColor: drawing.ColorTransparent, StrokeColor: drawing.ColorTransparent}})
		}
		for i, a := range m.Algorithms {
			v := m.Values[i][j]
			if !finite(v) || (logScale && v <= 0) {
				continue
			}
			if logScale {
				v = math.Log10(v)
			}
			color := fuzzerColor(plan, a)
			bars = append(bars, chart.Value{
				Label: Title(bench) + "/" + a,
				Value: v,
				Style: chart.Style{FillColor: color, StrokeColor: color},
			})
		}
	}
	if len(bars) == 0 {
		return fmt.Errorf("no values to plot for %s", title)
	}
	if logScale {
		yName = "log10 " + yName
	}

	graph := chart.BarChart{
		Title:        title,
		Width:        max(chartWidth, 40*len(bars)),
		Height:       chartHeight + 100,
		Background:   chart.Style{Padding: chart.Box{Top: 40, Bottom: 120}},
		BarWidth:     24,
		BarSpacing:   4,
		UseBaseValue: logScale,
		BaseValue:    0,
		XAxis:        chart.Style{TextRotationDegrees: 90, FontSize: 8},
		YAxis:        chart.YAxis{Name: yName},
		Bars:         bars,
	}
	return graph.Render(chart.PNG, w)
}

// Heatmap draws a matrix as coloured cells, blue for negative values and
// red for positive ones, with N/A for missing cells.
func Heatmap(w io.Writer, title string, m *analysis.MutationMatrix) error {
	const (
		cell   = 90
		left   = 140
		top    = 60
		bottom = 40
	)
	width := left + cell*len(m.Benchmarks) + 20
	height := top + cell*len(m.Algorithms) + bottom

	r, err := chart.PNG(width, height)
	if err != nil {
		return err
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return err
	}
	r.SetFont(font)

	r.SetFillColor(drawing.ColorWhite)
	fillRect(r, 0, 0, width, height)

	var scale float64
	for _, row := range m.Values {
		for _, v := range row {
			if finite(v) {
				scale = math.Max(scale, math.Abs(v))
			}
		}
	}

	r.SetFontColor(drawing.ColorBlack)
	r.SetFontSize(14)
	r.Text(title, left, top/2)
	r.SetFontSize(10)
	for j, bench := range m.Benchmarks {
		r.Text(Title(bench), left+j*cell+8, height-bottom/2)
	}
	for i, a := range m.Algorithms {
		y := top + i*cell
		r.Text(a, 8, y+cell/2)
		for j := range m.Benchmarks {
			x := left + j*cell
			v := m.Values[i][j]
			label := "N/A"
			r.SetFillColor(drawing.Color{R: 230, G: 230, B: 230, A: 255})
			if !math.IsNaN(v) {
				label = fmt.Sprintf("%.3f", v)
				r.SetFillColor(divergingColor(v, scale))
			}
			fillRect(r, x, y, x+cell-2, y+cell-2)
			r.Text(label, x+cell/4, y+cell/2)
		}
	}
	return r.Save(w)
}

func fillRect(r chart.Renderer, x0, y0, x1, y1 int) {
	r.MoveTo(x0, y0)
	r.LineTo(x1, y0)
	r.LineTo(x1, y1)
	r.LineTo(x0, y1)
	r.Close()
	r.Fill()
}

// divergingColor fades from white to red for positive values and to blue
// for negative ones.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func divergingColor(v, scale float64) drawing.Color {
	if scale == 0 {
		return drawing.ColorWhite
	}
	t := math.Min(1, math.Abs(v)/scale)
	fade := uint8(255 * (1 - t))
	if v >= 0 {
		return drawing.Color{R: 255, G: fade, B: fade, A: 255}
	}
	return drawing.Color{R: fade, G: fade, B: 255, A: 255}
}
