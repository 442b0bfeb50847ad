package render

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/aoli-al/havoc-mutation-eval/internal/analysis"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	return table
}

func mark(s string, significant bool) string {
	if significant {
		return s + "*"
	}
	return s
}

// PrintCoverage writes the median coverage of every fuzzer and subject.
// Significant differences from the baseline carry a star.
func PrintCoverage(w io.Writer, table *analysis.CoverageTable) {
	t := newTable(w, "fuzzer", "subject", "campaigns", "trial_bound", "time_bound", "normalized")
	for _, fuzzer := range table.Fuzzers {
		for _, subject := range table.Subjects {
			a, ok := table.Get(fuzzer, subject)
			if !ok {
				continue
			}
			row := []string{fuzzer, subject, strconv.Itoa(a.Campaigns)}
			for _, m := range analysis.Metrics {
				row = append(row, mark(number(a.Cells[m].Median), a.Cells[m].Significant))
			}
			t.Append(row)
		}
	}
	t.Render()
}

func PrintSlowdown(w io.Writer, results []analysis.SlowdownResult) {
	t := newTable(w, "benchmark", "technique", "geo_mean", "std_dev", "count")
	for _, r := range results {
		t.Append([]string{
			r.Benchmark, r.Technique,
			fmt.Sprintf("%.2f", r.GeoMean), fmt.Sprintf("%.2f", r.GeoStd), strconv.Itoa(r.Count),
		})
	}
	t.Render()
}

func PrintDefectRates(w io.Writer, rates []analysis.DefectRate) {
	t := newTable(w, "subject", "defect", "fuzzer", "detected", "median_min", "p_value")
	for _, r := range rates {
		median := "-"
		if r.MedianTime >= 0 {
			median = fmt.Sprintf("%.1f", r.MedianTime.Minutes())
		}
		t.Append([]string{
			r.Subject, r.Defect, r.Fuzzer,
			mark(fmt.Sprintf("%d/%d", r.Detected, r.Campaigns), r.Significant),
			median, fmt.Sprintf("%.4f", r.PValue),
		})
	}
	t.Render()
}

// PrintMatrix writes a mutation matrix with benchmarks as columns.
func PrintMatrix(w io.Writer, m *analysis.MutationMatrix) {
	t := newTable(w, append([]string{"algorithm"}, m.Benchmarks...)...)
	for i, a := range m.Algorithms {
		row := []string{a}
		for j := range m.Benchmarks {
			v := m.Values[i][j]
			if math.IsNaN(v) {
				row = append(row, "N/A")
				continue
			}
			row = append(row, fmt.Sprintf("%.3f", v))
		}
		t.Append(row)
	}
	t.Render()
}
