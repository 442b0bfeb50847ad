// Package render turns analysis results into LaTeX tables, charts, console
// summaries and an HTML report.
package render

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/analysis"
)

var titleCaser = cases.Title(language.English)

// Title is the display form of a subject or benchmark name.
func Title(name string) string {
	return titleCaser.String(name)
}

// boundLabel names a time bound the way the column headers do, e.g. 24hr.
func boundLabel(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("%dhr", d/time.Hour)
	}
	if d > 0 && d%time.Minute == 0 {
		return fmt.Sprintf("%dmin", d/time.Minute)
	}
	return d.String()
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// colorize marks a significant value red when it is below the reference
// and \chigher when above.
func colorize(value, reference float64, significant bool) string {
	s := number(value)
	switch {
	case !significant || value == reference:
		return s
	case value < reference:
		return `\textcolor{red}{` + s + `}`
	default:
		return `\textcolor{\chigher}{` + s + `}`
	}
}

// CoverageTable writes the branch coverage table: one row per fuzzer in
// legend order, a fixed-trial and a time-bound column per subject, and a
// last row with the normalized coverage of the plan's normalized fuzzer.
func CoverageTable(w io.Writer, table *analysis.CoverageTable, plan *config.Plan) error {
	subjects := table.Subjects
	var b strings.Builder

	fmt.Fprintf(&b, `\begin{table}[t]
    \centering
    \scriptsize
    \setlength{\tabcolsep}{3pt}
    \caption{For each fuzzer, we report the median branch coverage in application classes for each subject across %d fuzzing campaigns after %s. Values in \textcolor{red}{red} indicate a statistically significant decrease compared to %s, while \textcolor{\chigher}{olive} values show a significant increase. The highest value for each benchmark is highlighted in blue.}
    \label{tab:cov}
`, plan.Repetitions, boundCaption(plan.TimeBound), table.Baseline)

	columns := "l"
	for range subjects {
		columns += "|cc"
	}
	fmt.Fprintf(&b, "    \\begin{tabular}{%s}\n    \\toprule\n", columns)

	head := []string{`\multirow{3}{*}{\textbf{Fuzzer}}`}
	var fixed, trial []string
	for i, s := range subjects {
		sep := "c|"
		if i == len(subjects)-1 {
			sep = "c"
		}
		head = append(head, fmt.Sprintf(`\multicolumn{2}{%s}{\textbf{%s}}`, sep, Title(s)))
		fixed = append(fixed, fmt.Sprintf(`Fixed & \multirow{2}{*}{%s}`, boundLabel(plan.TimeBound)))
		trial = append(trial, "Trial &")
	}
	fmt.Fprintf(&b, "    %s\\\\\n", strings.Join(head, " & "))
	fmt.Fprintf(&b, "    & %s \\\\\n", strings.Join(fixed, " & "))
	fmt.Fprintf(&b, "    & %s \\\\\n", strings.Join(trial, " & "))
	b.WriteString("    \\midrule\n")

	for _, fuzzer := range table.Fuzzers {
		row := []string{"    " + fuzzer}
		for _, s := range subjects {
			a, ok := table.Get(fuzzer, s)
			base, hasBase := table.Get(table.Baseline, s)
			for _, m := range []analysis.Metric{analysis.TrialBound, analysis.TimeBound} {
				if !ok || !hasBase {
					row = append(row, "N/A")
					continue
				}
				cell := colorize(a.Cells[m].Median, base.Cells[m].Median, a.Cells[m].Significant)
				if a.Cells[m].Median == table.Max(s, m) {
					cell = `\cellcolor{blue!15}` + cell
				}
				row = append(row, cell)
			}
		}
		b.WriteString(strings.Join(row, " & ") + " \\\\\n")
	}

	row := []string{`    ` + plan.NormalizedFuzzer + `$^{N}$`}
	for _, s := range subjects {
		a, ok := table.Get(plan.NormalizedFuzzer, s)
		base, hasBase := table.Get(table.Baseline, s)
		if !ok || !hasBase {
			row = append(row, "N/A", "N/A")
			continue
		}
		cell := a.Cells[analysis.Normalized]
		row = append(row, "N/A", colorize(cell.Median, base.Cells[analysis.TimeBound].Median, cell.Significant))
	}
	b.WriteString(strings.Join(row, " & ") + " \\\\\n")

	b.WriteString("    \\bottomrule\n    \\end{tabular}\n\\end{table}")
	_, err := io.WriteString(w, b.String())
	return err
}

func boundCaption(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", n)
	}
	return d.String()
}

// slowdownColor shades a slowdown cell red below 1 and green above.
func slowdownColor(v float64) string {
	if v < 1 {
		return fmt.Sprintf(`\cellcolor{red!%d!white}`, clampPercent(100*(1-v)))
	}
	return fmt.Sprintf(`\cellcolor{green!%d!white}`, clampPercent(50*(v-1)))
}

func clampPercent(v float64) int {
	return max(0, min(100, int(v)))
}

// SlowdownTable writes the runtime slowdown of every slowdown pair per
// benchmark. Benchmarks are sorted; missing cells are dashes.
func SlowdownTable(w io.Writer, results []analysis.SlowdownResult, plan *config.Plan) error {
	cells := make(map[[2]string]analysis.SlowdownResult, len(results))
	var benchmarks []string
	for _, r := range results {
		cells[[2]string{r.Benchmark, r.Technique}] = r
		if !slices.Contains(benchmarks, r.Benchmark) {
			benchmarks = append(benchmarks, r.Benchmark)
		}
	}
	slices.Sort(benchmarks)

	labels := make([]string, 0, len(plan.Slowdowns))
	for _, p := range plan.Slowdowns {
		labels = append(labels, `\textbf{`+p.Label+`}`)
	}

	lines := []string{
		`% Requires \usepackage{xcolor} in the preamble`,
		`\begin{table}[t]`,
		`\centering`,
		`\scriptsize`,
		`\caption{Runtime Slowdown by Benchmark and Technique (compared to baseline)}`,
		`\begin{tabular}{l|` + strings.Repeat("c", len(plan.Slowdowns)) + `}`,
		`\toprule`,
		`\textbf{Benchmark} & ` + strings.Join(labels, " & ") + ` \\`,
		`\midrule`,
	}
	for _, bench := range benchmarks {
		row := bench
		for _, p := range plan.Slowdowns {
			r, ok := cells[[2]string{bench, p.Label}]
			if !ok || math.IsNaN(r.GeoMean) {
				row += " & -"
				continue
			}
			row += fmt.Sprintf(` & $\footnotesize%s%.2f\times %.2f$$^{\pm 1}$`, slowdownColor(r.GeoMean), r.GeoMean, r.GeoStd)
		}
		lines = append(lines, row+` \\`)
	}
	lines = append(lines, `\bottomrule`, `\end{tabular}`, `\label{tab:runtime_slowdown}`, `\end{table}`)
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// DetectionTable writes how many campaigns of each fuzzer detected each
// defect, with the median detection time in minutes. Significant
// differences from the baseline are coloured like the coverage table.
func DetectionTable(w io.Writer, rates []analysis.DefectRate, plan *config.Plan) error {
	type key struct{ subject, defect string }
	var keys []key
	var fuzzers []string
	cells := make(map[key]map[string]analysis.DefectRate)
	for _, r := range rates {
		k := key{r.Subject, r.Defect}
		if cells[k] == nil {
			cells[k] = make(map[string]analysis.DefectRate)
			keys = append(keys, k)
		}
		cells[k][r.Fuzzer] = r
		if !slices.Contains(fuzzers, r.Fuzzer) {
			fuzzers = append(fuzzers, r.Fuzzer)
		}
	}
	fuzzers = plan.Ordered(fuzzers)

	head := []string{`\textbf{Subject}`, `\textbf{Defect}`}
	for _, f := range fuzzers {
		head = append(head, `\textbf{`+f+`}`)
	}
	lines := []string{
		`\begin{table}[t]`,
		`\centering`,
		`\scriptsize`,
		`\caption{Defect detection rate and median time to detection (minutes) per fuzzer.}`,
		`\label{tab:detections}`,
		`\begin{tabular}{ll|` + strings.Repeat("c", len(fuzzers)) + `}`,
		`\toprule`,
		strings.Join(head, " & ") + ` \\`,
		`\midrule`,
	}
	prev := ""
	for _, k := range keys {
		subject := ""
		if k.subject != prev {
			subject = Title(k.subject)
			prev = k.subject
		}
		row := []string{subject, k.defect}
		base, hasBase := cells[k][plan.Baseline]
		for _, f := range fuzzers {
			r, ok := cells[k][f]
			if !ok {
				row = append(row, "N/A")
				continue
			}
			rate := fmt.Sprintf("%d/%d", r.Detected, r.Campaigns)
			if hasBase && r.Significant && r.Rate() != base.Rate() {
				color := "red"
				if r.Rate() > base.Rate() {
					color = `\chigher`
				}
				rate = `\textcolor{` + color + `}{` + rate + `}`
			}
			if r.MedianTime >= 0 {
				rate += fmt.Sprintf(" (%.1f)", r.MedianTime.Minutes())
			}
			row = append(row, rate)
		}
		lines = append(lines, strings.Join(row, " & ")+` \\`)
	}
	lines = append(lines, `\bottomrule`, `\end{tabular}`, `\end{table}`)
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}
