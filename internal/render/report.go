package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/analysis"
	"github.com/aoli-al/havoc-mutation-eval/internal/extract"
	"github.com/aoli-al/havoc-mutation-eval/pkg/telemetry"
)

const (
	CoverageTableFile  = "coverage_table.tex"
	SlowdownTableFile  = "slowdown_table.tex"
	DetectionTableFile = "detection_table.tex"
	ReportFile         = "index.html"
	coverageFigureDir  = "cov"
	mutationFigureDir  = "mutation"
)

type Reporter struct {
	logger        *zap.Logger
	plan          *config.Plan
	console       io.Writer
	tracerFactory *telemetry.TracerFactory
}

type ReporterParams struct {
	fx.In

	Logger        *zap.Logger
	Plan          *config.Plan
	TracerFactory *telemetry.TracerFactory
}

func NewReporter(p ReporterParams) *Reporter {
	return &Reporter{
		logger:        p.Logger.Named("render"),
		plan:          p.Plan,
		console:       os.Stdout,
		tracerFactory: p.TracerFactory,
	}
}

// SetConsole redirects the summary tables, os.Stdout by default.
func (r *Reporter) SetConsole(w io.Writer) { r.console = w }

func (r *Reporter) span(ctx context.Context, name string) telemetry.Tracer {
	tracer := r.tracerFactory.NewTracer(ctx, name)
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.Reporting))
	tracer.Start()
	return tracer
}

func writeFile(path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// coverageData loads the extracted corpus sizes and coverage and measures
// every campaign at its bounds.
func (r *Reporter) coverageData(inputDir string) ([]analysis.CampaignCoverage, []extract.CoverageRow, error) {
	records, err := extract.ReadCorpusSizes(filepath.Join(inputDir, extract.CorpusSizesFile))
	if err != nil {
		return nil, nil, err
	}
	rows, err := extract.ReadCoverage(filepath.Join(inputDir, extract.CoverageFile))
	if err != nil {
		return nil, nil, err
	}
	return analysis.Bounds(records, extract.ByCampaign(rows), r.plan), rows, nil
}

// CoverageTable writes the LaTeX coverage table for the extracted data in
// inputDir to output.
func (r *Reporter) CoverageTable(ctx context.Context, inputDir, output string) (*analysis.CoverageTable, error) {
	tracer := r.span(ctx, "coverage table")
	defer tracer.End()

	bounds, _, err := r.coverageData(inputDir)
	if err != nil {
		tracer.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	table := analysis.AggregateCoverage(bounds, r.plan)
	if err := writeFile(output, func(w io.Writer) error { return CoverageTable(w, table, r.plan) }); err != nil {
		tracer.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to write coverage table: %w", err)
	}
	PrintCoverage(r.console, table)
	r.logger.Info("wrote coverage table", zap.String("path", output), zap.Float64("sig_level", table.Level))
	return table, nil
}

// SlowdownTable computes the slowdowns from the trial details in inputDir,
// writes slowdown.csv next to output and the LaTeX table to output.
func (r *Reporter) SlowdownTable(ctx context.Context, inputDir, output string) ([]analysis.SlowdownResult, error) {
	tracer := r.span(ctx, "slowdown table")
	defer tracer.End()

	details, err := extract.ReadTrialDetails(filepath.Join(inputDir, extract.TrialDetailsFile))
	if err != nil {
		tracer.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	results := analysis.Slowdown(details, r.plan.Slowdowns)
	csvPath := filepath.Join(filepath.Dir(output), analysis.SlowdownFile)
	if err := analysis.WriteSlowdown(csvPath, results); err != nil {
		tracer.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := writeFile(output, func(w io.Writer) error { return SlowdownTable(w, results, r.plan) }); err != nil {
		tracer.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to write slowdown table: %w", err)
	}
	PrintSlowdown(r.console, results)
	r.logger.Info("wrote slowdown table", zap.String("path", output), zap.Int("rows", len(results)))
	return results, nil
}

// Mutations reads the mutation logs of the campaigns in inputDir, writes
// mutation_distances.csv and the mutation charts to outputDir.
func (r *Reporter) Mutations(ctx context.Context, inputDir, outputDir string) ([]analysis.MutationRecord, error) {
	tracer := r.span(ctx, "mutations")
	defer tracer.End()

	records, err := analysis.MutationDistances(inputDir, r.plan, r.logger)
	if err != nil {
		tracer.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(records) == 0 {
		err := fmt.Errorf("no mutation logs found in %s", inputDir)
		tracer.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	path := filepath.Join(outputDir, analysis.MutationDistancesFile)
	if err := analysis.WriteMutationDistances(path, records); err != nil {
		tracer.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	r.logger.Info("wrote mutation distances", zap.String("path", path), zap.Int("rows", len(records)))

	r.mutationFigures(records, outputDir)
	return records, nil
}

type figure struct {
	Title string
	Path  string // relative to the report
}

// mutationFigures renders the scatter plots, heatmaps and rate charts and
// returns them in report order. Figures without data are skipped.
func (r *Reporter) mutationFigures(records []analysis.MutationRecord, outputDir string) []figure {
	var figures []figure
	draw := func(title, name string, render func(io.Writer) error) {
		rel := filepath.Join(mutationFigureDir, name)
		if err := writeFile(filepath.Join(outputDir, rel), render); err != nil {
			r.logger.Warn("skipped figure", zap.String("figure", name), zap.Error(err))
			return
		}
		figures = append(figures, figure{Title: title, Path: rel})
	}

	for _, bench := range r.plan.Benchmarks {
		draw("Mutation distance: "+Title(bench), Title(bench)+".png", func(w io.Writer) error {
			return MutationScatter(w, bench, records, r.plan)
		})
	}

	matrices := []struct {
		title, name, unit string
		m                 *analysis.MutationMatrix
		heatmap, logScale bool
	}{
		{"Mean distance difference", "heatmap.png", "", analysis.DistanceHeatmap(records, r.plan, false), true, false},
		{"Mean distance difference (havoc only)", "heatmap_havoc.png", "", analysis.DistanceHeatmap(records, r.plan, true), true, false},
		{"Zero mutation rate", "zero_mutation.png", "% of mutations", analysis.ZeroMutationRates(records, r.plan), false, false},
		{"Validity preserving rate", "success.png", "% of mutations", analysis.SuccessRates(records, r.plan, false), false, false},
		{"Validity preserving rate (non-zero)", "success_nonzero.png", "% of mutations", analysis.SuccessRates(records, r.plan, true), false, false},
		{"Saved/all median distance", "saved_all.png", "ratio", analysis.SavedAllRatios(records, r.plan), false, true},
	}
	for _, mt := range matrices {
		fmt.Fprintln(r.console, mt.title)
		PrintMatrix(r.console, mt.m)
		render := func(w io.Writer) error { return RateBars(w, mt.title, mt.unit, mt.m, r.plan, mt.logScale) }
		if mt.heatmap {
			render = func(w io.Writer) error { return Heatmap(w, mt.title, mt.m) }
		}
		draw(mt.title, mt.name, render)
	}
	return figures
}

type pairwiseTable struct {
	Subject string
	Fuzzers []string
	Rows    [][]string
}

type reportPage struct {
	Title          string
	Baseline       string
	CoverageHeader []string
	CoverageRows   [][]string
	Figures        []figure
	Pairwise       []pairwiseTable
	Detections     []analysis.DefectRate
	Slowdown       []analysis.SlowdownResult
	Mutations      []figure
	Artifacts      []string
}

// Report renders every table and chart for the extracted data in inputDir
// into outputDir and indexes them in an HTML page. Detections, slowdown and
// mutation sections appear only when their inputs exist.
func (r *Reporter) Report(ctx context.Context, inputDir, outputDir string) error {
	tracer := r.span(ctx, "report")
	defer tracer.End()
	fail := func(err error) error {
		tracer.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fail(fmt.Errorf("failed to create output dir: %w", err))
	}
	page := reportPage{Title: "Fuzzing Report", Baseline: r.plan.Baseline}

	bounds, rows, err := r.coverageData(inputDir)
	if err != nil {
		return fail(fmt.Errorf("coverage data not found: %w", err))
	}
	table := analysis.AggregateCoverage(bounds, r.plan)
	page.CoverageHeader, page.CoverageRows = coverageGrid(table)
	if err := writeFile(filepath.Join(outputDir, CoverageTableFile), func(w io.Writer) error {
		return CoverageTable(w, table, r.plan)
	}); err != nil {
		return fail(err)
	}
	page.Artifacts = append(page.Artifacts, CoverageTableFile)

	bands := analysis.CoverageBands(rows, r.plan)
	for _, subject := range table.Subjects {
		rel := filepath.Join(coverageFigureDir, Title(subject)+".png")
		if err := writeFile(filepath.Join(outputDir, rel), func(w io.Writer) error {
			return CoverageChart(w, subject, bands[subject], r.plan)
		}); err != nil {
			r.logger.Warn("skipped coverage chart", zap.String("subject", subject), zap.Error(err))
			continue
		}
		page.Figures = append(page.Figures, figure{Title: Title(subject), Path: rel})
	}
	page.Pairwise = pairwiseTables(analysis.Pairwise(bounds, table, analysis.TimeBound), table)

	detections, err := extract.ReadDetections(filepath.Join(inputDir, extract.DetectionsFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.logger.Info("detection data not found")
	case err != nil:
		return fail(err)
	default:
		page.Detections = analysis.DefectRates(detections, r.plan)
		if err := writeFile(filepath.Join(outputDir, DetectionTableFile), func(w io.Writer) error {
			return DetectionTable(w, page.Detections, r.plan)
		}); err != nil {
			return fail(err)
		}
		page.Artifacts = append(page.Artifacts, DetectionTableFile)
	}

	details, err := extract.ReadTrialDetails(filepath.Join(inputDir, extract.TrialDetailsFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.logger.Info("trial details not found")
	case err != nil:
		return fail(err)
	default:
		page.Slowdown = analysis.Slowdown(details, r.plan.Slowdowns)
		if err := analysis.WriteSlowdown(filepath.Join(outputDir, analysis.SlowdownFile), page.Slowdown); err != nil {
			return fail(err)
		}
		if err := writeFile(filepath.Join(outputDir, SlowdownTableFile), func(w io.Writer) error {
			return SlowdownTable(w, page.Slowdown, r.plan)
		}); err != nil {
			return fail(err)
		}
		page.Artifacts = append(page.Artifacts, analysis.SlowdownFile, SlowdownTableFile)
	}

	mutations, err := analysis.ReadMutationDistances(filepath.Join(inputDir, analysis.MutationDistancesFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.logger.Info("mutation data not found")
	case err != nil:
		return fail(err)
	default:
		page.Mutations = r.mutationFigures(mutations, outputDir)
	}

	PrintCoverage(r.console, table)
	path := filepath.Join(outputDir, ReportFile)
	if err := writeFile(path, func(w io.Writer) error { return reportTemplate.Execute(w, page) }); err != nil {
		return fail(fmt.Errorf("failed to write report: %w", err))
	}
	r.logger.Info("wrote report", zap.String("path", path), zap.Int("figures", len(page.Figures)+len(page.Mutations)))
	return nil
}

// pairwiseTables lays the comparisons of each subject out as a fuzzer by
// fuzzer grid, p-values above the diagonal and A12 below.
func pairwiseTables(comparisons []analysis.Comparison, table *analysis.CoverageTable) []pairwiseTable {
	index := make(map[string]int, len(table.Fuzzers))
	for i, f := range table.Fuzzers {
		index[f] = i
	}
	grids := make(map[string][][]string)
	for _, c := range comparisons {
		grid, ok := grids[c.Subject]
		if !ok {
			grid = make([][]string, len(table.Fuzzers))
			for i := range grid {
				grid[i] = make([]string, len(table.Fuzzers))
				grid[i][i] = "-"
			}
			grids[c.Subject] = grid
		}
		i, j := index[c.A], index[c.B]
		grid[i][j] = strconv.FormatFloat(c.PValue, 'g', 3, 64)
		grid[j][i] = strconv.FormatFloat(c.A12, 'f', 2, 64)
	}

	var out []pairwiseTable
	for _, subject := range table.Subjects {
		grid, ok := grids[subject]
		if !ok {
			continue
		}
		rows := make([][]string, len(grid))
		for i, cells := range grid {
			rows[i] = append([]string{table.Fuzzers[i]}, cells...)
		}
		out = append(out, pairwiseTable{Subject: Title(subject), Fuzzers: table.Fuzzers, Rows: rows})
	}
	return out
}

// coverageGrid flattens the coverage table into one row per fuzzer and one
// column per subject and metric.
func coverageGrid(table *analysis.CoverageTable) ([]string, [][]string) {
	header := []string{"Fuzzer"}
	for _, subject := range table.Subjects {
		for _, m := range analysis.Metrics {
			header = append(header, Title(subject)+" "+m.String())
		}
	}
	rows := make([][]string, 0, len(table.Fuzzers))
	for _, fuzzer := range table.Fuzzers {
		row := []string{fuzzer}
		for _, subject := range table.Subjects {
			a, ok := table.Get(fuzzer, subject)
			for _, m := range analysis.Metrics {
				if !ok {
					row = append(row, "N/A")
					continue
				}
				row = append(row, mark(number(a.Cells[m].Median), a.Cells[m].Significant))
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}
