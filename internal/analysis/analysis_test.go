package analysis

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/campaign"
	"github.com/aoli-al/havoc-mutation-eval/internal/extract"
)

func uniform(v float64) [3]float64 { return [3]float64{v, v, v} }

func coverageFixture() []CampaignCoverage {
	var out []CampaignCoverage
	for i := 1; i <= 5; i++ {
		out = append(out,
			CampaignCoverage{Subject: "rhino", Fuzzer: "Zest", Values: uniform(float64(i))},
			CampaignCoverage{Subject: "rhino", Fuzzer: "Zeugma", Values: uniform(float64(i + 5))},
		)
	}
	return out
}

func TestFuzzerLabel(t *testing.T) {
	plan := config.DefaultPlan()
	assert.Equal(t, "Zeugma", FuzzerLabel(plan, "rhino-zeugma-linked-results-3", "ignored"))
	assert.Equal(t, "EI", FuzzerLabel(plan, "gson-ei-results-0", ""))
	assert.Equal(t, "BeDivFuzz", FuzzerLabel(plan, "custom-campaign", "BeDiv-Struct"))
	assert.Equal(t, "Zest", FuzzerLabel(plan, "custom-campaign", "Zest"))
}

func TestBounds(t *testing.T) {
	plan := config.DefaultPlan()
	samples := []campaign.CoverageSample{
		{Time: 0, CoveredBranches: 1},
		{Time: 10 * time.Second, CoveredBranches: 5},
		{Time: 20 * time.Second, CoveredBranches: 9},
		{Time: 30 * time.Second, CoveredBranches: 12},
	}
	records := []extract.CorpusRecord{
		{CampaignID: "rhino-zest-results-0", Subject: "rhino", TimeToExecutionLimit: 10 * time.Second, NormalizedExecutionTime: 25 * time.Second},
		{CampaignID: "rhino-zeugma-none-results-0", Subject: "rhino"},
		{CampaignID: "rhino-ei-results-0", Subject: "rhino"},
	}
	coverage := map[string][]campaign.CoverageSample{
		"rhino-zest-results-0":        samples,
		"rhino-zeugma-none-results-0": samples,
	}

	got := Bounds(records, coverage, plan)
	require.Len(t, got, 2, "excluded fuzzers are dropped")
	assert.Equal(t, "Zest", got[0].Fuzzer)
	assert.Equal(t, [3]float64{5, 12, 9}, got[0].Values)
	// no coverage samples at all
	assert.Equal(t, "EI", got[1].Fuzzer)
	assert.Equal(t, [3]float64{0, 0, 0}, got[1].Values)
}

func TestAggregateCoverage(t *testing.T) {
	plan := config.DefaultPlan()
	table := AggregateCoverage(coverageFixture(), plan)

	assert.Equal(t, []string{"Zest", "Zeugma"}, table.Fuzzers)
	assert.Equal(t, []string{"rhino"}, table.Subjects)
	assert.Equal(t, 0.05, table.Level)

	zeugma, ok := table.Get("Zeugma", "rhino")
	require.True(t, ok)
	assert.Equal(t, 5, zeugma.Campaigns)
	for _, m := range Metrics {
		assert.Equal(t, 8.0, zeugma.Cells[m].Median)
		assert.InDelta(t, 2.0/252, zeugma.Cells[m].PValue, 1e-12)
		assert.True(t, zeugma.Cells[m].Significant, m.String())
	}

	zest, ok := table.Get("Zest", "rhino")
	require.True(t, ok)
	assert.Equal(t, 3.0, zest.Cells[TrialBound].Median)
	assert.False(t, zest.Cells[TrialBound].Significant)

	assert.Equal(t, 8.0, table.Max("rhino", Normalized))
	_, ok = table.Get("EI", "rhino")
	assert.False(t, ok)
}

func TestAggregateCoverageWithoutBaseline(t *testing.T) {
	plan := config.DefaultPlan()
	var bounds []CampaignCoverage
	for _, b := range coverageFixture() {
		if b.Fuzzer != "Zest" {
			bounds = append(bounds, b)
		}
	}
	table := AggregateCoverage(bounds, plan)
	a, ok := table.Get("Zeugma", "rhino")
	require.True(t, ok)
	assert.Equal(t, 1.0, a.Cells[TimeBound].PValue)
	assert.False(t, a.Cells[TimeBound].Significant)
}

func TestCoverageBands(t *testing.T) {
	plan := config.DefaultPlan()
	rows := []extract.CoverageRow{
		{CampaignID: "rhino-zest-results-0", Subject: "rhino", Time: time.Second, CoveredBranches: 3},
		{CampaignID: "rhino-zest-results-0", Subject: "rhino", Time: 0, CoveredBranches: 1},
		{CampaignID: "rhino-zest-results-1", Subject: "rhino", Time: 0, CoveredBranches: 2},
		{CampaignID: "rhino-zest-results-1", Subject: "rhino", Time: time.Second, CoveredBranches: 7},
		{CampaignID: "rhino-zest-results-2", Subject: "rhino", Time: 0, CoveredBranches: 6},
		{CampaignID: "rhino-zest-results-2", Subject: "rhino", Time: time.Second, CoveredBranches: 8},
		{CampaignID: "rhino-random-results-0", Subject: "rhino", Time: 0, CoveredBranches: 1},
		{CampaignID: "rhino-zeugma-none-results-0", Subject: "rhino", Time: 0, CoveredBranches: 1},
	}

	bands := CoverageBands(rows, plan)
	require.Len(t, bands["rhino"], 2)
	assert.Equal(t, "Random", bands["rhino"][0].Fuzzer)

	zest := bands["rhino"][1]
	assert.Equal(t, "Zest", zest.Fuzzer)
	assert.Equal(t, []time.Duration{0, time.Second}, zest.Times)
	assert.Equal(t, []float64{1, 3}, zest.Min)
	assert.Equal(t, []float64{2, 7}, zest.Median)
	assert.Equal(t, []float64{6, 8}, zest.Max)
}

func TestDefectRates(t *testing.T) {
	plan := config.DefaultPlan()
	var detections []extract.Detection
	add := func(technique string, rep int, detected bool, at time.Duration) {
		detections = append(detections, extract.Detection{
			CampaignID: "rhino-" + technique + "-results-" + strconv.Itoa(rep),
			Subject:    "rhino",
			Defect:     "D1",
			Time:       at,
			Detected:   detected,
		})
	}
	for i := 0; i < 10; i++ {
		add("zeugma-linked", i, i < 8, time.Duration(i+1)*time.Minute)
	}
	for i := 0; i < 6; i++ {
		add("zest", i, i == 0, 3*time.Minute)
	}

	rates := DefectRates(detections, plan)
	require.Len(t, rates, 2)

	zest := rates[0]
	assert.Equal(t, "Zest", zest.Fuzzer)
	assert.Equal(t, 1, zest.Detected)
	assert.Equal(t, 6, zest.Campaigns)
	assert.Equal(t, 3*time.Minute, zest.MedianTime)
	assert.InDelta(t, 1.0, zest.PValue, 1e-9)
	assert.False(t, zest.Significant)

	zeugma := rates[1]
	assert.Equal(t, "Zeugma", zeugma.Fuzzer)
	assert.InDelta(t, 0.8, zeugma.Rate(), 1e-12)
	assert.Equal(t, 270*time.Second, zeugma.MedianTime)
	assert.InDelta(t, 0.03496503496503495, zeugma.PValue, 1e-12)
	assert.Equal(t, 20.0, zeugma.OddsRatio)
	assert.True(t, zeugma.Significant)
}

func TestDefectRatesUndetected(t *testing.T) {
	rates := DefectRates([]extract.Detection{
		{CampaignID: "x", Fuzzer: "EI", Subject: "gson", Defect: "D9"},
	}, config.DefaultPlan())
	require.Len(t, rates, 1)
	assert.Equal(t, time.Duration(-1), rates[0].MedianTime)
	assert.Equal(t, 0.0, rates[0].Rate())
	assert.True(t, math.IsNaN(rates[0].OddsRatio))
}

func TestSlowdown(t *testing.T) {
	details := []extract.TrialDetail{
		{CampaignID: "rhino-zest-results-0", Benchmark: "rhino", Technique: "zest", Executions: 100},
		{CampaignID: "rhino-zest-results-0", Benchmark: "rhino", Technique: "zest", Executions: 999},
		{CampaignID: "rhino-ei-results-0", Benchmark: "rhino", Technique: "ei", Executions: 50},
		{CampaignID: "rhino-zest-results-1", Benchmark: "rhino", Technique: "zest", Executions: 200},
		{CampaignID: "rhino-ei-results-1", Benchmark: "rhino", Technique: "ei", Executions: 400},
		{CampaignID: "ant-ei-results-0", Benchmark: "ant", Technique: "ei", Executions: 10},
	}

	got := Slowdown(details, config.DefaultPlan().Slowdowns)
	require.Len(t, got, 1)
	assert.Equal(t, "rhino", got[0].Benchmark)
	assert.Equal(t, "EI", got[0].Technique)
	assert.Equal(t, 2, got[0].Count)
	assert.InDelta(t, 1.0, got[0].GeoMean, 1e-12)
	assert.InDelta(t, math.Pow(2, math.Sqrt2), got[0].GeoStd, 1e-12)

	path := filepath.Join(t.TempDir(), SlowdownFile)
	require.NoError(t, WriteSlowdown(path, got))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "benchmark,technique,geo_mean,std_dev,count\nrhino,EI,"))
}

func TestPairwise(t *testing.T) {
	bounds := coverageFixture()
	table := AggregateCoverage(bounds, config.DefaultPlan())

	got := Pairwise(bounds, table, TimeBound)
	require.Len(t, got, 1)
	assert.Equal(t, Comparison{Subject: "rhino", A: "Zest", B: "Zeugma", PValue: got[0].PValue, A12: 0}, got[0])
	assert.InDelta(t, 2.0/252, got[0].PValue, 1e-12)
}
