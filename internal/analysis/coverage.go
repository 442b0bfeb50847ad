package analysis

import (
	"math"
	"time"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/campaign"
	"github.com/aoli-al/havoc-mutation-eval/internal/extract"
	"github.com/aoli-al/havoc-mutation-eval/internal/stats"
)

type Metric int

const (
	TrialBound Metric = iota // coverage once the subject's execution limit is reached
	TimeBound                // coverage at the time bound
	Normalized               // coverage once the baseline's median executions are reached
)

var Metrics = []Metric{TrialBound, TimeBound, Normalized}

func (m Metric) String() string {
	switch m {
	case TrialBound:
		return "trial_bound_coverage"
	case TimeBound:
		return "time_bound_coverage"
	case Normalized:
		return "normalized_coverage"
	default:
		return "unknown"
	}
}

// CampaignCoverage is the coverage of one campaign at each bound.
type CampaignCoverage struct {
	CampaignID string
	Subject    string
	Fuzzer     string
	Values     [3]float64 // indexed by Metric
}

// Bounds measures every corpus record at its three bounds. Excluded fuzzers
// are dropped.
func Bounds(records []extract.CorpusRecord, coverage map[string][]campaign.CoverageSample, plan *config.Plan) []CampaignCoverage {
	out := make([]CampaignCoverage, 0, len(records))
	for _, r := range records {
		fuzzer := FuzzerLabel(plan, r.CampaignID, r.Fuzzer)
		if plan.IsExcluded(fuzzer) {
			continue
		}
		samples := coverage[r.CampaignID]
		c := CampaignCoverage{CampaignID: r.CampaignID, Subject: r.Subject, Fuzzer: fuzzer}
		c.Values[TrialBound] = campaign.CoverageAt(samples, r.TimeToExecutionLimit)
		c.Values[TimeBound] = campaign.CoverageAt(samples, plan.TimeBound)
		c.Values[Normalized] = campaign.CoverageAt(samples, r.NormalizedExecutionTime)
		out = append(out, c)
	}
	return out
}

type Cell struct {
	Median      float64
	PValue      float64 // against the baseline
	Significant bool
}

// CoverageAggregate is the median coverage of a fuzzer on a subject.
type CoverageAggregate struct {
	Fuzzer    string
	Subject   string
	Campaigns int
	Cells     [3]Cell // indexed by Metric
}

// CoverageTable holds the aggregates keyed by fuzzer then subject.
type CoverageTable struct {
	Baseline   string
	Level      float64
	Fuzzers    []string // legend order
	Subjects   []string // sorted
	Aggregates map[string]map[string]*CoverageAggregate
}

func (t *CoverageTable) Get(fuzzer, subject string) (*CoverageAggregate, bool) {
	a, ok := t.Aggregates[fuzzer][subject]
	return a, ok
}

// Max is the largest median of a metric on a subject across fuzzers.
func (t *CoverageTable) Max(subject string, m Metric) float64 {
	best := math.Inf(-1)
	for _, bySubject := range t.Aggregates {
		if a, ok := bySubject[subject]; ok {
			best = math.Max(best, a.Cells[m].Median)
		}
	}
	return best
}

// AggregateCoverage computes per fuzzer and subject the median of every
// metric and whether it differs from the baseline fuzzer. The significance
// level is Bonferroni-corrected over the number of distinct fuzzers.
func AggregateCoverage(bounds []CampaignCoverage, plan *config.Plan) *CoverageTable {
	type group struct{ values [3][]float64 }
	groups := make(map[string]map[string]*group)
	subjects := make(map[string]struct{})
	for _, b := range bounds {
		if groups[b.Fuzzer] == nil {
			groups[b.Fuzzer] = make(map[string]*group)
		}
		g := groups[b.Fuzzer][b.Subject]
		if g == nil {
			g = &group{}
			groups[b.Fuzzer][b.Subject] = g
		}
		for _, m := range Metrics {
			g.values[m] = append(g.values[m], b.Values[m])
		}
		subjects[b.Subject] = struct{}{}
	}

	table := &CoverageTable{
		Baseline:   plan.Baseline,
		Level:      stats.BonferroniLevel(len(groups), plan.Alpha),
		Fuzzers:    plan.Ordered(sortedKeys(groups)),
		Subjects:   sortedKeys(subjects),
		Aggregates: make(map[string]map[string]*CoverageAggregate),
	}
	for fuzzer, bySubject := range groups {
		table.Aggregates[fuzzer] = make(map[string]*CoverageAggregate)
		for subject, g := range bySubject {
			a := &CoverageAggregate{Fuzzer: fuzzer, Subject: subject, Campaigns: len(g.values[TrialBound])}
			var baseline *group
			if b, ok := groups[plan.Baseline]; ok {
				baseline = b[subject]
			}
			for _, m := range Metrics {
				a.Cells[m].Median = stats.Median(g.values[m])
				a.Cells[m].PValue = 1
				if baseline != nil {
					a.Cells[m].PValue, a.Cells[m].Significant = significant(baseline.values[m], g.values[m], table.Level)
				}
			}
			table.Aggregates[fuzzer][subject] = a
		}
	}
	return table
}

// Band is the spread of coverage over time of one fuzzer on one subject.
type Band struct {
	Fuzzer string
	Times  []time.Duration
	Min    []float64
	Median []float64
	Max    []float64
}

// CoverageBands groups resampled coverage by subject, fuzzer and time.
// Excluded fuzzers are dropped.
func CoverageBands(rows []extract.CoverageRow, plan *config.Plan) map[string][]Band {
	type key struct{ subject, fuzzer string }
	series := make(map[key]map[time.Duration][]float64)
	for _, r := range rows {
		fuzzer := FuzzerLabel(plan, r.CampaignID, r.Fuzzer)
		if plan.IsExcluded(fuzzer) {
			continue
		}
		k := key{r.Subject, fuzzer}
		if series[k] == nil {
			series[k] = make(map[time.Duration][]float64)
		}
		series[k][r.Time] = append(series[k][r.Time], r.CoveredBranches)
	}

	fuzzersBySubject := make(map[string][]string)
	for k := range series {
		fuzzersBySubject[k.subject] = append(fuzzersBySubject[k.subject], k.fuzzer)
	}
	out := make(map[string][]Band, len(fuzzersBySubject))
	for subject, fuzzers := range fuzzersBySubject {
		for _, fuzzer := range plan.Ordered(fuzzers) {
			byTime := series[key{subject, fuzzer}]
			times := make([]time.Duration, 0, len(byTime))
			for t := range byTime {
				times = append(times, t)
			}
			sortDurations(times)
			b := Band{Fuzzer: fuzzer, Times: times}
			for _, t := range times {
				vs := byTime[t]
				b.Min = append(b.Min, stats.Min(vs))
				b.Median = append(b.Median, stats.Median(vs))
				b.Max = append(b.Max, stats.Max(vs))
			}
			out[subject] = append(out[subject], b)
		}
	}
	return out
}
