package analysis

import (
	"github.com/aoli-al/havoc-mutation-eval/internal/stats"
)

// Comparison is a Mann-Whitney test between two fuzzers on one subject.
type Comparison struct {
	Subject string
	A, B    string
	PValue  float64
	A12     float64 // probability that A beats B
}

// Pairwise compares every pair of fuzzers on every subject using the given
// metric. Pairs follow the fuzzer order of the table.
func Pairwise(bounds []CampaignCoverage, table *CoverageTable, m Metric) []Comparison {
	values := make(map[string]map[string][]float64)
	for _, b := range bounds {
		if values[b.Subject] == nil {
			values[b.Subject] = make(map[string][]float64)
		}
		values[b.Subject][b.Fuzzer] = append(values[b.Subject][b.Fuzzer], b.Values[m])
	}

	var out []Comparison
	for _, subject := range table.Subjects {
		for i, a := range table.Fuzzers {
			for _, b := range table.Fuzzers[i+1:] {
				x, y := values[subject][a], values[subject][b]
				if len(x) == 0 || len(y) == 0 {
					continue
				}
				res, err := stats.MannWhitneyU(x, y)
				if err != nil {
					continue
				}
				a12, _ := stats.A12(x, y)
				out = append(out, Comparison{Subject: subject, A: a, B: b, PValue: res.PValue, A12: a12})
			}
		}
	}
	return out
}
