package analysis

import (
	"math"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/stats"
)

// MutationMatrix holds one value per (algorithm, benchmark). Missing cells
// are NaN.
type MutationMatrix struct {
	Algorithms []string
	Benchmarks []string
	Values     [][]float64
}

func (m *MutationMatrix) At(algorithm, benchmark string) float64 {
	for i, a := range m.Algorithms {
		if a != algorithm {
			continue
		}
		for j, b := range m.Benchmarks {
			if b == benchmark {
				return m.Values[i][j]
			}
		}
	}
	return math.NaN()
}

// groupMutations buckets the non saved-only records by algorithm and
// benchmark, in legend and plan order.
func groupMutations(records []MutationRecord, plan *config.Plan, keep func(MutationRecord) bool) (*MutationMatrix, map[[2]string][]MutationRecord) {
	groups := make(map[[2]string][]MutationRecord)
	algorithms := make(map[string]bool)
	for _, r := range records {
		if r.SavedOnly() {
			continue
		}
		algorithms[r.Algorithm] = true
		if keep != nil && !keep(r) {
			continue
		}
		key := [2]string{r.Algorithm, r.Benchmark}
		groups[key] = append(groups[key], r)
	}
	m := &MutationMatrix{
		Algorithms: plan.Ordered(sortedKeys(algorithms)),
		Benchmarks: plan.Benchmarks,
	}
	m.Values = make([][]float64, len(m.Algorithms))
	for i := range m.Values {
		m.Values[i] = make([]float64, len(m.Benchmarks))
	}
	return m, groups
}

func fill(m *MutationMatrix, groups map[[2]string][]MutationRecord, f func([]MutationRecord) float64) *MutationMatrix {
	for i, a := range m.Algorithms {
		for j, b := range m.Benchmarks {
			g := groups[[2]string{a, b}]
			if len(g) == 0 {
				m.Values[i][j] = math.NaN()
				continue
			}
			m.Values[i][j] = f(g)
		}
	}
	return m
}

// DistanceHeatmap is the mean string-minus-bytes distance per algorithm and
// benchmark. With havocOnly only mutations that moved further as a string
// than as bytes count.
func DistanceHeatmap(records []MutationRecord, plan *config.Plan, havocOnly bool) *MutationMatrix {
	var keep func(MutationRecord) bool
	if havocOnly {
		keep = func(r MutationRecord) bool { return r.MutationString > r.MutationBytes }
	}
	m, groups := groupMutations(records, plan, keep)
	return fill(m, groups, func(g []MutationRecord) float64 {
		diffs := make([]float64, 0, len(g))
		for _, r := range g {
			// inf - inf
			if d := r.Diff(); !math.IsNaN(d) {
				diffs = append(diffs, d)
			}
		}
		return stats.Mean(diffs)
	})
}

// ZeroMutationRates is the percentage of mutations of successful parents
// that left the input unchanged.
func ZeroMutationRates(records []MutationRecord, plan *config.Plan) *MutationMatrix {
	m, groups := groupMutations(records, plan, func(r MutationRecord) bool {
		return r.ParentResult == ResultSuccess
	})
	return fill(m, groups, func(g []MutationRecord) float64 {
		return percent(g, func(r MutationRecord) bool { return r.MutationString == 0 })
	})
}

// SuccessRates is the percentage of mutations of successful parents that
// were themselves successful. With excludeZero unchanged inputs are left out.
func SuccessRates(records []MutationRecord, plan *config.Plan, excludeZero bool) *MutationMatrix {
	m, groups := groupMutations(records, plan, func(r MutationRecord) bool {
		if excludeZero && r.MutationString == 0 {
			return false
		}
		return r.ParentResult == ResultSuccess
	})
	return fill(m, groups, func(g []MutationRecord) float64 {
		return percent(g, func(r MutationRecord) bool { return r.Result == ResultSuccess })
	})
}

// SavedAllRatios compares the median string distance of saved mutations
// with the median of all mutations.
func SavedAllRatios(records []MutationRecord, plan *config.Plan) *MutationMatrix {
	m, groups := groupMutations(records, plan, nil)
	return fill(m, groups, func(g []MutationRecord) float64 {
		var all, saved []float64
		for _, r := range g {
			v := r.MutationString * 100
			all = append(all, v)
			if r.Saved {
				saved = append(saved, v)
			}
		}
		medianAll := stats.Median(all)
		if len(saved) == 0 || medianAll <= 0 {
			return math.NaN()
		}
		return stats.Median(saved) / medianAll
	})
}

func percent(g []MutationRecord, pred func(MutationRecord) bool) float64 {
	n := 0
	for _, r := range g {
		if pred(r) {
			n++
		}
	}
	return 100 * float64(n) / float64(len(g))
}
