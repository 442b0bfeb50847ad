// Package stats holds the descriptive statistics and nonparametric tests
// used to compare fuzzing campaigns.
package stats

import (
	"errors"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptySample        = errors.New("empty sample")
	ErrSampleSizeMismatch = errors.New("samples differ in size")
)

// Median is the midpoint of the sorted sample, averaging the two middle
// values for even sizes. NaN for an empty sample.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := slices.Clone(xs)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

func Min(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return slices.Min(xs)
}

func Max(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return slices.Max(xs)
}

// GeometricMean of positive values.
func GeometricMean(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return math.NaN(), ErrEmptySample
	}
	return stat.GeometricMean(xs, nil), nil
}

// GeometricStdDev is exp of the sample standard deviation (ddof=1) of the
// logs. NaN for fewer than two values.
func GeometricStdDev(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return math.NaN(), ErrEmptySample
	}
	if len(xs) < 2 {
		return math.NaN(), nil
	}
	logs := make([]float64, len(xs))
	for i, x := range xs {
		logs[i] = math.Log(x)
	}
	return math.Exp(stat.StdDev(logs, nil)), nil
}

// Rank assigns 1-based ranks, ties receiving the average of the ranks they
// span. The second return reports whether any tie occurred.
func Rank(xs []float64) ([]float64, bool) {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	ranks := make([]float64, len(xs))
	ties := false
	for i := 0; i < len(idx); {
		j := i + 1
		for j < len(idx) && xs[idx[j]] == xs[idx[i]] {
			j++
		}
		if j-i > 1 {
			ties = true
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}
	return ranks, ties
}

// tieGroups returns the sizes of groups of equal values.
func tieGroups(xs []float64) []int {
	s := slices.Clone(xs)
	sort.Float64s(s)
	var groups []int
	for i := 0; i < len(s); {
		j := i + 1
		for j < len(s) && s[j] == s[i] {
			j++
		}
		groups = append(groups, j-i)
		i = j
	}
	return groups
}

// BonferroniLevel is the per-comparison significance level when every pair
// of n treatments is compared.
func BonferroniLevel(n int, alpha float64) float64 {
	comparisons := 1.0
	if n >= 2 {
		comparisons = float64(n*(n-1)) / 2
	}
	return alpha / comparisons
}
