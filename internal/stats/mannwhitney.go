package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// exact p-values are computed when both samples are at most this large and
// have no ties
const exactLimit = 8

type MannWhitneyResult struct {
	U1     float64 // U statistic of the first sample
	PValue float64 // two-sided
	Exact  bool
}

// MannWhitneyU runs the two-sided Mann-Whitney U test. The normal
// approximation applies a tie correction and a continuity correction.
func MannWhitneyU(x, y []float64) (MannWhitneyResult, error) {
	n1, n2 := len(x), len(y)
	if n1 == 0 || n2 == 0 {
		return MannWhitneyResult{PValue: math.NaN()}, ErrEmptySample
	}
	all := make([]float64, 0, n1+n2)
	all = append(all, x...)
	all = append(all, y...)
	ranks, ties := Rank(all)

	var r1 float64
	for _, r := range ranks[:n1] {
		r1 += r
	}
	u1 := r1 - float64(n1*(n1+1))/2
	u2 := float64(n1*n2) - u1
	u := math.Max(u1, u2)

	res := MannWhitneyResult{U1: u1}
	if n1 <= exactLimit && n2 <= exactLimit && !ties {
		res.Exact = true
		res.PValue = math.Min(1, 2*exactSurvival(n1, n2, u))
		return res, nil
	}

	n := float64(n1 + n2)
	var tieTerm float64
	for _, t := range tieGroups(all) {
		tf := float64(t)
		tieTerm += tf*tf*tf - tf
	}
	mu := float64(n1*n2) / 2
	sigma := math.Sqrt(float64(n1*n2) / 12 * ((n + 1) - tieTerm/(n*(n-1))))
	if sigma == 0 {
		res.PValue = 1
		return res, nil
	}
	z := (u - mu - 0.5) / sigma
	res.PValue = math.Min(1, 2*distuv.UnitNormal.Survival(z))
	return res, nil
}

// exactSurvival is P(U >= u) under the null hypothesis, counting the
// arrangements of n1 and n2 ranks that yield each U.
func exactSurvival(n1, n2 int, u float64) float64 {
	// counts[i][j][k]: arrangements of i items of the first and j of the
	// second sample with statistic k
	maxU := n1 * n2
	prev := make([][]float64, n2+1)
	for j := range prev {
		prev[j] = make([]float64, maxU+1)
		prev[j][0] = 1
	}
	for i := 1; i <= n1; i++ {
		cur := make([][]float64, n2+1)
		cur[0] = make([]float64, maxU+1)
		cur[0][0] = 1
		for j := 1; j <= n2; j++ {
			cur[j] = make([]float64, maxU+1)
			for k := 0; k <= maxU; k++ {
				// the largest value belongs to the first sample and beats
				// all j values of the second, or to the second
				if k >= j {
					cur[j][k] += prev[j][k-j]
				}
				cur[j][k] += cur[j-1][k]
			}
		}
		prev = cur
	}
	counts := prev[n2]
	var total, tail float64
	threshold := int(math.Ceil(u - 1e-9))
	for k, c := range counts {
		total += c
		if k >= threshold {
			tail += c
		}
	}
	return tail / total
}

// A12 is the Vargha-Delaney effect size: the probability that a value drawn
// from x is larger than one drawn from y, ties counting half.
func A12(x, y []float64) (float64, error) {
	m, n := len(x), len(y)
	if m == 0 || n == 0 {
		return math.NaN(), ErrEmptySample
	}
	all := make([]float64, 0, m+n)
	all = append(all, x...)
	all = append(all, y...)
	ranks, _ := Rank(all)
	var r1 float64
	for _, r := range ranks[:m] {
		r1 += r
	}
	return (2*r1 - float64(m*(m+1))) / float64(2*n*m), nil
}
