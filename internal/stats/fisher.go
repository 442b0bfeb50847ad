package stats

import "math"

// FisherResult is the outcome of Fisher's exact test on a 2x2 table.
type FisherResult struct {
	OddsRatio float64
	PValue    float64 // two-sided
}

// FisherExact tests the 2x2 contingency table [[a, b], [c, d]]. The
// two-sided p-value sums the probabilities of every table with the same
// margins that is at most as likely as the observed one.
func FisherExact(table [2][2]int) (FisherResult, error) {
	a, b := table[0][0], table[0][1]
	c, d := table[1][0], table[1][1]
	if a < 0 || b < 0 || c < 0 || d < 0 {
		return FisherResult{PValue: math.NaN()}, ErrSampleSizeMismatch
	}

	row1, col1, n := a+b, a+c, a+b+c+d
	if row1 == 0 || col1 == 0 || row1 == n || col1 == n {
		return FisherResult{OddsRatio: math.NaN(), PValue: 1}, nil
	}
	res := FisherResult{OddsRatio: math.Inf(1)}
	if b > 0 && c > 0 {
		res.OddsRatio = float64(a*d) / float64(b*c)
	}

	lo := max(0, row1+col1-n)
	hi := min(row1, col1)
	observed := hypergeomLogPMF(a, n, row1, col1)
	// relative tolerance for tables tied with the observed one
	limit := observed + math.Log1p(1e-7)
	var p float64
	for k := lo; k <= hi; k++ {
		lp := hypergeomLogPMF(k, n, row1, col1)
		if lp <= limit {
			p += math.Exp(lp)
		}
	}
	res.PValue = math.Min(1, p)
	return res, nil
}

// hypergeomLogPMF is log P(X = k) when drawing draws items from a
// population of n containing good successes.
func hypergeomLogPMF(k, n, good, draws int) float64 {
	return logChoose(good, k) + logChoose(n-good, draws-k) - logChoose(n, draws)
}

func logChoose(n, k int) float64 {
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))
	return a - b - c
}
