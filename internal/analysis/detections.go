package analysis

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/extract"
	"github.com/aoli-al/havoc-mutation-eval/internal/stats"
)

// DefectRate is how often a fuzzer found a defect across its campaigns.
type DefectRate struct {
	Subject     string
	Defect      string
	Fuzzer      string
	Detected    int
	Campaigns   int
	MedianTime  time.Duration // over detecting campaigns, -1 when none
	PValue      float64       // Fisher exact against the baseline
	OddsRatio   float64
	Significant bool
}

func (d DefectRate) Rate() float64 {
	if d.Campaigns == 0 {
		return 0
	}
	return float64(d.Detected) / float64(d.Campaigns)
}

// DefectRates summarises detections per subject, defect and fuzzer, sorted
// by subject, defect and legend order.
func DefectRates(detections []extract.Detection, plan *config.Plan) []DefectRate {
	type key struct{ subject, defect, fuzzer string }
	times := make(map[key][]float64)
	counts := make(map[key][2]int) // detected, campaigns
	fuzzerSet := make(map[string]struct{})
	defects := make(map[[2]string]struct{})

	for _, d := range detections {
		fuzzer := FuzzerLabel(plan, d.CampaignID, d.Fuzzer)
		if plan.IsExcluded(fuzzer) {
			continue
		}
		k := key{d.Subject, d.Defect, fuzzer}
		c := counts[k]
		c[1]++
		if d.Detected {
			c[0]++
			times[k] = append(times[k], float64(d.Time))
		}
		counts[k] = c
		fuzzerSet[fuzzer] = struct{}{}
		defects[[2]string{d.Subject, d.Defect}] = struct{}{}
	}

	level := stats.BonferroniLevel(len(fuzzerSet), plan.Alpha)
	fuzzers := plan.Ordered(sortedKeys(fuzzerSet))
	pairs := make([][2]string, 0, len(defects))
	for p := range defects {
		pairs = append(pairs, p)
	}
	slices.SortFunc(pairs, func(a, b [2]string) int {
		return cmp.Or(cmp.Compare(a[0], b[0]), cmp.Compare(a[1], b[1]))
	})

	var out []DefectRate
	for _, p := range pairs {
		base, hasBase := counts[key{p[0], p[1], plan.Baseline}]
		for _, fuzzer := range fuzzers {
			k := key{p[0], p[1], fuzzer}
			c, ok := counts[k]
			if !ok {
				continue
			}
			r := DefectRate{
				Subject: p[0], Defect: p[1], Fuzzer: fuzzer,
				Detected: c[0], Campaigns: c[1],
				MedianTime: -1, PValue: 1, OddsRatio: math.NaN(),
			}
			if len(times[k]) > 0 {
				r.MedianTime = time.Duration(stats.Median(times[k]))
			}
			if hasBase {
				res, err := stats.FisherExact([2][2]int{
					{c[0], c[1] - c[0]},
					{base[0], base[1] - base[0]},
				})
				if err == nil {
					r.PValue, r.OddsRatio = res.PValue, res.OddsRatio
					r.Significant = res.PValue < level
				}
			}
			out = append(out, r)
		}
	}
	return out
}
