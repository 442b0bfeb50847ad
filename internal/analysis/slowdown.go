package analysis

import (
	"fmt"
	"sort"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/extract"
	"github.com/aoli-al/havoc-mutation-eval/internal/stats"
	"github.com/aoli-al/havoc-mutation-eval/internal/types"
	"github.com/aoli-al/havoc-mutation-eval/internal/utils"
)

const SlowdownFile = "slowdown.csv"

// SlowdownResult is the throughput of a technique relative to its baseline
// on one benchmark, over the repetitions where both ran.
type SlowdownResult struct {
	Benchmark string
	Technique string // label of the slowdown pair
	GeoMean   float64
	GeoStd    float64
	Count     int
}

// Slowdown pairs up trials by benchmark and repetition and computes the
// execution ratio of every configured pair. Results are ordered by
// benchmark, then by pair.
func Slowdown(details []extract.TrialDetail, pairs []config.SlowdownPair) []SlowdownResult {
	type cell struct {
		benchmark  string
		repetition int
	}
	pivot := make(map[cell]map[string]int64)
	for _, d := range details {
		rep := types.Repetition(d.CampaignID)
		if rep < 0 {
			rep = d.Repetition
		}
		c := cell{d.Benchmark, rep}
		if pivot[c] == nil {
			pivot[c] = make(map[string]int64)
		}
		// first trial wins
		if _, ok := pivot[c][d.Technique]; !ok {
			pivot[c][d.Technique] = d.Executions
		}
	}

	cells := make([]cell, 0, len(pivot))
	for c := range pivot {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].benchmark != cells[j].benchmark {
			return cells[i].benchmark < cells[j].benchmark
		}
		return cells[i].repetition < cells[j].repetition
	})

	var out []SlowdownResult
	for i := 0; i < len(cells); {
		j := i
		for j < len(cells) && cells[j].benchmark == cells[i].benchmark {
			j++
		}
		for _, pair := range pairs {
			var ratios []float64
			for _, c := range cells[i:j] {
				tech, ok1 := pivot[c][pair.Technique]
				base, ok2 := pivot[c][pair.Baseline]
				if ok1 && ok2 && base != 0 {
					ratios = append(ratios, float64(tech)/float64(base))
				}
			}
			if len(ratios) == 0 {
				continue
			}
			mean, _ := stats.GeometricMean(ratios)
			std, _ := stats.GeometricStdDev(ratios)
			out = append(out, SlowdownResult{
				Benchmark: cells[i].benchmark,
				Technique: pair.Label,
				GeoMean:   mean,
				GeoStd:    std,
				Count:     len(ratios),
			})
		}
		i = j
	}
	return out
}

func WriteSlowdown(path string, results []SlowdownResult) error {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.Benchmark, r.Technique,
			fmt.Sprint(r.GeoMean), fmt.Sprint(r.GeoStd), fmt.Sprint(r.Count),
		})
	}
	return utils.WriteCSV(path, []string{"benchmark", "technique", "geo_mean", "std_dev", "count"}, rows)
}
