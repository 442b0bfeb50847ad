package extract

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/internal/campaign"
	"github.com/aoli-al/havoc-mutation-eval/internal/utils"
)

const (
	CoverageFile = "coverage.csv"
	GridPoints   = 1000
)

// CoverageRow is one resampled coverage point of a campaign.
type CoverageRow struct {
	CampaignID      string
	Fuzzer          string
	Subject         string
	Time            time.Duration
	CoveredBranches float64
	Extra           map[string]float64 // other coverage.csv columns, nil when the campaign has none
}

var coverageHeader = []string{"campaign_id", "fuzzer", "subject", "time", "covered_branches"}

// Grid spreads points evenly over [0, max(sampleTimes)] and adds the sample
// times themselves. The result is sorted and free of duplicates.
func Grid(sampleTimes []time.Duration, points int) []time.Duration {
	if len(sampleTimes) == 0 {
		return nil
	}
	end := slices.Max(sampleTimes)
	grid := make([]time.Duration, 0, points+len(sampleTimes))
	for i := 0; i < points; i++ {
		if points == 1 {
			grid = append(grid, 0)
			break
		}
		grid = append(grid, time.Duration(float64(end)*float64(i)/float64(points-1)))
	}
	grid = append(grid, sampleTimes...)
	slices.Sort(grid)
	return slices.Compact(grid)
}

// Resample evaluates samples at every grid time, carrying the last value at
// or before it forward and using 0 before the first sample.
func Resample(samples []campaign.CoverageSample, grid []time.Duration) []float64 {
	out := make([]float64, len(grid))
	for i, t := range grid {
		out[i] = campaign.CoverageAt(samples, t)
	}
	return out
}

// ResampleExtra resamples every column besides covered branches the same
// way, each carried forward on its own. It returns nil when samples carry no
// extra columns.
func ResampleExtra(samples []campaign.CoverageSample, grid []time.Duration) []map[string]float64 {
	last := make(map[string]float64)
	for _, s := range samples {
		for name := range s.Extra {
			last[name] = 0
		}
	}
	if len(last) == 0 {
		return nil
	}
	out := make([]map[string]float64, len(grid))
	j := 0
	for i, t := range grid {
		for ; j < len(samples) && samples[j].Time <= t; j++ {
			maps.Copy(last, samples[j].Extra)
		}
		out[i] = maps.Clone(last)
	}
	return out
}

// Coverage resamples the coverage of every campaign onto grid. Campaigns
// whose coverage cannot be read are logged and skipped.
func Coverage(campaigns []*campaign.Campaign, grid []time.Duration, logger *zap.Logger) []CoverageRow {
	var rows []CoverageRow
	for _, c := range campaigns {
		samples, err := c.Coverage()
		if err != nil {
			logger.Warn("failed to read coverage", zap.String("campaign_id", c.ID), zap.Error(err))
			continue
		}
		extra := ResampleExtra(samples, grid)
		for i, v := range Resample(samples, grid) {
			row := CoverageRow{
				CampaignID:      c.ID,
				Fuzzer:          c.Fuzzer,
				Subject:         c.Subject,
				Time:            grid[i],
				CoveredBranches: v,
			}
			if extra != nil {
				row.Extra = extra[i]
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// WriteCoverage writes rows with the time in milliseconds. Extra columns
// follow the fixed ones sorted by name, empty where a row lacks them.
func WriteCoverage(path string, rows []CoverageRow) error {
	names := make(map[string]bool)
	for _, r := range rows {
		for name := range r.Extra {
			names[name] = true
		}
	}
	extra := slices.Sorted(maps.Keys(names))

	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		record := []string{r.CampaignID, r.Fuzzer, r.Subject, formatMillis(r.Time), formatFloat(r.CoveredBranches)}
		for _, name := range extra {
			v, ok := r.Extra[name]
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, formatFloat(v))
		}
		out = append(out, record)
	}
	return utils.WriteCSV(path, append(slices.Clone(coverageHeader), extra...), out)
}

func ReadCoverage(path string) ([]CoverageRow, error) {
	t, err := utils.ReadCSV(path, coverageHeader...)
	if err != nil {
		return nil, err
	}
	var extra []string
	for _, name := range t.Header {
		if !slices.Contains(coverageHeader, name) {
			extra = append(extra, name)
		}
	}

	rows := make([]CoverageRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		ms, err := t.Float(row, "time")
		if err != nil {
			return nil, err
		}
		branches, err := t.Float(row, "covered_branches")
		if err != nil {
			return nil, err
		}
		r := CoverageRow{
			CampaignID:      t.Str(row, "campaign_id"),
			Fuzzer:          t.Str(row, "fuzzer"),
			Subject:         t.Str(row, "subject"),
			Time:            millis(ms),
			CoveredBranches: branches,
		}
		for _, name := range extra {
			if t.Str(row, name) == "" {
				continue
			}
			v, err := t.Float(row, name)
			if err != nil {
				return nil, err
			}
			if r.Extra == nil {
				r.Extra = make(map[string]float64, len(extra))
			}
			r.Extra[name] = v
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// ByCampaign groups rows by campaign id as time-ordered coverage samples.
func ByCampaign(rows []CoverageRow) map[string][]campaign.CoverageSample {
	out := make(map[string][]campaign.CoverageSample)
	for _, r := range rows {
		out[r.CampaignID] = append(out[r.CampaignID], campaign.CoverageSample{Time: r.Time, CoveredBranches: r.CoveredBranches, Extra: r.Extra})
	}
	for id := range out {
		slices.SortStableFunc(out[id], func(a, b campaign.CoverageSample) int {
			return cmp.Compare(a.Time, b.Time)
		})
	}
	return out
}
