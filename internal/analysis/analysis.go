// Package analysis aggregates the extracted campaign records into the
// statistics that end up in tables and charts.
package analysis

import (
	"sort"
	"time"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/campaign"
	"github.com/aoli-al/havoc-mutation-eval/internal/stats"
	"github.com/aoli-al/havoc-mutation-eval/internal/types"
)

// FuzzerLabel is the display name of a campaign's fuzzer. Campaigns named
// after the run grid are classified by their id, others by the fuzzer
// recorded in their metadata.
func FuzzerLabel(plan *config.Plan, campaignID, recorded string) string {
	if _, err := types.ParseTrialID(campaignID); err == nil {
		return plan.DisplayName(campaign.FuzzerFromID(campaignID))
	}
	return plan.DisplayName(recorded)
}

// significant compares values against baseline with the Mann-Whitney U
// test. Empty samples are never significant.
func significant(baseline, values []float64, level float64) (float64, bool) {
	res, err := stats.MannWhitneyU(baseline, values)
	if err != nil {
		return 1, false
	}
	return res.PValue, res.PValue < level
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortDurations(ds []time.Duration) {
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
}
