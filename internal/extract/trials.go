package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/aoli-al/havoc-mutation-eval/internal/types"
	"github.com/aoli-al/havoc-mutation-eval/internal/utils"
)

const TrialDetailsFile = "campaign_trials_detail.csv"

// TrialDetail is the per-trial throughput used by the slowdown analysis.
type TrialDetail struct {
	CampaignID string
	Benchmark  string
	Technique  string
	Repetition int
	Executions int64
	CorpusSize int
	Duration   time.Duration
}

var trialHeader = []string{"campaign_id", "benchmark", "technique", "repetition", "executions", "corpus_size", "duration"}

// TrialDetails derives benchmark, technique and repetition from the campaign
// id when it follows the run naming scheme, and from the parsed metadata
// otherwise.
func TrialDetails(records []CorpusRecord) []TrialDetail {
	out := make([]TrialDetail, 0, len(records))
	for _, r := range records {
		d := TrialDetail{
			CampaignID: r.CampaignID,
			Executions: r.Executions,
			CorpusSize: r.CorpusSize,
			Duration:   r.Elapsed,
		}
		if trial, err := types.ParseTrialID(r.CampaignID); err == nil {
			d.Benchmark, d.Technique, d.Repetition = trial.Benchmark, trial.Technique, trial.Repetition
		} else {
			d.Benchmark = r.Subject
			d.Technique = strings.ToLower(r.Fuzzer)
			d.Repetition = types.Repetition(r.CampaignID)
		}
		out = append(out, d)
	}
	return out
}

func WriteTrialDetails(path string, details []TrialDetail) error {
	rows := make([][]string, 0, len(details))
	for _, d := range details {
		rows = append(rows, []string{
			d.CampaignID, d.Benchmark, d.Technique, fmt.Sprint(d.Repetition),
			fmt.Sprint(d.Executions), fmt.Sprint(d.CorpusSize), formatSeconds(d.Duration),
		})
	}
	return utils.WriteCSV(path, trialHeader, rows)
}

func ReadTrialDetails(path string) ([]TrialDetail, error) {
	t, err := utils.ReadCSV(path, "campaign_id", "benchmark", "technique", "executions")
	if err != nil {
		return nil, err
	}
	out := make([]TrialDetail, 0, len(t.Rows))
	for _, row := range t.Rows {
		d := TrialDetail{
			CampaignID: t.Str(row, "campaign_id"),
			Benchmark:  t.Str(row, "benchmark"),
			Technique:  t.Str(row, "technique"),
		}
		rep, err := t.Int(row, "repetition")
		if err != nil {
			return nil, err
		}
		d.Repetition = int(rep)
		if d.Executions, err = t.Int(row, "executions"); err != nil {
			return nil, err
		}
		size, err := t.Int(row, "corpus_size")
		if err != nil {
			return nil, err
		}
		d.CorpusSize = int(size)
		secs, err := t.Float(row, "duration")
		if err != nil {
			return nil, err
		}
		d.Duration = seconds(secs)
		out = append(out, d)
	}
	return out, nil
}
