package extract

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/campaign"
	"github.com/aoli-al/havoc-mutation-eval/internal/stats"
	"github.com/aoli-al/havoc-mutation-eval/internal/utils"
)

const CorpusSizesFile = "corpus_sizes.csv"

// CorpusRecord is one row of corpus_sizes.csv.
type CorpusRecord struct {
	CampaignID              string
	Fuzzer                  string
	Subject                 string
	Executions              int64
	CorpusSize              int
	TimeToExecutionLimit    time.Duration
	NormalizedExecutionTime time.Duration

	// not written; feeds the trial details
	Elapsed time.Duration
}

var corpusHeader = []string{
	"campaign_id", "fuzzer", "subject", "executions", "corpus_size",
	"time_to_execution_limit", "normalized_execution_time",
}

// MinExecutions is the smallest positive execution count per subject.
func MinExecutions(campaigns []*campaign.Campaign) map[string]int64 {
	limits := make(map[string]int64)
	for _, c := range campaigns {
		if c.Executions <= 0 {
			continue
		}
		if cur, ok := limits[c.Subject]; !ok || c.Executions < cur {
			limits[c.Subject] = c.Executions
		}
	}
	return limits
}

// CorpusSizes parses every progress log and measures each campaign at the
// execution limit of its subject. A campaign whose log cannot be parsed
// contributes zeros.
func CorpusSizes(campaigns []*campaign.Campaign, plan *config.Plan, logger *zap.Logger) []CorpusRecord {
	progress := make(map[string]*campaign.Progress, len(campaigns))
	for _, c := range campaigns {
		p, err := c.ReadProgress()
		if err != nil {
			logger.Warn("failed to parse progress log", zap.String("campaign_id", c.ID), zap.Error(err))
			c.Executions = 0
			continue
		}
		progress[c.ID] = p
		c.Executions = p.Executions()
	}

	limits := MinExecutions(campaigns)
	logger.Info("minimum executions per subject", zap.Any("limits", limits))
	targets := baselineExecutions(campaigns, plan)

	records := make([]CorpusRecord, 0, len(campaigns))
	for _, c := range campaigns {
		r := CorpusRecord{
			CampaignID: c.ID,
			Fuzzer:     c.Fuzzer,
			Subject:    c.Subject,
			Executions: c.Executions,
		}
		p, ok := progress[c.ID]
		if !ok {
			records = append(records, r)
			continue
		}
		r.Elapsed = p.Elapsed()

		if limit := limits[c.Subject]; limit > 0 {
			r.CorpusSize = p.CorpusSizeAt(limit)
			r.TimeToExecutionLimit = p.TimeAt(limit)
		} else {
			logger.Warn("zero execution limit, skipping corpus size", zap.String("campaign_id", c.ID))
		}
		c.CorpusSize = r.CorpusSize

		r.NormalizedExecutionTime = r.Elapsed
		if target, ok := targets[c.Subject]; ok {
			if at, reached := p.TimeToReach(target); reached {
				r.NormalizedExecutionTime = at
			} else if c.Duration > 0 {
				r.NormalizedExecutionTime = c.Duration
			}
		}
		records = append(records, r)
	}
	return records
}

// baselineExecutions is the median final execution count of the baseline
// fuzzer per subject.
func baselineExecutions(campaigns []*campaign.Campaign, plan *config.Plan) map[string]int64 {
	bySubject := make(map[string][]float64)
	for _, c := range campaigns {
		if c.Executions > 0 && plan.DisplayName(c.Fuzzer) == plan.Baseline {
			bySubject[c.Subject] = append(bySubject[c.Subject], float64(c.Executions))
		}
	}
	targets := make(map[string]int64, len(bySubject))
	for subject, execs := range bySubject {
		targets[subject] = int64(stats.Median(execs))
	}
	return targets
}

func WriteCorpusSizes(path string, records []CorpusRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.CampaignID, r.Fuzzer, r.Subject,
			fmt.Sprint(r.Executions), fmt.Sprint(r.CorpusSize),
			formatSeconds(r.TimeToExecutionLimit), formatSeconds(r.NormalizedExecutionTime),
		})
	}
	return utils.WriteCSV(path, corpusHeader, rows)
}

func ReadCorpusSizes(path string) ([]CorpusRecord, error) {
	t, err := utils.ReadCSV(path, "campaign_id", "subject", "corpus_size")
	if err != nil {
		return nil, err
	}
	records := make([]CorpusRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		r := CorpusRecord{
			CampaignID: t.Str(row, "campaign_id"),
			Fuzzer:     t.Str(row, "fuzzer"),
			Subject:    t.Str(row, "subject"),
		}
		if r.Executions, err = t.Int(row, "executions"); err != nil {
			return nil, err
		}
		size, err := t.Int(row, "corpus_size")
		if err != nil {
			return nil, err
		}
		r.CorpusSize = int(size)
		limit, err := t.Float(row, "time_to_execution_limit")
		if err != nil {
			return nil, err
		}
		normalized, err := t.Float(row, "normalized_execution_time")
		if err != nil {
			return nil, err
		}
		r.TimeToExecutionLimit, r.NormalizedExecutionTime = seconds(limit), seconds(normalized)
		records = append(records, r)
	}
	return records, nil
}

// CopyControlledCorpus copies, per campaign, the first corpus_size files of
// campaign/corpus into campaign/corpus_trial_controlled. Failures are logged
// and skipped.
func CopyControlledCorpus(inputDir string, records []CorpusRecord, logger *zap.Logger) int {
	copied := 0
	for _, r := range records {
		src := filepath.Join(inputDir, r.CampaignID, campaign.CorpusDir)
		dst := filepath.Join(inputDir, r.CampaignID, campaign.ControlledDir)
		n, err := utils.CopyFirstN(src, dst, r.CorpusSize)
		if err != nil {
			logger.Warn("failed to copy controlled corpus", zap.String("campaign_id", r.CampaignID), zap.Error(err))
			continue
		}
		logger.Debug("copied controlled corpus",
			zap.String("campaign_id", r.CampaignID),
			zap.Int("files", n),
			zap.Int("corpus_size", r.CorpusSize))
		copied++
	}
	return copied
}
