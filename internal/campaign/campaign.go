package campaign

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	FailuresFileName   = "failures.json"
	SummaryFileName    = "summary.json"
	CoverageFileName   = "coverage.csv"
	PlotDataFile       = "campaign/plot_data"
	StatisticsFile     = "campaign/statistics.csv"
	MutationLogFile    = "campaign/mutation.log"
	CorpusDir          = "campaign/corpus"
	CorpusFullDir      = "campaign/corpus_full"
	ControlledDir      = "campaign/corpus_trial_controlled"
	CampaignFailureDir = "campaign/failures"
)

// Campaign is the output directory of one fuzzing run.
type Campaign struct {
	ID           string
	Dir          string
	CoverageFile string
	SummaryFile  string
	FailuresFile string
	ProgressFile string
	Valid        bool

	Summary  *Summary
	Subject  string
	Fuzzer   string
	Duration time.Duration

	// filled in by extraction
	Executions int64
	CorpusSize int
}

// New inspects dir. A campaign is valid when its progress log exists and
// coverage, summary and failures are regular files.
func New(dir string) (*Campaign, error) {
	c := &Campaign{
		ID:           filepath.Base(dir),
		Dir:          dir,
		CoverageFile: filepath.Join(dir, CoverageFileName),
		SummaryFile:  filepath.Join(dir, SummaryFileName),
		FailuresFile: filepath.Join(dir, FailuresFileName),
		ProgressFile: filepath.Join(dir, PlotDataFile),
	}
	if !exists(c.ProgressFile) {
		c.ProgressFile = filepath.Join(dir, StatisticsFile)
	}

	c.Valid = exists(c.ProgressFile) &&
		isFile(c.CoverageFile) && isFile(c.SummaryFile) && isFile(c.FailuresFile)
	if !c.Valid {
		return c, nil
	}

	summary, err := ReadSummary(c.SummaryFile)
	if err != nil {
		c.Valid = false
		return c, fmt.Errorf("campaign %s: %w", c.ID, err)
	}
	c.Summary = summary
	c.Subject = summary.Subject()
	c.Fuzzer = FuzzerName(summary)
	c.Duration = summary.Configuration.Duration.Duration
	return c, nil
}

// Path resolves a path relative to the campaign directory.
func (c *Campaign) Path(rel string) string {
	return filepath.Join(c.Dir, rel)
}

// Find returns one Campaign per subdirectory of inputDir, sorted by id.
func Find(inputDir string, logger *zap.Logger) ([]*Campaign, error) {
	logger.Info("searching for campaigns", zap.String("dir", inputDir))
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", inputDir, err)
	}
	var campaigns []*Campaign
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		c, err := New(filepath.Join(inputDir, e.Name()))
		if err != nil {
			logger.Warn("failed to read campaign summary", zap.String("campaign_id", e.Name()), zap.Error(err))
		}
		campaigns = append(campaigns, c)
	}
	sort.Slice(campaigns, func(i, j int) bool { return campaigns[i].ID < campaigns[j].ID })
	logger.Info("found campaigns", zap.Int("count", len(campaigns)))
	return campaigns, nil
}

// Check drops invalid campaigns.
func Check(campaigns []*Campaign, logger *zap.Logger) []*Campaign {
	var result []*Campaign
	for _, c := range campaigns {
		if !c.Valid {
			logger.Warn("missing required files", zap.String("campaign_id", c.ID))
			continue
		}
		result = append(result, c)
	}
	logger.Info("checked campaigns", zap.Int("valid", len(result)))
	return result
}

// Read is Find followed by Check.
func Read(inputDir string, logger *zap.Logger) ([]*Campaign, error) {
	campaigns, err := Find(inputDir, logger)
	if err != nil {
		return nil, err
	}
	return Check(campaigns, logger), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
