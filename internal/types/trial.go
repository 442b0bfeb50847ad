package types

import (
	"fmt"
	"strconv"
	"strings"
)

const trialSeparator = "-results-"

// Trial is one cell of the experiment grid: a benchmark fuzzed with one
// technique for one repetition.
type Trial struct {
	Benchmark  string `json:"benchmark"`
	Technique  string `json:"technique"`
	Repetition int    `json:"repetition"`
}

// ID is the campaign directory name, <benchmark>-<technique>-results-<rep>.
func (t Trial) ID() string {
	return fmt.Sprintf("%s-%s%s%d", t.Benchmark, t.Technique, trialSeparator, t.Repetition)
}

func (t Trial) String() string { return t.ID() }

// ParseTrialID is the inverse of Trial.ID.
func ParseTrialID(id string) (Trial, error) {
	i := strings.LastIndex(id, trialSeparator)
	if i < 0 {
		return Trial{}, fmt.Errorf("campaign id %q has no %q", id, trialSeparator)
	}
	rep, err := strconv.Atoi(id[i+len(trialSeparator):])
	if err != nil {
		return Trial{}, fmt.Errorf("campaign id %q has no repetition: %w", id, err)
	}
	benchmark, technique, ok := strings.Cut(id[:i], "-")
	if !ok || benchmark == "" || technique == "" {
		return Trial{}, fmt.Errorf("campaign id %q has no technique", id)
	}
	return Trial{Benchmark: benchmark, Technique: technique, Repetition: rep}, nil
}

// Repetition returns the trailing number of a campaign id, -1 if absent.
func Repetition(campaignID string) int {
	i := strings.LastIndex(campaignID, "-")
	if i < 0 {
		return -1
	}
	n, err := strconv.Atoi(campaignID[i+1:])
	if err != nil {
		return -1
	}
	return n
}
