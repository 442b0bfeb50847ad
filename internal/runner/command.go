package runner

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/aoli-al/havoc-mutation-eval/internal/types"
)

const (
	evaluationModule   = ":zeugma-evaluation-tools"
	logMutationProfile = "log-mutation"
)

// TrialDir is the campaign directory a trial writes to.
func TrialDir(msg types.TrialMessage) string {
	return filepath.Join(msg.OutputDir, msg.Trial.ID())
}

// meringueDuration formats d as the ISO-8601 period meringue expects,
// rounded up to whole minutes.
func meringueDuration(d time.Duration) string {
	minutes := int64((d + time.Minute - 1) / time.Minute)
	return fmt.Sprintf("P0DT0H%dM", max(1, minutes))
}

// Args builds the maven arguments for a trial. Fuzzing runs the campaign
// and then analyzes it; the analyze modes only replay the saved corpus.
func Args(msg types.TrialMessage) []string {
	profiles := msg.Trial.Benchmark + "," + msg.Trial.Technique
	if msg.LogMutation && msg.Mode == types.ModeFuzz {
		profiles += "," + logMutationProfile
	}

	args := []string{"-pl", evaluationModule}
	switch msg.Mode {
	case types.ModeFuzz:
		args = append(args, "meringue:fuzz", "meringue:analyze")
	default:
		args = append(args, "meringue:analyze")
	}
	args = append(args,
		"-P"+profiles,
		"-Dmeringue.outputDirectory="+TrialDir(msg),
	)
	if msg.Mode == types.ModeFuzz {
		args = append(args, "-Dmeringue.duration="+meringueDuration(msg.Duration))
	}
	return args
}

// Grid expands the plan into one message per benchmark, technique and
// repetition, in that order.
func Grid(benchmarks, techniques []string, repetitions int, base types.TrialMessage) []types.TrialMessage {
	var out []types.TrialMessage
	for _, b := range benchmarks {
		for _, t := range techniques {
			for i := 0; i < repetitions; i++ {
				msg := base
				msg.Trial = types.Trial{Benchmark: b, Technique: t, Repetition: i}
				out = append(out, msg)
			}
		}
	}
	return out
}
