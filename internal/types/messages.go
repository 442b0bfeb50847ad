package types

import "time"

type Mode string

const (
	ModeFuzz         Mode = "fuzz"          // meringue:fuzz followed by meringue:analyze
	ModeAnalyze      Mode = "analyze"       // meringue:analyze only
	ModeAnalyzeTrial Mode = "analyze-trial" // analyze the trial-controlled corpus
)

// TrialMessage is published to the trial queue for remote workers.
type TrialMessage struct {
	Trial        Trial         `json:"trial"`
	Mode         Mode          `json:"mode"`
	OutputDir    string        `json:"output_dir"`
	Duration     time.Duration `json:"duration"`
	LogMutation  bool          `json:"log_mutation"`
	TraceContext string        `json:"trace_context,omitempty"`
}

// FailureMessage reports a failure-inducing input written during a campaign.
type FailureMessage struct {
	File  string // path on the local filesystem
	Trial Trial
}
