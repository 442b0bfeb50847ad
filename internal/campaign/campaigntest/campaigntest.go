// Package campaigntest writes synthetic campaign directories in the layout
// meringue produces.
package campaigntest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Row is one progress sample.
type Row struct {
	Elapsed    time.Duration
	Executions int64
	CorpusSize int
}

// Point is one coverage sample.
type Point struct {
	Time     time.Duration
	Branches int
}

type Failure struct {
	Type  string
	Trace []map[string]any
	First time.Duration
}

// Campaign describes the artifacts to write.
type Campaign struct {
	TestClass   string // e.g. edu.neu.ccs.prl.zeugma.eval.FuzzRhino
	Framework   string // e.g. edu.neu.ccs.prl.zeugma.ZestFramework
	JavaOptions []string
	Duration    time.Duration
	Start       time.Time // plot_data timestamps start here
	Rows        []Row
	Coverage    []Point
	Failures    []Failure
	Corpus      int // number of corpus files
	MutationLog string
}

func (c Campaign) zeugma() bool {
	return strings.Contains(c.Framework, "Zeugma")
}

func (c Campaign) bediv() bool {
	return strings.Contains(c.Framework, "BeDivFuzz")
}

// Write creates dir and the campaign's artifacts in it.
func Write(dir string, c Campaign) error {
	if err := os.MkdirAll(filepath.Join(dir, "campaign", "corpus"), 0755); err != nil {
		return err
	}
	summary := map[string]any{
		"configuration": map[string]any{
			"testClassName":  c.TestClass,
			"testMethodName": "testWithGenerator",
			"duration":       c.Duration.Milliseconds(),
			"javaOptions":    c.JavaOptions,
		},
		"frameworkClassName": c.Framework,
	}
	if err := writeJSON(filepath.Join(dir, "summary.json"), summary); err != nil {
		return err
	}

	failures := make([]map[string]any, 0, len(c.Failures))
	for _, f := range c.Failures {
		failures = append(failures, map[string]any{
			"failure":        map[string]any{"type": f.Type, "trace": f.Trace},
			"firstTime":      f.First.Milliseconds(),
			"inducingInputs": []string{"id_000000"},
		})
	}
	if err := writeJSON(filepath.Join(dir, "failures.json"), failures); err != nil {
		return err
	}

	var cov strings.Builder
	cov.WriteString("time, covered_branches, total_branches\n")
	for _, p := range c.Coverage {
		fmt.Fprintf(&cov, "%d, %d, %d\n", p.Time.Milliseconds(), p.Branches, 10000)
	}
	if err := os.WriteFile(filepath.Join(dir, "coverage.csv"), []byte(cov.String()), 0644); err != nil {
		return err
	}

	progressFile, progress := "plot_data", c.plotData()
	if c.zeugma() {
		progressFile, progress = "statistics.csv", c.statistics()
	}
	if err := os.WriteFile(filepath.Join(dir, "campaign", progressFile), []byte(progress), 0644); err != nil {
		return err
	}

	for i := 0; i < c.Corpus; i++ {
		name := filepath.Join(dir, "campaign", "corpus", fmt.Sprintf("id_%06d", i))
		if err := os.WriteFile(name, []byte{byte(i)}, 0644); err != nil {
			return err
		}
	}
	if c.MutationLog != "" {
		if err := os.WriteFile(filepath.Join(dir, "campaign", "mutation.log"), []byte(c.MutationLog), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (c Campaign) plotData() string {
	var b strings.Builder
	start := c.Start
	if start.IsZero() {
		start = time.Unix(1700000000, 0)
	}
	b.WriteString("# unix_time, cycles_done, cur_item, corpus_count, pending_total, pending_favs, map_size, unique_crashes, unique_hangs, max_depth, execs_per_sec, valid_inputs, invalid_inputs, valid_cov\n")
	for _, r := range c.Rows {
		ts := start.Add(r.Elapsed).Unix()
		if c.bediv() {
			fmt.Fprintf(&b, "%d, 0, 0, 0, %d, 0, %d, 0\n", ts, r.Executions, r.CorpusSize)
			continue
		}
		valid := r.Executions / 2
		fmt.Fprintf(&b, "%d, 0, 0, %d, 0, 0, 0.00%%, 0, 0, 0, 0.00, %d, %d, 0.00%%\n",
			ts, r.CorpusSize, valid, r.Executions-valid)
	}
	return b.String()
}

func (c Campaign) statistics() string {
	var b strings.Builder
	b.WriteString("time, coverage, valid, executions, corpus\n")
	for _, r := range c.Rows {
		fmt.Fprintf(&b, "%d, 0, 0, %d, %d\n", r.Elapsed.Milliseconds(), r.Executions, r.CorpusSize)
	}
	return b.String()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
