package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/campaign"
	"github.com/aoli-al/havoc-mutation-eval/internal/types"
	"github.com/aoli-al/havoc-mutation-eval/internal/utils"
)

const (
	MutationDistancesFile = "mutation_distances.csv"
	ResultSuccess         = "SUCCESS"
)

// mutationColumns is the layout of campaign/mutation.log.
var mutationColumns = []string{
	"current_len", "parent_len", "byte_current_len", "byte_parent_len",
	"byte_distance", "distance", "saved", "result", "parent", "id", "file",
}

// MutationEntry is one line of a mutation log. Missing numbers are NaN and
// missing strings are empty.
type MutationEntry struct {
	CurrentLen     float64
	ParentLen      float64
	ByteCurrentLen float64
	ByteParentLen  float64
	ByteDistance   float64
	Distance       float64
	Saved          bool
	Result         string
	Parent         string
	ID             string
	File           string
}

// ParseMutationLog reads a mutation log. A first line whose leading field
// is not a number is a header. -1 marks a missing value.
func ParseMutationLog(r io.Reader) ([]MutationEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	var entries []MutationEntry
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read mutation log: %w", err)
		}
		line++
		if len(record) < len(mutationColumns)-1 {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(mutationColumns), len(record))
		}
		if line == 1 {
			if _, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64); err != nil {
				continue
			}
		}
		e := MutationEntry{
			CurrentLen:     number(record[0]),
			ParentLen:      number(record[1]),
			ByteCurrentLen: number(record[2]),
			ByteParentLen:  number(record[3]),
			ByteDistance:   number(record[4]),
			Distance:       number(record[5]),
			Saved:          strings.EqualFold(strings.TrimSpace(record[6]), "true"),
			Result:         text(record[7]),
			Parent:         text(record[8]),
			ID:             text(record[9]),
		}
		if len(record) > 10 {
			e.File = text(record[10])
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func number(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v == -1 {
		return math.NaN()
	}
	return v
}

func text(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "-1" {
		return ""
	}
	return raw
}

// MutationRecord is a mutation with its normalized distances.
type MutationRecord struct {
	Benchmark      string
	Algorithm      string // technique label, "-saved" for the saved-only variant
	CurrentLen     float64
	ParentLen      float64
	Saved          bool
	Parent         string
	Result         string
	ParentResult   string
	MutationBytes  float64
	MutationString float64
}

// Diff is how much further the mutation moved the input as a string than as
// bytes.
func (r MutationRecord) Diff() float64 {
	return r.MutationString - r.MutationBytes
}

// SavedOnly reports whether the record belongs to a saved-only variant.
func (r MutationRecord) SavedOnly() bool {
	return strings.HasSuffix(r.Algorithm, "-saved")
}

// ratio is distance over the larger of the two lengths; ok is false when
// it is undefined. A positive distance between empty inputs is +Inf.
func ratio(distance, a, b float64) (float64, bool) {
	v := distance / math.Max(a, b)
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Distances turns the entries of one log into records. With savedOnly only
// saved entries are kept. Otherwise at most limit entries are sampled with
// the given seed.
func Distances(entries []MutationEntry, benchmark, algorithm string, savedOnly bool, limit int, seed int64) []MutationRecord {
	results := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.ID != "" {
			results[e.ID] = e.Result
		}
	}

	var out []MutationRecord
	for _, e := range entries {
		if savedOnly && !e.Saved {
			continue
		}
		bytes, ok := ratio(e.ByteDistance, e.ByteCurrentLen, e.ByteParentLen)
		if !ok {
			continue
		}
		str, ok := ratio(e.Distance, e.CurrentLen, e.ParentLen)
		if !ok {
			continue
		}
		out = append(out, MutationRecord{
			Benchmark:      benchmark,
			Algorithm:      algorithm,
			CurrentLen:     e.CurrentLen,
			ParentLen:      e.ParentLen,
			Saved:          e.Saved,
			Parent:         e.Parent,
			Result:         e.Result,
			ParentResult:   results[e.Parent],
			MutationBytes:  bytes,
			MutationString: str,
		})
	}
	if !savedOnly && limit > 0 && len(out) > limit {
		out = sample(out, limit, seed)
	}
	return out
}

// sample draws n records without replacement.
func sample(records []MutationRecord, n int, seed int64) []MutationRecord {
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(len(records))[:n]
	out := make([]MutationRecord, n)
	for i, j := range idx {
		out[i] = records[j]
	}
	return out
}

// MutationDistances reads the mutation logs of the plan's mutation
// techniques in inputDir, both unfiltered and saved-only. Missing logs are
// skipped.
func MutationDistances(inputDir string, plan *config.Plan, logger *zap.Logger) ([]MutationRecord, error) {
	var out []MutationRecord
	for _, benchmark := range plan.Benchmarks {
		for _, technique := range plan.MutationTechniques {
			for rep := 0; rep < max(1, plan.MutationRepetitions); rep++ {
				trial := types.Trial{Benchmark: benchmark, Technique: technique, Repetition: rep}
				path := filepath.Join(inputDir, trial.ID(), campaign.MutationLogFile)
				entries, err := readMutationLog(path)
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				if err != nil {
					logger.Warn("failed to parse mutation log", zap.String("path", path), zap.Error(err))
					continue
				}
				for _, savedOnly := range []bool{false, true} {
					name := technique
					if savedOnly {
						name += config.SavedOnlySuffix
					}
					records := Distances(entries, benchmark, plan.TechniqueLabel(name), savedOnly,
						plan.MutationSampleLimit, plan.MutationSampleSeed)
					logger.Debug("parsed mutation log",
						zap.String("benchmark", benchmark),
						zap.String("technique", name),
						zap.Int("records", len(records)))
					out = append(out, records...)
				}
			}
		}
	}
	return out, nil
}

func readMutationLog(path string) ([]MutationEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMutationLog(f)
}

var distanceHeader = []string{
	"mutation_bytes", "mutation_string", "algorithm", "current_len", "parent_len", "saved",
	"parent", "result", "parent_result", "benchmark_name", "mutation_distance_diff",
}

func WriteMutationDistances(path string, records []MutationRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			formatFloat(r.MutationBytes), formatFloat(r.MutationString), r.Algorithm,
			formatFloat(r.CurrentLen), formatFloat(r.ParentLen), strconv.FormatBool(r.Saved),
			r.Parent, r.Result, r.ParentResult, r.Benchmark, formatFloat(r.Diff()),
		})
	}
	return utils.WriteCSV(path, distanceHeader, rows)
}

func ReadMutationDistances(path string) ([]MutationRecord, error) {
	t, err := utils.ReadCSV(path, "mutation_bytes", "mutation_string", "algorithm", "benchmark_name")
	if err != nil {
		return nil, err
	}
	out := make([]MutationRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		r := MutationRecord{
			Benchmark:    t.Str(row, "benchmark_name"),
			Algorithm:    t.Str(row, "algorithm"),
			Saved:        strings.EqualFold(t.Str(row, "saved"), "true"),
			Parent:       t.Str(row, "parent"),
			Result:       t.Str(row, "result"),
			ParentResult: t.Str(row, "parent_result"),
		}
		for _, f := range []struct {
			column string
			dst    *float64
		}{
			{"mutation_bytes", &r.MutationBytes},
			{"mutation_string", &r.MutationString},
			{"current_len", &r.CurrentLen},
			{"parent_len", &r.ParentLen},
		} {
			if *f.dst, err = t.Float(row, f.column); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
