package campaign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/aoli-al/havoc-mutation-eval/internal/types"
)

// Summary mirrors the summary.json written by the analysis step.
type Summary struct {
	Configuration struct {
		TestClassName  string   `json:"testClassName"`
		TestMethodName string   `json:"testMethodName"`
		Duration       Duration `json:"duration"`
		JavaOptions    []string `json:"javaOptions"`
	} `json:"configuration"`
	FrameworkClassName string `json:"frameworkClassName"`
}

func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse summary %s: %w", path, err)
	}
	return &s, nil
}

// Subject is the simple test class name without "Fuzz", lower-cased.
func (s *Summary) Subject() string {
	name := s.Configuration.TestClassName
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(strings.ReplaceAll(name, "Fuzz", ""))
}

const (
	saveOnlyNewStructures = "-Djqf.div.SAVE_ONLY_NEW_STRUCTURES=true"
	zeugmaCrossoverOption = "-Dzeugma.crossover="
)

var crossoverNames = strings.NewReplacer(
	"Linked", "Link",
	"One_Point", "1PT",
	"Two_Point", "2PT",
	"None", "X",
)

// FuzzerName derives the fuzzer variant from the framework class and the
// JVM options of the campaign.
func FuzzerName(s *Summary) string {
	name := s.FrameworkClassName
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "Framework", "")

	switch name {
	case "BeDivFuzz":
		for _, opt := range s.Configuration.JavaOptions {
			if opt == saveOnlyNewStructures {
				return "BeDiv-Struct"
			}
		}
		return "BeDiv-Simple"
	case "Zeugma":
		crossover := "X"
		for _, opt := range s.Configuration.JavaOptions {
			if v, ok := strings.CutPrefix(opt, zeugmaCrossoverOption); ok {
				crossover = titleCase(v)
			}
		}
		return "Zeugma-" + crossoverNames.Replace(crossover)
	}
	return name
}

// FuzzerFromID classifies a campaign by its directory name alone.
func FuzzerFromID(campaignID string) string {
	id := strings.ToLower(campaignID)
	if trial, err := types.ParseTrialID(campaignID); err == nil {
		id = strings.ToLower(trial.Technique)
	}
	switch {
	case strings.Contains(id, "zeugma") && strings.Contains(id, "link"):
		return "Zeugma"
	case strings.Contains(id, "zeugma") && strings.Contains(id, "none"):
		return "Zeugma-None"
	case strings.Contains(id, "structure"):
		return "BeDivFuzz"
	case strings.Contains(id, "simple"):
		return "BeDivFuzz-Simple"
	case strings.Contains(id, "zest-mini"):
		return "Zest-Mini"
	case strings.Contains(id, "random"):
		return "Random"
	case strings.Contains(id, "ei"):
		return "EI"
	default:
		return "Zest"
	}
}

// titleCase upper-cases the first letter of every letter run.
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

// Duration accepts milliseconds, ISO-8601 durations such as P1DT0H0M, and
// Go duration strings.
type Duration struct {
	time.Duration
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

func (d *Duration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		ms, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("invalid duration %s: %w", data, err)
		}
		d.Duration = time.Duration(ms * float64(time.Millisecond))
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// ParseDuration parses the ISO-8601 subset used by meringue and falls back
// to time.ParseDuration.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	m := isoDuration.FindStringSubmatch(strings.ToUpper(raw))
	if m == nil || raw == "P" || raw == "PT" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return d, nil
	}
	var total time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		total += time.Duration(n) * unit
	}
	if m[4] != "" {
		s, _ := strconv.ParseFloat(m[4], 64)
		total += time.Duration(s * float64(time.Second))
	}
	return total, nil
}

// FormatISODuration renders d the way meringue expects it, P0DT0H<minutes>M.
func FormatISODuration(d time.Duration) string {
	return fmt.Sprintf("P0DT0H%dM", int64(d/time.Minute))
}
