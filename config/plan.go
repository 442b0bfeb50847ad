package config

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const SavedOnlySuffix = "-saved_only"

// SlowdownPair compares the throughput of a technique against the
// technique it was built on top of.
type SlowdownPair struct {
	Label     string `yaml:"label"`
	Technique string `yaml:"technique"`
	Baseline  string `yaml:"baseline"`
}

// Plan describes an experiment: what gets run and how results are named,
// ordered and compared when they are reported.
type Plan struct {
	Benchmarks  []string      `yaml:"benchmarks"`
	Techniques  []string      `yaml:"techniques"`
	Repetitions int           `yaml:"repetitions"`
	Duration    time.Duration `yaml:"duration"`
	OutputDir   string        `yaml:"output_dir"`

	Baseline         string            `yaml:"baseline"`
	Alpha            float64           `yaml:"alpha"`
	SampleTimes      []time.Duration   `yaml:"sample_times"`
	TimeBound        time.Duration     `yaml:"time_bound"`
	FuzzerNames      map[string]string `yaml:"fuzzer_names"`
	TechniqueLabels  map[string]string `yaml:"technique_labels"`
	Excluded         []string          `yaml:"excluded"`
	LegendOrder      []string          `yaml:"legend_order"`
	Palette          map[string]string `yaml:"palette"`
	NormalizedFuzzer string            `yaml:"normalized_fuzzer"`
	Slowdowns        []SlowdownPair    `yaml:"slowdowns"`

	MutationTechniques  []string `yaml:"mutation_techniques"`
	MutationRepetitions int      `yaml:"mutation_repetitions"`
	MutationSampleLimit int      `yaml:"mutation_sample_limit"`
	MutationSampleSeed  int64    `yaml:"mutation_sample_seed"`
}

func DefaultPlan() *Plan {
	return &Plan{
		Benchmarks:  []string{"ant", "closure", "maven", "rhino", "chocopy", "gson", "jackson"},
		Techniques:  []string{"zeugma-none", "ei", "zest", "zeugma-linked", "bedivfuzz-structure", "random", "zest-mini"},
		Repetitions: 1,
		Duration:    time.Minute,
		OutputDir:   "data/raw/fresh-baked",

		Baseline:    "Zest",
		Alpha:       0.05,
		SampleTimes: []time.Duration{5 * time.Minute, 24 * time.Hour},
		TimeBound:   24 * time.Hour,
		FuzzerNames: map[string]string{
			"BeDiv-Struct": "BeDivFuzz",
			"BeDiv-Simple": "BeDivFuzz-Simple",
			"Zeugma-Link":  "Zeugma",
			"Zeugma-X":     "Zeugma-None",
		},
		TechniqueLabels: map[string]string{
			"zest":                "Zest",
			"ei":                  "EI",
			"zeugma-linked":       "Zeugma",
			"bedivfuzz-structure": "BeDivFuzz",
			"random":              "Random",
			"zest-mini":           "Zest-Mini",
		},
		Excluded:    []string{"BeDivFuzz-Simple", "Zeugma-None"},
		LegendOrder: []string{"Random", "Zest-Mini", "Zest", "EI", "BeDivFuzz", "Zeugma"},
		Palette: map[string]string{
			"Random":    "#4878CF",
			"Zest-Mini": "#EE854A",
			"Zest":      "#D65F5F",
			"EI":        "#59A14F",
			"BeDivFuzz": "#B279A2",
			"Zeugma":    "#BAB0AC",
		},
		NormalizedFuzzer: "Zeugma",
		Slowdowns: []SlowdownPair{
			{Label: "EI", Technique: "ei", Baseline: "zest"},
			{Label: "BeDivFuzz", Technique: "bedivfuzz-structure", Baseline: "zest"},
			{Label: "Zeugma", Technique: "zeugma-linked", Baseline: "zeugma-none"},
		},

		MutationTechniques:  []string{"random", "zest-mini", "zest", "ei", "bedivfuzz-structure", "zeugma-linked"},
		MutationRepetitions: 1,
		MutationSampleLimit: 100000,
		MutationSampleSeed:  0,
	}
}

// LoadPlan reads a yaml plan on top of the defaults. An empty path yields
// the default plan.
func LoadPlan(path string) (*Plan, error) {
	plan := DefaultPlan()
	if path == "" {
		return plan, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	if err := yaml.Unmarshal(data, plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// NewPlan loads the plan named by the app config.
func NewPlan(cfg *AppConfig) (*Plan, error) {
	return LoadPlan(cfg.PlanPath)
}

func (p *Plan) Validate() error {
	if len(p.Benchmarks) == 0 {
		return fmt.Errorf("plan has no benchmarks")
	}
	if len(p.Techniques) == 0 {
		return fmt.Errorf("plan has no techniques")
	}
	if p.Repetitions < 1 {
		return fmt.Errorf("plan repetitions must be positive, got %d", p.Repetitions)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("plan duration must be positive, got %s", p.Duration)
	}
	if p.Alpha <= 0 || p.Alpha >= 1 {
		return fmt.Errorf("plan alpha must be in (0, 1), got %g", p.Alpha)
	}
	return nil
}

// DisplayName maps a fuzzer name derived from campaign metadata to the name
// used in tables and charts.
func (p *Plan) DisplayName(fuzzer string) string {
	if name, ok := p.FuzzerNames[fuzzer]; ok {
		return name
	}
	return fuzzer
}

// TechniqueLabel maps a maven profile (optionally suffixed with
// SavedOnlySuffix) to its display label.
func (p *Plan) TechniqueLabel(technique string) string {
	base, saved := strings.CutSuffix(technique, SavedOnlySuffix)
	label, ok := p.TechniqueLabels[base]
	if !ok {
		label = base
	}
	if saved {
		return label + "-saved"
	}
	return label
}

func (p *Plan) IsExcluded(fuzzer string) bool {
	return slices.Contains(p.Excluded, fuzzer)
}

// Color returns the hex color assigned to a fuzzer, without the leading '#'.
func (p *Plan) Color(fuzzer string) string {
	if c, ok := p.Palette[fuzzer]; ok {
		return strings.TrimPrefix(c, "#")
	}
	return "BAB0AC"
}

// Ordered sorts names by legend order; names missing from the legend follow
// in lexical order.
func (p *Plan) Ordered(names []string) []string {
	rank := make(map[string]int, len(p.LegendOrder))
	for i, n := range p.LegendOrder {
		rank[n] = i
	}
	out := slices.Clone(names)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// MaxSampleTime is the end of the shared coverage resampling grid.
func (p *Plan) MaxSampleTime() time.Duration {
	var m time.Duration
	for _, t := range p.SampleTimes {
		m = max(m, t)
	}
	return m
}
