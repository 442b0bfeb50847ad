package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/internal/extract"
	"github.com/aoli-al/havoc-mutation-eval/internal/render"
	"github.com/aoli-al/havoc-mutation-eval/internal/runner"
	"github.com/aoli-al/havoc-mutation-eval/internal/types"
)

type runCommand struct {
	global *globalOptions

	Output      string `short:"o" long:"output" description:"base output directory (default: plan output_dir)"`
	CPUs        int    `short:"c" long:"cpus" description:"trials run in parallel (default: CORE_COUNT)"`
	Fresh       bool   `long:"fresh" description:"delete previous results and rerun finished trials"`
	Dispatch    bool   `long:"dispatch" description:"publish trials to the trial queue instead of running them"`
	LogMutation bool   `long:"log-mutation" description:"enable the log-mutation profile"`
}

func (c *runCommand) Execute([]string) error {
	var r *runner.Runner
	return c.global.execute(func(ctx context.Context) error {
		return r.Run(ctx, runner.Options{
			Mode:        types.ModeFuzz,
			OutputDir:   c.Output,
			Workers:     c.CPUs,
			Fresh:       c.Fresh,
			Dispatch:    c.Dispatch,
			LogMutation: c.LogMutation,
		})
	}, &r)
}

type analyzeCommand struct {
	global *globalOptions

	Output   string `short:"o" long:"output" description:"base directory of the campaigns (default: plan output_dir)"`
	CPUs     int    `short:"c" long:"cpus" description:"trials analyzed in parallel (default: CORE_COUNT)"`
	Trial    bool   `long:"trial" description:"analyze the trial-controlled corpus"`
	Dispatch bool   `long:"dispatch" description:"publish trials to the trial queue instead of running them"`
}

func (c *analyzeCommand) Execute([]string) error {
	mode := types.ModeAnalyze
	if c.Trial {
		mode = types.ModeAnalyzeTrial
	}
	var r *runner.Runner
	return c.global.execute(func(ctx context.Context) error {
		return r.Run(ctx, runner.Options{
			Mode:      mode,
			OutputDir: c.Output,
			Workers:   c.CPUs,
			Dispatch:  c.Dispatch,
		})
	}, &r)
}

type workerCommand struct {
	global *globalOptions
}

func (c *workerCommand) Execute([]string) error {
	var r *runner.Runner
	return c.global.execute(func(ctx context.Context) error {
		return r.Work(ctx)
	}, &r)
}

type extractCommand struct {
	global *globalOptions

	Input      string `short:"i" long:"input" required:"true" description:"directory of raw campaigns"`
	Output     string `short:"o" long:"output" default:"data/extracted" description:"directory for the csv files"`
	CopyCorpus bool   `long:"copy-corpus" description:"copy the trial-controlled corpus of each campaign"`
}

func (c *extractCommand) Execute([]string) error {
	var (
		e      *extract.Extractor
		logger *zap.Logger
	)
	return c.global.execute(func(ctx context.Context) error {
		res, err := e.Extract(ctx, c.Input, c.Output, c.CopyCorpus)
		if err != nil {
			return err
		}
		logger.Info("extraction finished",
			zap.Int("campaigns", len(res.Campaigns)),
			zap.Int("detections", len(res.Detections)),
			zap.String("output", c.Output))
		return nil
	}, &e, &logger)
}

type mutationsCommand struct {
	global *globalOptions

	Input  string `short:"i" long:"input" required:"true" description:"directory of raw campaigns run with log-mutation"`
	Output string `short:"o" long:"output" default:"data/mutations" description:"directory for the csv and figures"`
}

func (c *mutationsCommand) Execute([]string) error {
	var reporter *render.Reporter
	return c.global.execute(func(ctx context.Context) error {
		_, err := reporter.Mutations(ctx, c.Input, c.Output)
		return err
	}, &reporter)
}

type covTableCommand struct {
	global *globalOptions

	Input  string `short:"i" long:"input" default:"data/extracted" description:"directory of extracted csv files"`
	Output string `short:"o" long:"output" description:"LaTeX file (default: <input>/coverage_table.tex)"`
}

func (c *covTableCommand) Execute([]string) error {
	output := c.Output
	if output == "" {
		output = filepath.Join(c.Input, render.CoverageTableFile)
	}
	var reporter *render.Reporter
	return c.global.execute(func(ctx context.Context) error {
		if _, err := reporter.CoverageTable(ctx, c.Input, output); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", output)
		return nil
	}, &reporter)
}

type slowdownTableCommand struct {
	global *globalOptions

	Input  string `short:"i" long:"input" default:"data/extracted" description:"directory of extracted csv files"`
	Output string `short:"o" long:"output" description:"LaTeX file (default: <input>/slowdown_table.tex)"`
}

func (c *slowdownTableCommand) Execute([]string) error {
	output := c.Output
	if output == "" {
		output = filepath.Join(c.Input, render.SlowdownTableFile)
	}
	var reporter *render.Reporter
	return c.global.execute(func(ctx context.Context) error {
		if _, err := reporter.SlowdownTable(ctx, c.Input, output); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", output)
		return nil
	}, &reporter)
}

type reportCommand struct {
	global *globalOptions

	Input  string `short:"i" long:"input" default:"data/extracted" description:"directory of extracted csv files"`
	Output string `short:"o" long:"output" default:"data/report" description:"directory for the report"`
}

func (c *reportCommand) Execute([]string) error {
	var reporter *render.Reporter
	return c.global.execute(func(ctx context.Context) error {
		return reporter.Report(ctx, c.Input, c.Output)
	}, &reporter)
}
