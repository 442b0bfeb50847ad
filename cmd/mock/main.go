package main

// mock an experiment: synthetic campaigns for every trial of the plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/campaign/campaigntest"
	"github.com/aoli-al/havoc-mutation-eval/internal/runner"
	"github.com/aoli-al/havoc-mutation-eval/internal/types"
	"github.com/aoli-al/havoc-mutation-eval/internal/utils"
	"github.com/aoli-al/havoc-mutation-eval/pkg/logger"
	"github.com/aoli-al/havoc-mutation-eval/pkg/mq"
	"github.com/aoli-al/havoc-mutation-eval/pkg/telemetry"
)

type options struct {
	Output    string `short:"o" long:"output" default:"data/raw/mock" description:"directory for the synthetic campaigns"`
	Plan      string `short:"p" long:"plan" description:"experiment plan (yaml)"`
	Seed      int64  `long:"seed" default:"1" description:"random seed"`
	Mutations int    `long:"mutations" default:"200" description:"mutation log lines per campaign, 0 disables"`
	Publish   bool   `long:"publish" description:"publish an analyze message per campaign to the trial queue"`
}

// techniqueProfiles maps a technique to the framework class and JVM options
// meringue records for it.
var techniqueProfiles = map[string]struct {
	framework string
	options   []string
	speed     float64 // executions per second
	reach     float64 // fraction of the benchmark's branches eventually covered
}{
	"zest":                {"edu.neu.ccs.prl.zeugma.ZestFramework", nil, 900, 0.62},
	"zest-mini":           {"edu.neu.ccs.prl.zeugma.ZestFramework", []string{"-Dzest.mini=true"}, 950, 0.58},
	"ei":                  {"edu.neu.ccs.prl.zeugma.EIFramework", nil, 700, 0.64},
	"random":              {"edu.neu.ccs.prl.zeugma.RandomFramework", nil, 1500, 0.45},
	"bedivfuzz-structure": {"edu.neu.ccs.prl.zeugma.BeDivFuzzFramework", []string{"-Djqf.div.SAVE_ONLY_NEW_STRUCTURES=true"}, 650, 0.63},
	"bedivfuzz-simple":    {"edu.neu.ccs.prl.zeugma.BeDivFuzzFramework", nil, 680, 0.6},
	"zeugma-linked":       {"edu.neu.ccs.prl.zeugma.ZeugmaFramework", []string{"-Dzeugma.crossover=linked"}, 800, 0.7},
	"zeugma-none":         {"edu.neu.ccs.prl.zeugma.ZeugmaFramework", []string{"-Dzeugma.crossover=none"}, 850, 0.6},
}

type mockApp struct {
	rabbitMQ     mq.RabbitMQ
	logger       *zap.Logger
	traceFactory *telemetry.TracerFactory
	shutdowner   fx.Shutdowner
}

type mockParams struct {
	fx.In
	RabbitMQ     mq.RabbitMQ `optional:"true"`
	Logger       *zap.Logger
	TraceFactory *telemetry.TracerFactory
	Shutdowner   fx.Shutdowner
}

func newMockApp(p mockParams) *mockApp {
	return &mockApp{
		rabbitMQ:     p.RabbitMQ,
		logger:       p.Logger,
		traceFactory: p.TraceFactory,
		shutdowner:   p.Shutdowner,
	}
}

func (m *mockApp) run(opts *options, plan *config.Plan) error {
	defer m.shutdowner.Shutdown()

	if err := utils.ResetDir(opts.Output); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	trials := runner.Grid(plan.Benchmarks, plan.Techniques, plan.Repetitions, types.TrialMessage{
		Mode:      types.ModeAnalyze,
		OutputDir: opts.Output,
		Duration:  plan.Duration,
	})
	for _, msg := range trials {
		c, err := synthesize(msg.Trial, plan.Duration, opts.Mutations, rng)
		if err != nil {
			return err
		}
		if err := campaigntest.Write(runner.TrialDir(msg), c); err != nil {
			return fmt.Errorf("failed to write %s: %w", msg.Trial.ID(), err)
		}
	}
	m.logger.Info("wrote mock campaigns", zap.Int("count", len(trials)), zap.String("dir", opts.Output))

	if opts.Publish {
		return m.publish(trials)
	}
	return nil
}

func (m *mockApp) publish(trials []types.TrialMessage) error {
	if m.rabbitMQ == nil {
		return runner.ErrNoBroker
	}
	tracer := m.traceFactory.NewTracer(context.Background(), "mock experiment "+uuid.NewString())
	tracer.Start()
	defer tracer.End()

	for _, msg := range trials {
		msg.TraceContext = tracer.Export()
		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal trial: %w", err)
		}
		if err := m.rabbitMQ.Publish(context.Background(), runner.TrialQueue, body); err != nil {
			return fmt.Errorf("failed to publish message: %w", err)
		}
	}
	m.logger.Info("successfully sent mock trials",
		zap.Int("count", len(trials)),
		zap.String("queue", runner.TrialQueue))
	return nil
}

// synthesize fakes a campaign whose coverage saturates towards the
// technique's reach.
func synthesize(trial types.Trial, duration time.Duration, mutations int, rng *rand.Rand) (campaigntest.Campaign, error) {
	profile, ok := techniqueProfiles[trial.Technique]
	if !ok {
		return campaigntest.Campaign{}, fmt.Errorf("no mock profile for technique %s", trial.Technique)
	}
	c := campaigntest.Campaign{
		TestClass:   "edu.neu.ccs.prl.zeugma.eval.Fuzz" + strings.ToUpper(trial.Benchmark[:1]) + trial.Benchmark[1:],
		Framework:   profile.framework,
		JavaOptions: profile.options,
		Duration:    duration,
	}

	const points = 20
	branches := 2000 + rng.Intn(3000)
	speed := profile.speed * (0.9 + 0.2*rng.Float64())
	for i := 0; i <= points; i++ {
		elapsed := duration * time.Duration(i) / points
		progress := 1 - math.Exp(-4*float64(i)/points)
		c.Rows = append(c.Rows, campaigntest.Row{
			Elapsed:    elapsed,
			Executions: int64(speed * elapsed.Seconds()),
			CorpusSize: 1 + int(progress*200),
		})
		c.Coverage = append(c.Coverage, campaigntest.Point{
			Time:     elapsed,
			Branches: int(float64(branches) * profile.reach * progress * (0.95 + 0.1*rng.Float64())),
		})
	}
	c.Corpus = c.Rows[len(c.Rows)-1].CorpusSize

	if rng.Float64() < profile.reach {
		c.Failures = append(c.Failures, campaigntest.Failure{
			Type: "java.lang.IllegalStateException",
			Trace: []map[string]any{{
				"declaringClass": "org.mozilla.javascript.Parser",
				"methodName":     "parse",
				"fileName":       "Parser.java",
				"lineNumber":     100 + rng.Intn(5),
			}},
			First: time.Duration(rng.Int63n(int64(duration))),
		})
	}
	if mutations > 0 {
		c.MutationLog = mutationLog(mutations, rng)
	}
	return c, nil
}

func mutationLog(n int, rng *rand.Rand) string {
	var b strings.Builder
	b.WriteString("current_len,parent_len,byte_current_len,byte_parent_len,byte_distance,distance,saved,result,parent,id,file\n")
	results := []string{"SUCCESS", "INVALID", "FAILURE"}
	for i := 0; i < n; i++ {
		parentLen := 1 + rng.Intn(64)
		curLen := max(0, parentLen+rng.Intn(17)-8)
		parent := -1
		if i > 0 {
			parent = rng.Intn(i)
		}
		fmt.Fprintf(&b, "%d,%d,%d,%d,%d,%d,%t,%s,%d,%d,-1\n",
			curLen, parentLen, curLen*4, parentLen*4,
			rng.Intn(parentLen*4+1), rng.Intn(parentLen+1),
			rng.Float64() < 0.1, results[rng.Intn(len(results))], parent, i)
	}
	return b.String()
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	opts.Output = filepath.Clean(opts.Output)

	app := fx.New(
		fx.Provide(
			func() *config.AppConfig {
				cfg := config.LoadConfig()
				if opts.Plan != "" {
					cfg.PlanPath = opts.Plan
				}
				return cfg
			},
			config.NewPlan,
			telemetry.NewTelemetry,
			logger.NewLogger,
			telemetry.NewTracerFactory,
			mq.NewRabbitMQ,
			newMockApp,
		),
		fx.Invoke(func(mock *mockApp, plan *config.Plan) error {
			return mock.run(&opts, plan)
		}),
	)

	app.Run()
}
