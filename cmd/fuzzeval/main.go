package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/extract"
	"github.com/aoli-al/havoc-mutation-eval/internal/render"
	"github.com/aoli-al/havoc-mutation-eval/internal/runner"
	"github.com/aoli-al/havoc-mutation-eval/pkg/database"
	"github.com/aoli-al/havoc-mutation-eval/pkg/logger"
	"github.com/aoli-al/havoc-mutation-eval/pkg/mq"
	"github.com/aoli-al/havoc-mutation-eval/pkg/telemetry"
	"github.com/aoli-al/havoc-mutation-eval/pkg/watchdog"
)

type globalOptions struct {
	Plan    string `short:"p" long:"plan" description:"experiment plan (yaml), overrides FUZZEVAL_PLAN"`
	Verbose bool   `short:"v" long:"verbose" description:"log at debug level"`
}

func (g *globalOptions) loadConfig() *config.AppConfig {
	cfg := config.LoadConfig()
	if g.Plan != "" {
		cfg.PlanPath = g.Plan
	}
	if g.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg
}

// newApp wires every service a subcommand may need. fx only builds what
// targets depend on, so brokers and databases are dialed on demand.
func (g *globalOptions) newApp(targets ...any) *fx.App {
	return fx.New(
		fx.Provide(
			g.loadConfig,                // inject config
			config.NewPlan,              // inject experiment plan
			logger.NewLogger,            // inject logger
			telemetry.NewTelemetry,      // inject telemetry
			telemetry.NewTracerFactory,  // inject telemetry tracer factory
			database.NewDBConnection,    // inject db connection
			database.NewRedisClient,     // inject redis client
			mq.NewRabbitMQ,              // inject rabbitmq service
			watchdog.NewWatchDogFactory, // inject watchdog factory
			runner.NewFailureMonitor,    // inject failure monitor
			runner.NewRunner,            // inject campaign runner
			extract.NewExtractor,        // inject extractor
			render.NewReporter,          // inject reporter
		),
		fx.Populate(targets...),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zlogger := fxevent.ZapLogger{Logger: log}
			zlogger.UseLogLevel(zap.DebugLevel)
			return &zlogger
		}),
	)
}

// execute starts the app, runs fn until it returns or the process is
// interrupted, then stops the app.
func (g *globalOptions) execute(fn func(ctx context.Context) error, targets ...any) error {
	app := g.newApp(targets...)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	return errors.Join(runErr, app.Stop(stopCtx))
}

func main() {
	var global globalOptions
	parser := flags.NewParser(&global, flags.Default)
	parser.LongDescription = "Runs fuzzing campaigns and turns their results into tables, charts and reports."

	commands := []struct {
		name, short, long string
		data              any
	}{
		{"run", "Run fuzzing campaigns",
			"Runs one campaign per benchmark, technique and repetition of the plan.",
			&runCommand{global: &global}},
		{"analyze", "Replay saved corpora",
			"Runs meringue:analyze over existing campaigns, optionally on the trial-controlled corpus.",
			&analyzeCommand{global: &global}},
		{"worker", "Consume the trial queue",
			"Runs trials published by run --dispatch until interrupted.",
			&workerCommand{global: &global}},
		{"extract", "Extract campaign data",
			"Writes corpus sizes, coverage, detections and trial details as csv.",
			&extractCommand{global: &global}},
		{"mutations", "Mutation distance figures",
			"Computes mutation distances from campaign mutation logs and plots them.",
			&mutationsCommand{global: &global}},
		{"cov-table", "Coverage LaTeX table",
			"Writes the branch coverage table from extracted data.",
			&covTableCommand{global: &global}},
		{"slowdown-table", "Slowdown LaTeX table",
			"Writes the runtime slowdown table from extracted data.",
			&slowdownTableCommand{global: &global}},
		{"report", "HTML report",
			"Writes every table and chart plus an HTML index.",
			&reportCommand{global: &global}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			panic(err)
		}
	}

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
