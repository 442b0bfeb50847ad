// Package runner executes fuzzing campaigns through maven, locally on a
// worker pool or remotely through the trial queue.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/types"
	"github.com/aoli-al/havoc-mutation-eval/internal/utils"
	"github.com/aoli-al/havoc-mutation-eval/pkg/mq"
	"github.com/aoli-al/havoc-mutation-eval/pkg/telemetry"
)

type Runner struct {
	logger        *zap.Logger
	config        config.RunnerConfig
	plan          *config.Plan
	tracerFactory *telemetry.TracerFactory
	status        StatusStore
	rabbitMQ      mq.RabbitMQ
	monitor       *FailureMonitor
	shutdowner    fx.Shutdowner
	coreCount     int
	runID         string

	mu          sync.Mutex
	failedCount map[string]int // trial id -> failed deliveries
}

type RunnerParams struct {
	fx.In

	Logger        *zap.Logger
	Config        *config.AppConfig
	Plan          *config.Plan
	TracerFactory *telemetry.TracerFactory
	RedisClient   *redis.Client `optional:"true"`
	RabbitMQ      mq.RabbitMQ   `optional:"true"`
	Monitor       *FailureMonitor
	Shutdowner    fx.Shutdowner
}

func NewRunner(p RunnerParams) *Runner {
	runID := uuid.NewString()
	return &Runner{
		logger:        p.Logger.Named("runner").With(zap.String("run_id", runID)),
		config:        p.Config.RunnerConfig,
		plan:          p.Plan,
		tracerFactory: p.TracerFactory,
		status:        NewStatusStore(p.RedisClient, runID),
		rabbitMQ:      p.RabbitMQ,
		monitor:       p.Monitor,
		shutdowner:    p.Shutdowner,
		coreCount:     p.Config.CoreCount,
		runID:         runID,
		failedCount:   make(map[string]int),
	}
}

// Options select what a run does with the plan.
type Options struct {
	Mode      types.Mode
	OutputDir string // base directory; defaults to the plan's output dir
	Workers   int    // defaults to the configured core count
	Fresh     bool   // wipe OutputDir and rerun finished trials
	Dispatch  bool   // publish trials to the queue instead of running them

	LogMutation bool // force the log-mutation profile on
}

// Trials expands the plan into trial messages.
func (r *Runner) Trials(opts Options) []types.TrialMessage {
	base := types.TrialMessage{
		Mode:        opts.Mode,
		OutputDir:   opts.OutputDir,
		Duration:    r.plan.Duration,
		LogMutation: r.config.LogMutation || opts.LogMutation,
	}
	if base.Mode == "" {
		base.Mode = types.ModeFuzz
	}
	if base.OutputDir == "" {
		base.OutputDir = r.plan.OutputDir
	}
	return Grid(r.plan.Benchmarks, r.plan.Techniques, r.plan.Repetitions, base)
}

// Run executes or dispatches every trial of the plan. Without Fresh, trials
// already marked done are skipped.
func (r *Runner) Run(ctx context.Context, opts Options) error {
	tracer := r.tracerFactory.NewTracer(ctx, "run experiment")
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.Fuzzing).
		WithExtraAttribute("run_id", r.runID).
		WithExtraAttribute("mode", string(opts.Mode)))
	tracer.Start()
	defer tracer.End()
	ctx = context.WithValue(ctx, telemetry.TracerKey{}, tracer)

	msgs := r.Trials(opts)
	if opts.Fresh && len(msgs) > 0 && msgs[0].Mode == types.ModeFuzz {
		r.logger.Info("resetting output directory", zap.String("dir", msgs[0].OutputDir))
		if err := utils.ResetDir(msgs[0].OutputDir); err != nil {
			tracer.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	if !opts.Fresh {
		msgs = r.pending(ctx, msgs)
	}
	r.logger.Info("trials to run", zap.Int("count", len(msgs)))
	if len(msgs) == 0 {
		return nil
	}

	var err error
	if opts.Dispatch {
		err = r.Dispatch(ctx, msgs)
	} else {
		err = r.runLocal(ctx, msgs, opts.Workers)
	}
	if err != nil {
		tracer.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Runner) pending(ctx context.Context, msgs []types.TrialMessage) []types.TrialMessage {
	out := msgs[:0:0]
	for _, msg := range msgs {
		status, err := r.status.Get(ctx, msg.Trial.ID())
		if err != nil {
			r.logger.Warn("failed to read trial status", zap.String("trial", msg.Trial.ID()), zap.Error(err))
		}
		if status == StatusDone && msg.Mode == types.ModeFuzz {
			r.logger.Debug("skipping finished trial", zap.String("trial", msg.Trial.ID()))
			continue
		}
		out = append(out, msg)
	}
	return out
}

func (r *Runner) runLocal(ctx context.Context, msgs []types.TrialMessage, workers int) error {
	if workers < 1 {
		workers = r.coreCount
	}
	workers = max(1, min(workers, len(msgs)))

	jobs := make(chan types.TrialMessage)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range jobs {
				if err := r.RunTrial(ctx, msg); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", msg.Trial.ID(), err))
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for _, msg := range msgs {
		select {
		case jobs <- msg:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if len(errs) > 0 {
		r.logger.Error("some trials failed", zap.Int("failed", len(errs)), zap.Int("total", len(msgs)))
	}
	return errors.Join(append(errs, ctx.Err())...)
}

// RunTrial runs one maven invocation and records its status.
func (r *Runner) RunTrial(ctx context.Context, msg types.TrialMessage) error {
	id := msg.Trial.ID()
	tracer := telemetry.FromContext(ctx).Spawn("trial " + id)
	if msg.TraceContext != "" {
		tracer = r.tracerFactory.NewTracerSpawnedFrom(ctx, msg.TraceContext, "trial "+id)
	}
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.Fuzzing).
		WithBenchmark(msg.Trial.Benchmark).
		WithTechnique(msg.Trial.Technique).
		WithRepetition(msg.Trial.Repetition).
		WithCampaignID(id).
		WithExtraAttribute("mode", string(msg.Mode)))
	tracer.Start()
	defer tracer.End()
	ctx = context.WithValue(ctx, telemetry.TracerKey{}, tracer)

	r.setStatus(ctx, id, StatusRunning)
	err := r.execute(ctx, msg)
	if err != nil {
		tracer.SetStatus(codes.Error, err.Error())
		r.setStatus(context.WithoutCancel(ctx), id, StatusFailed)
		r.logger.Error("trial failed", zap.String("trial", id), zap.Error(err))
		return err
	}
	failures := r.monitor.Failures(id)
	tracer.WithAttributes(telemetry.EmptySpanAttributes().WithFailures(failures))
	r.setStatus(ctx, id, StatusDone)
	r.logger.Info("trial finished", zap.String("trial", id), zap.Int("failures", failures))
	return nil
}

func (r *Runner) execute(ctx context.Context, msg types.TrialMessage) error {
	dir := TrialDir(msg)

	if msg.Mode == types.ModeAnalyzeTrial {
		restore, err := SwapCorpus(dir)
		if err != nil {
			return err
		}
		defer func() {
			if err := restore(); err != nil {
				r.logger.Error("failed to restore corpus", zap.String("dir", dir), zap.Error(err))
			}
		}()
	}

	if msg.Mode == types.ModeFuzz {
		watchCtx, stop := context.WithCancel(ctx)
		defer stop()
		if err := r.monitor.Watch(watchCtx, msg.Trial, dir); err != nil {
			r.logger.Warn("failed to watch failures", zap.String("trial", msg.Trial.ID()), zap.Error(err))
		}
	}

	p := Process{
		Name:   msg.Trial.ID(),
		Binary: r.config.MvnBinary,
		Args:   Args(msg),
		Dir:    r.config.ProjectDir,
		logger: r.logger,
	}
	return p.Run(ctx, r.deadline(msg))
}

// deadline bounds a fuzzing run at its campaign duration plus the grace
// period. Analysis runs and a zero grace period are unbounded.
func (r *Runner) deadline(msg types.TrialMessage) time.Duration {
	if msg.Mode != types.ModeFuzz || r.config.GracePeriod <= 0 {
		return 0
	}
	return msg.Duration + r.config.GracePeriod
}

func (r *Runner) setStatus(ctx context.Context, id string, status Status) {
	if err := r.status.Set(ctx, id, status); err != nil {
		r.logger.Warn("failed to record trial status", zap.String("trial", id), zap.Error(err))
	}
}
