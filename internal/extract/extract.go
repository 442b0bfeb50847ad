package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/campaign"
	"github.com/aoli-al/havoc-mutation-eval/pkg/database"
	"github.com/aoli-al/havoc-mutation-eval/pkg/telemetry"
)

type Extractor struct {
	logger        *zap.Logger
	plan          *config.Plan
	knownPath     string
	db            *gorm.DB
	tracerFactory *telemetry.TracerFactory
}

type ExtractorParams struct {
	fx.In

	Logger        *zap.Logger
	Config        *config.AppConfig
	Plan          *config.Plan
	DB            *gorm.DB `optional:"true"`
	TracerFactory *telemetry.TracerFactory
}

func NewExtractor(p ExtractorParams) *Extractor {
	return &Extractor{
		logger:        p.Logger.Named("extract"),
		plan:          p.Plan,
		knownPath:     p.Config.KnownFailuresPath,
		db:            p.DB,
		tracerFactory: p.TracerFactory,
	}
}

// Result holds everything one extraction produced.
type Result struct {
	Campaigns  []*campaign.Campaign
	Corpus     []CorpusRecord
	Coverage   []CoverageRow
	Detections []Detection
	Trials     []TrialDetail
}

// Extract reads every valid campaign under inputDir and writes the corpus
// sizes, coverage, detections and trial details into outputDir. With
// copyCorpus the trial-controlled corpora are copied as well.
func (e *Extractor) Extract(ctx context.Context, inputDir, outputDir string, copyCorpus bool) (*Result, error) {
	tracer := e.tracerFactory.NewTracer(ctx, "extract campaigns")
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.Extraction).
		WithExtraAttribute("input_dir", inputDir))
	tracer.Start()
	defer tracer.End()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		tracer.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	campaigns, err := campaign.Read(inputDir, e.logger)
	if err != nil {
		tracer.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res := &Result{Campaigns: campaigns}

	stage := func(name string, fn func() error) error {
		span := tracer.Spawn(name)
		span.Start()
		defer span.End()
		if err := fn(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	if err := stage("corpus sizes", func() error {
		res.Corpus = CorpusSizes(campaigns, e.plan, e.logger)
		path := filepath.Join(outputDir, CorpusSizesFile)
		if err := WriteCorpusSizes(path, res.Corpus); err != nil {
			return err
		}
		e.logger.Info("wrote corpus sizes", zap.String("path", path))
		if copyCorpus {
			n := CopyControlledCorpus(inputDir, res.Corpus, e.logger)
			e.logger.Info("copied controlled corpora", zap.Int("campaigns", n))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := stage("coverage", func() error {
		res.Coverage = Coverage(campaigns, Grid(e.plan.SampleTimes, GridPoints), e.logger)
		path := filepath.Join(outputDir, CoverageFile)
		if err := WriteCoverage(path, res.Coverage); err != nil {
			return err
		}
		e.logger.Info("wrote coverage", zap.String("path", path), zap.Int("rows", len(res.Coverage)))
		return nil
	}); err != nil {
		return nil, err
	}

	failures := LoadFailures(campaigns, e.logger)
	known := e.loadKnownFailures()
	if err := stage("detections", func() error {
		res.Detections = Detections(campaigns, failures, known)
		path := filepath.Join(outputDir, DetectionsFile)
		if err := WriteDetections(path, res.Detections); err != nil {
			return err
		}
		e.logger.Info("wrote detections", zap.String("path", path), zap.Int("rows", len(res.Detections)))
		return nil
	}); err != nil {
		return nil, err
	}

	if err := stage("trial details", func() error {
		res.Trials = TrialDetails(res.Corpus)
		path := filepath.Join(outputDir, TrialDetailsFile)
		if err := WriteTrialDetails(path, res.Trials); err != nil {
			return err
		}
		e.logger.Info("wrote trial details", zap.String("path", path))
		return nil
	}); err != nil {
		return nil, err
	}

	if e.db != nil {
		if err := e.persist(ctx, res, failures, known); err != nil {
			// the csv outputs are complete, storage is best effort
			e.logger.Error("failed to persist campaigns", zap.Error(err))
		}
	}
	tracer.WithAttributes(telemetry.EmptySpanAttributes().WithExtraAttribute("campaigns", len(campaigns)))
	return res, nil
}

// loadKnownFailures returns nil when the file is missing; detections are
// then empty.
func (e *Extractor) loadKnownFailures() *campaign.KnownFailures {
	known, err := campaign.LoadKnownFailures(e.knownPath)
	if err != nil {
		e.logger.Warn("no known failures, detections will be empty", zap.String("path", e.knownPath), zap.Error(err))
		return nil
	}
	e.logger.Info("loaded known failures", zap.Int("count", known.Len()))
	return known
}

func (e *Extractor) persist(ctx context.Context, res *Result, failures map[string][]campaign.Failure, known *campaign.KnownFailures) error {
	finalCoverage := make(map[string]float64)
	for _, row := range res.Coverage {
		finalCoverage[row.CampaignID] = row.CoveredBranches
	}
	byID := make(map[string]TrialDetail, len(res.Trials))
	for _, t := range res.Trials {
		byID[t.CampaignID] = t
	}

	for _, c := range res.Campaigns {
		summary, err := json.Marshal(c.Summary)
		if err != nil {
			return fmt.Errorf("failed to encode summary of %s: %w", c.ID, err)
		}
		trial := byID[c.ID]
		record := &database.Campaign{
			CampaignID: c.ID,
			Subject:    c.Subject,
			Fuzzer:     c.Fuzzer,
			Technique:  trial.Technique,
			Repetition: trial.Repetition,
			Executions: c.Executions,
			CorpusSize: c.CorpusSize,
			DurationMs: trial.Duration.Milliseconds(),
			Coverage:   int64(finalCoverage[c.ID]),
			Summary:    datatypes.JSON(summary),
		}
		if err := database.UpsertCampaign(ctx, e.db, record); err != nil {
			return fmt.Errorf("failed to store campaign %s: %w", c.ID, err)
		}

		rows := make([]*database.Failure, 0, len(failures[c.ID]))
		for _, f := range failures[c.ID] {
			trace, err := json.Marshal(f.Trace)
			if err != nil {
				return err
			}
			defects, err := json.Marshal(known.Defects(c.Subject, f))
			if err != nil {
				return err
			}
			rows = append(rows, &database.Failure{
				CampaignID:  c.ID,
				Type:        f.Type,
				Signature:   f.Trace.Signature(),
				Trace:       datatypes.JSON(trace),
				DetectionMs: f.DetectionTime.Milliseconds(),
				Defects:     datatypes.JSON(defects),
			})
		}
		if err := database.ReplaceFailures(ctx, e.db, c.ID, rows); err != nil {
			return fmt.Errorf("failed to store failures of %s: %w", c.ID, err)
		}
	}
	e.logger.Info("persisted campaigns", zap.Int("count", len(res.Campaigns)))
	return nil
}
