package runner

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/internal/campaign"
	"github.com/aoli-al/havoc-mutation-eval/internal/types"
	"github.com/aoli-al/havoc-mutation-eval/pkg/telemetry"
	"github.com/aoli-al/havoc-mutation-eval/pkg/watchdog"
)

// FailureMonitor collects failure-inducing inputs from every running trial.
type FailureMonitor struct {
	logger          *zap.Logger
	watchDogFactory *watchdog.WatchDogFactory

	failureChan chan types.FailureMessage
	wg          sync.WaitGroup
	done        chan struct{}

	mu     sync.Mutex
	counts map[string]int // trial id -> failures seen
}

func NewFailureMonitor(logger *zap.Logger, watchDogFactory *watchdog.WatchDogFactory, lifeCycle fx.Lifecycle) *FailureMonitor {
	m := newFailureMonitor(logger, watchDogFactory)

	lifeCycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			m.logger.Debug("starting failure monitor")
			m.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			m.logger.Info("stopping failure monitor")
			m.Stop()
			return nil
		},
	})
	return m
}

func newFailureMonitor(logger *zap.Logger, watchDogFactory *watchdog.WatchDogFactory) *FailureMonitor {
	return &FailureMonitor{
		logger:          logger.Named("failures"),
		watchDogFactory: watchDogFactory,
		failureChan:     make(chan types.FailureMessage, 1024),
		done:            make(chan struct{}),
		counts:          make(map[string]int),
	}
}

func (m *FailureMonitor) Start() {
	go m.process()
}

// Stop waits for every watched trial to finish, then drains the queue.
func (m *FailureMonitor) Stop() {
	m.wg.Wait()
	close(m.failureChan)
	<-m.done
}

// Watch forwards failures written under the campaign of trial until ctx is
// done.
func (m *FailureMonitor) Watch(ctx context.Context, trial types.Trial, dir string) error {
	notify := make(chan string, 64)
	wd, err := m.watchDogFactory.New(ctx, notify, isFailureInput)
	if err != nil {
		return err
	}
	if err := wd.AddDir(filepath.Join(dir, campaign.CampaignFailureDir)); err != nil {
		// the watchdog still owns notify and closes it once ctx is done
		return err
	}

	m.wg.Add(1)
	span := telemetry.FromContext(ctx).Spawn("failure monitor")
	span.Start()
	go func() {
		defer m.wg.Done()
		defer span.End()

		found := 0
		for file := range notify {
			found++
			m.failureChan <- types.FailureMessage{File: file, Trial: trial}
		}
		span.WithAttributes(telemetry.EmptySpanAttributes().WithFailures(found))
	}()
	return nil
}

// Failures reports how many failures a trial has produced so far.
func (m *FailureMonitor) Failures(trialID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[trialID]
}

func (m *FailureMonitor) process() {
	defer close(m.done)
	for msg := range m.failureChan {
		id := msg.Trial.ID()
		m.mu.Lock()
		m.counts[id]++
		n := m.counts[id]
		m.mu.Unlock()

		if n == 1 {
			m.logger.Info("first failure found", zap.String("trial", id), zap.String("file", msg.File))
			continue
		}
		m.logger.Debug("failure found", zap.String("trial", id), zap.String("file", msg.File), zap.Int("count", n))
	}
}

// isFailureInput matches saved failure inputs: id_NNNNNN for the JQF
// fuzzers and id_NNNNNN.dat for Zeugma.
func isFailureInput(path string) bool {
	seq, ok := strings.CutPrefix(filepath.Base(path), "id_")
	if !ok {
		return false
	}
	seq = strings.TrimSuffix(seq, ".dat")
	if seq == "" {
		return false
	}
	for _, c := range seq {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
