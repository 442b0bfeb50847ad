package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/config"
	"github.com/aoli-al/havoc-mutation-eval/internal/campaign"
	"github.com/aoli-al/havoc-mutation-eval/internal/types"
	"github.com/aoli-al/havoc-mutation-eval/pkg/telemetry"
	"github.com/aoli-al/havoc-mutation-eval/pkg/watchdog"
)

type memoryStatus struct {
	mu     sync.Mutex
	status map[string]Status
}

func newMemoryStatus() *memoryStatus {
	return &memoryStatus{status: make(map[string]Status)}
}

func (m *memoryStatus) Get(_ context.Context, id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[id], nil
}

func (m *memoryStatus) Set(_ context.Context, id string, s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[id] = s
	return nil
}

type fakeBroker struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (b *fakeBroker) GetChannel() (*amqp.Channel, error) {
	return nil, errors.New("no channel")
}

func (b *fakeBroker) Publish(_ context.Context, queue string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = make(map[string][][]byte)
	}
	b.published[queue] = append(b.published[queue], body)
	return nil
}

type fakeAcknowledger struct {
	acks    int
	requeue []bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error { a.acks++; return nil }

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(uint64, bool) error { return nil }

// writeMvn writes a stand-in maven that logs its arguments and runs body.
func writeMvn(t *testing.T, body string) (path, log string) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, "mvn")
	log = filepath.Join(dir, "invocations.log")
	script := fmt.Sprintf("#!/bin/sh\necho \"$@\" >> %s\n%s\n", log, body)
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path, log
}

func invocations(t *testing.T, log string) []string {
	t.Helper()
	data, err := os.ReadFile(log)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func testPlan(outputDir string) *config.Plan {
	plan := config.DefaultPlan()
	plan.Benchmarks = []string{"rhino", "gson"}
	plan.Techniques = []string{"zest"}
	plan.Repetitions = 2
	plan.Duration = time.Minute
	plan.OutputDir = outputDir
	return plan
}

func newTestRunner(t *testing.T, mvn string, plan *config.Plan) (*Runner, *memoryStatus) {
	t.Helper()
	logger := zap.NewNop()
	monitor := newFailureMonitor(logger, watchdog.NewWatchDogFactory(logger))
	monitor.Start()
	t.Cleanup(monitor.Stop)

	status := newMemoryStatus()
	r := &Runner{
		logger: logger,
		config: config.RunnerConfig{
			ProjectDir:  t.TempDir(),
			MvnBinary:   mvn,
			GracePeriod: time.Minute,
		},
		plan:          plan,
		tracerFactory: telemetry.NewTracerFactory(telemetry.TracerFactoryParams{}),
		status:        status,
		monitor:       monitor,
		coreCount:     2,
		runID:         "test",
		failedCount:   make(map[string]int),
	}
	return r, status
}

func TestArgs(t *testing.T) {
	msg := types.TrialMessage{
		Trial:       types.Trial{Benchmark: "rhino", Technique: "zeugma-linked", Repetition: 3},
		Mode:        types.ModeFuzz,
		OutputDir:   "/data/raw",
		Duration:    90 * time.Second,
		LogMutation: true,
	}
	assert.Equal(t, []string{
		"-pl", ":zeugma-evaluation-tools",
		"meringue:fuzz", "meringue:analyze",
		"-Prhino,zeugma-linked,log-mutation",
		"-Dmeringue.outputDirectory=/data/raw/rhino-zeugma-linked-results-3",
		"-Dmeringue.duration=P0DT0H2M",
	}, Args(msg))

	msg.Mode = types.ModeAnalyze
	assert.Equal(t, []string{
		"-pl", ":zeugma-evaluation-tools",
		"meringue:analyze",
		"-Prhino,zeugma-linked",
		"-Dmeringue.outputDirectory=/data/raw/rhino-zeugma-linked-results-3",
	}, Args(msg))
}

func TestMeringueDuration(t *testing.T) {
	assert.Equal(t, "P0DT0H1M", meringueDuration(0))
	assert.Equal(t, "P0DT0H1M", meringueDuration(time.Minute))
	assert.Equal(t, "P0DT0H1440M", meringueDuration(24*time.Hour))
}

func TestGrid(t *testing.T) {
	msgs := Grid([]string{"ant", "rhino"}, []string{"zest", "ei"}, 2, types.TrialMessage{Mode: types.ModeFuzz})
	require.Len(t, msgs, 8)
	assert.Equal(t, "ant-zest-results-0", msgs[0].Trial.ID())
	assert.Equal(t, "ant-zest-results-1", msgs[1].Trial.ID())
	assert.Equal(t, "ant-ei-results-0", msgs[2].Trial.ID())
	assert.Equal(t, "rhino-ei-results-1", msgs[7].Trial.ID())
	assert.Equal(t, types.ModeFuzz, msgs[7].Mode)
}

func writeMarker(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
}

func TestSwapCorpus(t *testing.T) {
	dir := t.TempDir()
	writeMarker(t, filepath.Join(dir, campaign.CorpusDir), "full")
	writeMarker(t, filepath.Join(dir, campaign.ControlledDir), "controlled")

	restore, err := SwapCorpus(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, campaign.CorpusDir, "controlled"))
	assert.FileExists(t, filepath.Join(dir, campaign.CorpusFullDir, "full"))
	assert.NoDirExists(t, filepath.Join(dir, campaign.ControlledDir))

	require.NoError(t, restore())
	assert.FileExists(t, filepath.Join(dir, campaign.CorpusDir, "full"))
	assert.FileExists(t, filepath.Join(dir, campaign.ControlledDir, "controlled"))
	assert.NoDirExists(t, filepath.Join(dir, campaign.CorpusFullDir))
}

func TestSwapCorpusWithoutControlled(t *testing.T) {
	dir := t.TempDir()
	writeMarker(t, filepath.Join(dir, campaign.CorpusDir), "full")

	restore, err := SwapCorpus(dir)
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, campaign.CorpusDir))

	require.NoError(t, restore())
	assert.FileExists(t, filepath.Join(dir, campaign.CorpusDir, "full"))
}

func TestProcessRun(t *testing.T) {
	ok, log := writeMvn(t, "exit 0")
	p := Process{Name: "ok", Binary: ok, Args: []string{"a", "b"}, Dir: t.TempDir(), logger: zap.NewNop()}
	require.NoError(t, p.Run(context.Background(), time.Minute))
	assert.Equal(t, []string{"a b"}, invocations(t, log))

	bad, _ := writeMvn(t, "exit 3")
	p.Binary = bad
	var exitErr interface{ ExitCode() int }
	err := p.Run(context.Background(), time.Minute)
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
}

func TestProcessInterruptedAfterTimeout(t *testing.T) {
	slow, _ := writeMvn(t, "trap 'exit 0' INT\nsleep 5 &\nwait")
	p := Process{Name: "slow", Binary: slow, Dir: t.TempDir(), logger: zap.NewNop()}

	start := time.Now()
	err := p.Run(context.Background(), 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestProcessWithoutTimeout(t *testing.T) {
	slow, _ := writeMvn(t, "sleep 0.3")
	p := Process{Name: "slow", Binary: slow, Dir: t.TempDir(), logger: zap.NewNop()}
	require.NoError(t, p.Run(context.Background(), 0))
}

func TestDeadline(t *testing.T) {
	r, _ := newTestRunner(t, "mvn", testPlan(t.TempDir()))
	msg := types.TrialMessage{Mode: types.ModeFuzz, Duration: time.Hour}
	assert.Equal(t, time.Hour+time.Minute, r.deadline(msg))

	for _, mode := range []types.Mode{types.ModeAnalyze, types.ModeAnalyzeTrial} {
		msg.Mode = mode
		assert.Zero(t, r.deadline(msg), mode)
	}

	r.config.GracePeriod = 0
	msg.Mode = types.ModeFuzz
	assert.Zero(t, r.deadline(msg))
}

func TestRunTrialAnalyzeOutlivesCampaignDuration(t *testing.T) {
	// replaying a corpus may take longer than the campaign that built it
	mvn, _ := writeMvn(t, "sleep 0.5")
	r, status := newTestRunner(t, mvn, testPlan(t.TempDir()))
	r.config.GracePeriod = 10 * time.Millisecond

	msg := types.TrialMessage{
		Trial:     types.Trial{Benchmark: "rhino", Technique: "zest"},
		Mode:      types.ModeAnalyze,
		OutputDir: t.TempDir(),
		Duration:  10 * time.Millisecond,
	}
	require.NoError(t, r.RunTrial(context.Background(), msg))
	st, _ := status.Get(context.Background(), msg.Trial.ID())
	assert.Equal(t, StatusDone, st)
}

func TestProcessKilledOnCancel(t *testing.T) {
	stubborn, _ := writeMvn(t, "trap '' INT\nsleep 5")
	p := Process{Name: "stubborn", Binary: stubborn, Dir: t.TempDir(), logger: zap.NewNop()}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := p.Run(ctx, 100*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunLocalAndResume(t *testing.T) {
	mvn, log := writeMvn(t, "exit 0")
	out := filepath.Join(t.TempDir(), "raw")
	r, status := newTestRunner(t, mvn, testPlan(out))

	require.NoError(t, r.Run(context.Background(), Options{Workers: 2, Fresh: true}))
	calls := invocations(t, log)
	require.Len(t, calls, 4)
	for _, id := range []string{"rhino-zest-results-0", "rhino-zest-results-1", "gson-zest-results-0", "gson-zest-results-1"} {
		st, _ := status.Get(context.Background(), id)
		assert.Equal(t, StatusDone, st, id)
		assert.Contains(t, strings.Join(calls, "\n"), "-Dmeringue.outputDirectory="+filepath.Join(out, id))
	}

	// a resumed run skips finished trials
	require.NoError(t, status.Set(context.Background(), "gson-zest-results-1", StatusFailed))
	require.NoError(t, r.Run(context.Background(), Options{Workers: 2}))
	calls = invocations(t, log)
	require.Len(t, calls, 5)
	assert.Contains(t, calls[4], "gson-zest-results-1")
}

func TestRunLocalReportsFailures(t *testing.T) {
	mvn, _ := writeMvn(t, "exit 1")
	r, status := newTestRunner(t, mvn, testPlan(filepath.Join(t.TempDir(), "raw")))

	err := r.Run(context.Background(), Options{Fresh: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rhino-zest-results-0")
	st, _ := status.Get(context.Background(), "gson-zest-results-1")
	assert.Equal(t, StatusFailed, st)
}

func TestRunTrialAnalyzeTrialSwapsCorpus(t *testing.T) {
	out := t.TempDir()
	msg := types.TrialMessage{
		Trial:     types.Trial{Benchmark: "rhino", Technique: "zest", Repetition: 0},
		Mode:      types.ModeAnalyzeTrial,
		OutputDir: out,
		Duration:  time.Minute,
	}
	dir := TrialDir(msg)
	writeMarker(t, filepath.Join(dir, campaign.CorpusDir), "full")
	writeMarker(t, filepath.Join(dir, campaign.ControlledDir), "controlled")

	// fails unless the controlled corpus is in place while analyzing
	mvn, log := writeMvn(t, fmt.Sprintf("test -f %s || exit 1", filepath.Join(dir, campaign.CorpusDir, "controlled")))
	r, _ := newTestRunner(t, mvn, testPlan(out))

	require.NoError(t, r.RunTrial(context.Background(), msg))
	assert.Equal(t, []string{strings.Join(Args(msg), " ")}, invocations(t, log))
	assert.FileExists(t, filepath.Join(dir, campaign.CorpusDir, "full"))
	assert.FileExists(t, filepath.Join(dir, campaign.ControlledDir, "controlled"))
}

func TestFailureMonitor(t *testing.T) {
	logger := zap.NewNop()
	m := newFailureMonitor(logger, watchdog.NewWatchDogFactory(logger))
	m.Start()

	trial := types.Trial{Benchmark: "rhino", Technique: "zest"}
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Watch(ctx, trial, dir))

	failures := filepath.Join(dir, campaign.CampaignFailureDir)
	require.NoError(t, os.WriteFile(filepath.Join(failures, "id_000000.dat"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(failures, "failures.json"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(failures, "id_000001.dat"), nil, 0644))

	assert.Eventually(t, func() bool { return m.Failures(trial.ID()) == 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	m.Stop()
	assert.Equal(t, 2, m.Failures(trial.ID()))
	assert.Zero(t, m.Failures("other"))
}

func TestFailureMonitorJQFNames(t *testing.T) {
	logger := zap.NewNop()
	m := newFailureMonitor(logger, watchdog.NewWatchDogFactory(logger))
	m.Start()

	trial := types.Trial{Benchmark: "gson", Technique: "ei"}
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Watch(ctx, trial, dir))

	failures := filepath.Join(dir, campaign.CampaignFailureDir)
	require.NoError(t, os.WriteFile(filepath.Join(failures, "id_000000"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(failures, ".id_000001.swp"), nil, 0644))

	assert.Eventually(t, func() bool { return m.Failures(trial.ID()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	m.Stop()
	assert.Equal(t, 1, m.Failures(trial.ID()))
}

func TestIsFailureInput(t *testing.T) {
	for name, want := range map[string]bool{
		"id_000012.dat":     true,
		"id_000012":         true,
		"failures.json":     false,
		"id_000012.dat.tmp": false,
		"id_.dat":           false,
		"id_":               false,
		"id_x.tmp":          false,
		"crash_000012":      false,
	} {
		assert.Equal(t, want, isFailureInput(filepath.Join("/x/campaign/failures", name)), name)
	}
}

func TestDispatch(t *testing.T) {
	r, status := newTestRunner(t, "mvn", testPlan(t.TempDir()))
	require.ErrorIs(t, r.Run(context.Background(), Options{Dispatch: true}), ErrNoBroker)

	broker := &fakeBroker{}
	r.rabbitMQ = broker
	require.NoError(t, r.Run(context.Background(), Options{Dispatch: true, Mode: types.ModeAnalyze}))

	bodies := broker.published[TrialQueue]
	require.Len(t, bodies, 4)
	var msg types.TrialMessage
	require.NoError(t, json.Unmarshal(bodies[0], &msg))
	assert.Equal(t, "rhino-zest-results-0", msg.Trial.ID())
	assert.Equal(t, types.ModeAnalyze, msg.Mode)
	assert.Equal(t, time.Minute, msg.Duration)

	st, _ := status.Get(context.Background(), "gson-zest-results-1")
	assert.Equal(t, StatusQueued, st)
}

func TestOnMessageRequeuesUntilLimit(t *testing.T) {
	mvn, log := writeMvn(t, "exit 1")
	r, status := newTestRunner(t, mvn, testPlan(t.TempDir()))

	body, err := json.Marshal(r.Trials(Options{Mode: types.ModeAnalyze})[0])
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	for range retryLimit {
		require.NoError(t, r.onMessage(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}))
	}
	assert.Equal(t, []bool{true, true, false}, ack.requeue)
	assert.Zero(t, ack.acks)
	assert.Len(t, invocations(t, log), retryLimit)
	st, _ := status.Get(context.Background(), "rhino-zest-results-0")
	assert.Equal(t, StatusFailed, st)
}

func TestOnMessageAcksSuccess(t *testing.T) {
	mvn, _ := writeMvn(t, "exit 0")
	r, _ := newTestRunner(t, mvn, testPlan(t.TempDir()))
	body, err := json.Marshal(r.Trials(Options{Mode: types.ModeAnalyze})[1])
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	require.NoError(t, r.onMessage(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}))
	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, ack.requeue)

	require.NoError(t, r.onMessage(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{")}))
	assert.Equal(t, []bool{false}, ack.requeue)
}

func TestNopStatusStore(t *testing.T) {
	s := NewStatusStore(nil, "run")
	require.NoError(t, s.Set(context.Background(), "x", StatusDone))
	st, err := s.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, st)
}
