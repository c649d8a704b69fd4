package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mbaxter/stampede/internal/behavior"
	"github.com/mbaxter/stampede/internal/metrics"
	"github.com/mbaxter/stampede/internal/runner"
)

type okExecutor struct {
	mu    sync.Mutex
	calls int
}

func (f *okExecutor) Execute(ctx context.Context, category string, spec behavior.RequestSpec, timeout time.Duration) behavior.Outcome {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return behavior.Outcome{Category: category, StatusCode: 200, Latency: time.Millisecond, Timestamp: time.Now()}
}

func testProfile(name string) behavior.Profile {
	return behavior.Profile{
		Name: name,
		Tasks: []behavior.Task{
			{
				Name:   name + "_task",
				Weight: 1,
				Build: func(*behavior.Session) (behavior.RequestSpec, error) {
					return behavior.RequestSpec{Method: "GET", Path: "/" + name}, nil
				},
			},
		},
	}
}

type captureListener struct {
	mu        sync.Mutex
	startHost string
	startAt   time.Time
	stopped   bool
	final     metrics.Snapshot
}

func (l *captureListener) TestStart(host string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startHost = host
	l.startAt = at
}

func (l *captureListener) TestStop(final metrics.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	l.final = final
}

func newTestOrchestrator(t *testing.T, opt Options) *Orchestrator {
	t.Helper()
	if opt.Executor == nil {
		opt.Executor = &okExecutor{}
	}
	if opt.Aggregator == nil {
		opt.Aggregator = metrics.NewAggregator()
	}
	if opt.TargetHost == "" {
		opt.TargetHost = "http://example.com"
	}
	orch, err := New(opt)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return orch
}

func TestOrchestratorLifecyclePhases(t *testing.T) {
	orch := newTestOrchestrator(t, Options{Seed: 1})
	if got := orch.State().Phase(); got != PhaseIdle {
		t.Fatalf("initial phase = %v, want idle", got)
	}

	err := orch.Start(context.Background(), []PoolSpec{
		{Profile: testProfile("a"), Users: 2, SpawnRate: 1000},
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if got := orch.State().Phase(); got != PhaseRunning {
		t.Errorf("phase after ramp = %v, want running", got)
	}

	snap := orch.Stop()
	if got := orch.State().Phase(); got != PhaseStopped {
		t.Errorf("phase after stop = %v, want stopped", got)
	}
	if snap.Total.Count == 0 {
		t.Error("expected some requests recorded")
	}
	if snap.Total.Failures != 0 {
		t.Errorf("failures = %d, want 0", snap.Total.Failures)
	}
}

func TestOrchestratorImmediateStopIsCleanZeroRun(t *testing.T) {
	agg := metrics.NewAggregator()
	// Seed stale state; a new run must reset it.
	agg.Record(behavior.Outcome{Category: "stale", StatusCode: 200}, behavior.VerdictSuccess, "")

	orch := newTestOrchestrator(t, Options{Aggregator: agg, Seed: 1, MaxIters: 1})
	err := orch.Start(context.Background(), []PoolSpec{
		{Profile: testProfile("a"), Users: 0, SpawnRate: 1000},
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	snap := orch.Stop()
	if snap.Total.Count != 0 {
		t.Errorf("zero-user run recorded %d requests, want 0 (including reset of stale state)", snap.Total.Count)
	}
}

func TestOrchestratorListeners(t *testing.T) {
	listener := &captureListener{}
	orch := newTestOrchestrator(t, Options{Seed: 1})
	orch.AddListener(listener)

	err := orch.Start(context.Background(), []PoolSpec{
		{Profile: testProfile("a"), Users: 1, SpawnRate: 1000},
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	listener.mu.Lock()
	if listener.startHost != "http://example.com" {
		t.Errorf("start host = %q", listener.startHost)
	}
	if listener.startAt.IsZero() {
		t.Error("start timestamp not set")
	}
	if listener.stopped {
		t.Error("stop event fired before Stop")
	}
	listener.mu.Unlock()

	snap := orch.Stop()

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if !listener.stopped {
		t.Fatal("stop event not delivered")
	}
	if listener.final.Total.Count != snap.Total.Count {
		t.Errorf("listener snapshot count = %d, want %d", listener.final.Total.Count, snap.Total.Count)
	}
}

func TestOrchestratorDurationCap(t *testing.T) {
	orch := newTestOrchestrator(t, Options{Seed: 1, Duration: 150 * time.Millisecond})
	err := orch.Start(context.Background(), []PoolSpec{
		{Profile: testProfile("a"), Users: 1, SpawnRate: 1000},
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case <-orch.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop at the duration cap")
	}
	if got := orch.State().Phase(); got != PhaseStopped {
		t.Errorf("phase = %v, want stopped", got)
	}
}

func TestOrchestratorMultiplePools(t *testing.T) {
	agg := metrics.NewAggregator()
	orch := newTestOrchestrator(t, Options{Aggregator: agg, Seed: 1})
	err := orch.Start(context.Background(), []PoolSpec{
		{Profile: testProfile("a"), Users: 2, SpawnRate: 1000},
		{Profile: testProfile("b"), Users: 3, SpawnRate: 1000},
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if got := orch.State().TotalUsersTarget; got != 5 {
		t.Errorf("total target = %d, want 5", got)
	}
	time.Sleep(100 * time.Millisecond)
	snap := orch.Stop()
	if _, ok := snap.Categories["a_task"]; !ok {
		t.Error("no outcomes recorded for profile a")
	}
	if _, ok := snap.Categories["b_task"]; !ok {
		t.Error("no outcomes recorded for profile b")
	}
}

func TestOrchestratorPartialRampKeepsRunning(t *testing.T) {
	fails := 0
	profile := testProfile("flaky")
	profile.OnStart = func(context.Context, *behavior.Session) error {
		fails++
		return errors.New("auth down")
	}
	exec := &okExecutor{}
	orch := newTestOrchestrator(t, Options{Executor: exec, Seed: 1})
	err := orch.Start(context.Background(), []PoolSpec{
		{Profile: profile, Users: 5, SpawnRate: 1000},
		{Profile: testProfile("ok"), Users: 1, SpawnRate: 1000},
	})

	var partial *runner.PartialRampError
	if !errors.As(err, &partial) {
		t.Fatalf("Start error = %v, want PartialRampError", err)
	}
	// The healthy pool keeps running despite the flaky one.
	time.Sleep(100 * time.Millisecond)
	snap := orch.Stop()
	if _, ok := snap.Categories["ok_task"]; !ok {
		t.Error("healthy pool produced no outcomes after partial ramp")
	}
}

func TestOrchestratorCannotStartTwice(t *testing.T) {
	orch := newTestOrchestrator(t, Options{Seed: 1})
	specs := []PoolSpec{{Profile: testProfile("a"), Users: 1, SpawnRate: 1000}}
	if err := orch.Start(context.Background(), specs); err != nil {
		t.Fatalf("first Start returned error: %v", err)
	}
	if err := orch.Start(context.Background(), specs); err == nil {
		t.Error("second Start must fail")
	}
	orch.Stop()
}

func TestOrchestratorStopIdempotent(t *testing.T) {
	orch := newTestOrchestrator(t, Options{Seed: 1})
	if err := orch.Start(context.Background(), []PoolSpec{{Profile: testProfile("a"), Users: 1, SpawnRate: 1000}}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	first := orch.Stop()
	second := orch.Stop()
	if first.Total.Count != second.Total.Count {
		t.Errorf("repeated Stop snapshots differ: %d vs %d", first.Total.Count, second.Total.Count)
	}
}
