package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mbaxter/stampede/internal/behavior"
	"github.com/mbaxter/stampede/internal/metrics"
	"github.com/mbaxter/stampede/internal/runner"
)

// Listener observes run lifecycle events. Both callbacks are delivered
// synchronously: TestStart before any user is spawned, TestStop after the
// final statistics snapshot is taken but before Stop returns.
type Listener interface {
	TestStart(host string, at time.Time)
	TestStop(final metrics.Snapshot)
}

// ListenerFuncs adapts plain functions to the Listener interface. Either
// field may be nil.
type ListenerFuncs struct {
	OnTestStart func(host string, at time.Time)
	OnTestStop  func(final metrics.Snapshot)
}

func (l ListenerFuncs) TestStart(host string, at time.Time) {
	if l.OnTestStart != nil {
		l.OnTestStart(host, at)
	}
}

func (l ListenerFuncs) TestStop(final metrics.Snapshot) {
	if l.OnTestStop != nil {
		l.OnTestStop(final)
	}
}

// PoolSpec binds one behavior profile to its share of the population.
type PoolSpec struct {
	Profile   behavior.Profile
	Users     int
	SpawnRate float64
}

// Options configure an Orchestrator.
type Options struct {
	TargetHost string // informational, passed to TestStart listeners

	Executor   runner.Executor     // required
	Aggregator *metrics.Aggregator // required

	TagFilter   []string
	StopMode    runner.StopMode
	GracePeriod time.Duration
	Duration    time.Duration // optional wall-clock cap; 0 means run until stopped
	MaxIters    int
	Seed        int64

	Logger runner.FailureLogger
}

// Orchestrator coordinates one complete test execution: it validates the
// configured profiles, fires lifecycle events, ramps the per-profile pools
// concurrently, enforces the optional duration cap, and drains everything on
// stop. It owns the run's [RunState]; pools never talk to each other.
type Orchestrator struct {
	opt   Options
	state *RunState

	mu        sync.Mutex
	listeners []Listener
	pools     []*runner.Pool
	stopTimer *time.Timer

	stopOnce sync.Once
	done     chan struct{}
	final    metrics.Snapshot
	forced   int
}

// New creates an idle orchestrator.
func New(opt Options) (*Orchestrator, error) {
	if opt.Executor == nil {
		return nil, errors.New("orchestrator: executor is required")
	}
	if opt.Aggregator == nil {
		return nil, errors.New("orchestrator: aggregator is required")
	}
	return &Orchestrator{
		opt:   opt,
		state: NewRunState(opt.TargetHost, 0),
		done:  make(chan struct{}),
	}, nil
}

// Done is closed once the run has fully stopped, whether by Stop or by the
// duration cap.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// State returns the run state owned by this orchestrator.
func (o *Orchestrator) State() *RunState { return o.state }

// AddListener registers a lifecycle listener. Must be called before Start.
func (o *Orchestrator) AddListener(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// Start validates every profile, resets the aggregator, fires test-start,
// and ramps all pools concurrently. It returns once every ramp has finished.
// A pool that could not reach its target reports a [runner.PartialRampError];
// the joined errors are returned but users already running keep running and
// the run continues.
func (o *Orchestrator) Start(ctx context.Context, specs []PoolSpec) error {
	if len(specs) == 0 {
		return errors.New("orchestrator: no profiles configured")
	}
	if !o.state.transition(PhaseIdle, PhaseRamping) {
		return fmt.Errorf("orchestrator: cannot start from phase %s", o.state.Phase())
	}

	total := 0
	pools := make([]*runner.Pool, 0, len(specs))
	for _, spec := range specs {
		pool, err := runner.NewPool(runner.Options{
			Profile:     spec.Profile,
			Users:       spec.Users,
			SpawnRate:   spec.SpawnRate,
			TagFilter:   o.opt.TagFilter,
			StopMode:    o.opt.StopMode,
			GracePeriod: o.opt.GracePeriod,
			MaxIters:    o.opt.MaxIters,
			Seed:        o.seedFor(spec.Profile.Name),
			Executor:    o.opt.Executor,
			Recorder:    o.opt.Aggregator,
			Logger:      o.opt.Logger,
		})
		if err != nil {
			o.state.transition(PhaseRamping, PhaseStopped)
			return err
		}
		pools = append(pools, pool)
		total += spec.Users
	}

	o.mu.Lock()
	o.pools = pools
	listeners := append([]Listener(nil), o.listeners...)
	o.mu.Unlock()

	o.state.TotalUsersTarget = total
	o.state.currentUsers = func() int {
		n := 0
		for _, p := range pools {
			n += p.Running()
		}
		return n
	}

	o.opt.Aggregator.Reset()
	o.opt.Aggregator.Start()
	startedAt := time.Now()
	o.state.markStarted(startedAt)
	for _, l := range listeners {
		l.TestStart(o.opt.TargetHost, startedAt)
	}

	if o.opt.Duration > 0 {
		o.mu.Lock()
		o.stopTimer = time.AfterFunc(o.opt.Duration, func() { o.Stop() })
		o.mu.Unlock()
	}

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, pool := range pools {
		wg.Add(1)
		go func(p *runner.Pool) {
			defer wg.Done()
			if err := p.Ramp(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}(pool)
	}
	wg.Wait()

	o.state.transition(PhaseRamping, PhaseRunning)
	return errors.Join(errs...)
}

// Stop drains every pool, takes the final snapshot, fires test-stop, and
// returns the snapshot. Safe to call more than once and from the duration
// timer; later calls return the snapshot taken by the first.
func (o *Orchestrator) Stop() metrics.Snapshot {
	o.stopOnce.Do(func() {
		// Whichever phase the run is in, it is now stopping.
		if !o.state.transition(PhaseRamping, PhaseStopping) {
			o.state.transition(PhaseRunning, PhaseStopping)
		}

		o.mu.Lock()
		if o.stopTimer != nil {
			o.stopTimer.Stop()
		}
		pools := o.pools
		listeners := append([]Listener(nil), o.listeners...)
		startedAt := o.state.StartedAt()
		o.mu.Unlock()

		forced := 0
		for _, p := range pools {
			forced += p.Stop()
		}
		o.mu.Lock()
		o.forced = forced
		o.mu.Unlock()

		elapsed := time.Duration(0)
		if !startedAt.IsZero() {
			elapsed = time.Since(startedAt)
		}
		o.final = o.opt.Aggregator.Snapshot(elapsed)
		o.state.transition(PhaseStopping, PhaseStopped)

		for _, l := range listeners {
			l.TestStop(o.final)
		}
		close(o.done)
	})
	return o.final
}

// ForceTerminated returns how many users were cancelled after the grace
// period expired during Stop.
func (o *Orchestrator) ForceTerminated() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.forced
}

// seedFor derives a stable per-profile seed from the root seed so that two
// pools never share random streams.
func (o *Orchestrator) seedFor(name string) int64 {
	if o.opt.Seed == 0 {
		return 0 // each pool picks a time-based seed
	}
	var h int64 = 1469598103934665603
	for _, c := range name {
		h ^= int64(c)
		h *= 1099511628211
	}
	return o.opt.Seed ^ h
}
