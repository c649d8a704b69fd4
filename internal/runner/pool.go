package runner

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/mbaxter/stampede/internal/behavior"
)

// StopMode selects how a stop signal treats in-flight requests.
type StopMode string

const (
	// StopModeGraceful lets the current task finish, skips the wait, then
	// stops the user.
	StopModeGraceful StopMode = "graceful"
	// StopModeImmediate aborts the in-flight call; its outcome is recorded
	// as cancelled, never as a failure.
	StopModeImmediate StopMode = "immediate"
)

// maxConsecutiveStartFailures aborts a ramp whose users repeatedly fail
// their onStart hook.
const maxConsecutiveStartFailures = 3

// PartialRampError reports a pool that could not reach its target
// population. Users already running keep running; the run is not aborted.
type PartialRampError struct {
	Profile string
	Started int
	Target  int
	Err     error
}

func (e *PartialRampError) Error() string {
	return fmt.Sprintf("profile %s: ramp reached %d of %d users: %v", e.Profile, e.Started, e.Target, e.Err)
}

func (e *PartialRampError) Unwrap() error { return e.Err }

// Options configure a user pool.
type Options struct {
	Profile     behavior.Profile
	Users       int           // target population
	SpawnRate   float64       // users started per second (0 means all at once is NOT allowed; normalized to 1)
	TagFilter   []string      // restrict task selection by tag
	StopMode    StopMode      // graceful (default) or immediate
	GracePeriod time.Duration // graceful drain bound before force-termination
	MaxIters    int           // per-user iteration cap (0 means unlimited)
	Seed        int64         // root seed for per-user generators (0 means time-based)

	Executor Executor      // required
	Recorder Recorder      // required
	Logger   FailureLogger // optional

	LimiterFactory func(perSecond float64) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Users < 0 {
		o.Users = 0
	}
	if o.SpawnRate <= 0 {
		o.SpawnRate = 1
	}
	if o.StopMode == "" {
		o.StopMode = StopModeGraceful
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 5 * time.Second
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(perSecond float64) *rate.Limiter {
			// Burst of one: users are spawned strictly incrementally,
			// never as a batch.
			return rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// Pool spawns and tears down the virtual-user population for one profile.
// Multiple pools compose in a run without cross-profile interference; each
// owns only its users.
type Pool struct {
	opt Options

	mu         sync.Mutex
	softCancel context.CancelFunc
	hardCancel context.CancelFunc

	wg      sync.WaitGroup
	running atomic.Int64
	started atomic.Int64
	stopped atomic.Bool
}

// NewPool validates the profile and creates an idle pool.
func NewPool(opt Options) (*Pool, error) {
	opt.normalize()
	if opt.Executor == nil {
		return nil, fmt.Errorf("profile %s: executor is required", opt.Profile.Name)
	}
	if opt.Recorder == nil {
		return nil, fmt.Errorf("profile %s: recorder is required", opt.Profile.Name)
	}
	if err := opt.Profile.Validate(); err != nil {
		return nil, err
	}
	// Surface an empty eligible set at configuration time, not mid-run.
	probe := rand.New(rand.NewSource(opt.Seed))
	if _, err := behavior.NewSelector(opt.Profile, opt.TagFilter, probe); err != nil {
		return nil, err
	}
	return &Pool{opt: opt}, nil
}

// Target returns the configured population target.
func (p *Pool) Target() int { return p.opt.Users }

// Running returns how many users are currently in their run loop.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Started returns how many users have been spawned so far.
func (p *Pool) Started() int { return int(p.started.Load()) }

// Ramp spawns users incrementally at the configured spawn rate until the
// target population is reached, ctx is cancelled, or onStart fails
// repeatedly. It returns once ramping is complete; spawned users keep
// running until Stop.
func (p *Pool) Ramp(ctx context.Context) error {
	// The hard context must not inherit the caller's cancellation: under
	// graceful stop an in-flight request survives parent cancel and is
	// bounded only by the grace period in Stop. The soft context stays
	// parented to ctx so run loops still wind down with the caller.
	hardCtx, hardCancel := context.WithCancel(context.WithoutCancel(ctx))
	softCtx, softCancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.softCancel = softCancel
	p.hardCancel = hardCancel
	p.mu.Unlock()

	limiter := p.opt.LimiterFactory(p.opt.SpawnRate)
	seeds := rand.New(rand.NewSource(p.opt.Seed))

	consecutive := 0
	var lastErr error
	for i := 0; i < p.opt.Users; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil // stopped mid-ramp
		}
		if p.stopped.Load() {
			return nil
		}

		user, err := p.newUser(seeds)
		if err != nil {
			return err // selector/profile errors are configuration errors
		}

		startErr := make(chan error, 1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := user.Start(softCtx); err != nil {
				startErr <- err
				return
			}
			startErr <- nil
			p.running.Add(1)
			defer p.running.Add(-1)
			user.Loop(softCtx, hardCtx)
		}()

		if err := <-startErr; err != nil {
			consecutive++
			lastErr = err
			if consecutive >= maxConsecutiveStartFailures {
				return &PartialRampError{
					Profile: p.opt.Profile.Name,
					Started: int(p.started.Load()),
					Target:  p.opt.Users,
					Err:     lastErr,
				}
			}
			continue
		}
		consecutive = 0
		p.started.Add(1)
	}
	return nil
}

func (p *Pool) newUser(seeds *rand.Rand) (*VirtualUser, error) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(seeds, 0)).String()
	user, err := NewVirtualUser(id, p.opt.Profile, p.opt.TagFilter, seeds.Int63(), p.opt.Executor, p.opt.Recorder)
	if err != nil {
		return nil, err
	}
	user.SetStopMode(p.opt.StopMode)
	user.SetFailureLogger(p.opt.Logger)
	user.SetMaxIterations(p.opt.MaxIters)
	return user, nil
}

// Stop signals every owned user to stop and blocks until all reach Stopped.
// After the grace period any user still draining has its in-flight request
// cancelled; the count of such force-terminated users is returned.
func (p *Pool) Stop() int {
	if !p.stopped.CompareAndSwap(false, true) {
		return 0
	}
	p.mu.Lock()
	softCancel := p.softCancel
	hardCancel := p.hardCancel
	p.mu.Unlock()
	if softCancel == nil {
		return 0 // never ramped
	}

	softCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var forced int
	select {
	case <-done:
	case <-time.After(p.opt.GracePeriod):
		forced = int(p.running.Load())
		hardCancel()
		<-done
	}
	hardCancel()
	return forced
}
