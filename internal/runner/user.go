package runner

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/mbaxter/stampede/internal/behavior"
)

// Executor issues one request described by a task and returns the outcome.
// Implementations must honor the per-call timeout and must not retry.
type Executor interface {
	Execute(ctx context.Context, category string, spec behavior.RequestSpec, timeout time.Duration) behavior.Outcome
}

// Recorder receives every produced outcome exactly once.
type Recorder interface {
	Record(o behavior.Outcome, verdict behavior.Verdict, reason string)
}

// FailureLogger logs failed requests.
type FailureLogger interface {
	LogFailure(err error)
}

// UserState tracks a virtual user's lifecycle.
type UserState int32

const (
	UserStarting UserState = iota
	UserRunning
	UserStopping
	UserStopped
)

func (s UserState) String() string {
	switch s {
	case UserStarting:
		return "starting"
	case UserRunning:
		return "running"
	case UserStopping:
		return "stopping"
	case UserStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// VirtualUser owns one simulated client: a private session, an independently
// seeded selector and wait source, and a strictly sequential run loop
// (select, execute, classify, record, wait). Nothing else ever touches its
// session state.
type VirtualUser struct {
	id       string
	profile  behavior.Profile
	session  *behavior.Session
	selector *behavior.Selector
	rnd      *rand.Rand

	exec     Executor
	rec      Recorder
	logger   FailureLogger
	stopMode StopMode
	maxIters int

	state atomic.Int32
}

// NewVirtualUser builds a user for the given profile. The seed derives the
// user's private random sources; filter restricts task selection by tag.
func NewVirtualUser(id string, profile behavior.Profile, filter []string, seed int64, exec Executor, rec Recorder) (*VirtualUser, error) {
	selectorRnd := rand.New(rand.NewSource(seed))
	selector, err := behavior.NewSelector(profile, filter, selectorRnd)
	if err != nil {
		return nil, err
	}
	return &VirtualUser{
		id:       id,
		profile:  profile,
		session:  behavior.NewSession(id, seed+1),
		selector: selector,
		rnd:      rand.New(rand.NewSource(seed + 2)),
		exec:     exec,
		rec:      rec,
		stopMode: StopModeGraceful,
	}, nil
}

// ID returns the user's unique identifier.
func (u *VirtualUser) ID() string { return u.id }

// State returns the user's current lifecycle state.
func (u *VirtualUser) State() UserState {
	return UserState(u.state.Load())
}

func (u *VirtualUser) setState(s UserState) {
	u.state.Store(int32(s))
}

// SetStopMode selects how a stop signal treats the in-flight request.
func (u *VirtualUser) SetStopMode(mode StopMode) { u.stopMode = mode }

// SetFailureLogger attaches a logger invoked for each failure verdict.
func (u *VirtualUser) SetFailureLogger(l FailureLogger) { u.logger = l }

// SetMaxIterations caps the number of task executions (0 means unlimited).
func (u *VirtualUser) SetMaxIterations(n int) { u.maxIters = n }

// Start runs the profile's onStart hook. On failure the user transitions
// straight to Stopped and never enters the run loop.
func (u *VirtualUser) Start(ctx context.Context) error {
	u.setState(UserStarting)
	if u.profile.OnStart != nil {
		if err := u.profile.OnStart(ctx, u.session); err != nil {
			u.setState(UserStopped)
			return fmt.Errorf("user %s start: %w", u.id, err)
		}
	}
	u.setState(UserRunning)
	return nil
}

// Loop executes tasks until soft is cancelled or the iteration cap is hit.
// Under graceful stop the in-flight request is detached from soft and bound
// to hard, which the pool cancels only when the grace period expires; under
// immediate stop the request aborts with soft and is recorded as cancelled.
func (u *VirtualUser) Loop(soft, hard context.Context) {
	defer u.setState(UserStopped)

	iterations := 0
	for soft.Err() == nil {
		task := u.selector.Pick()

		spec, err := task.Build(u.session)
		if err != nil {
			u.recordBuildFailure(task.Name, err)
		} else {
			reqCtx := soft
			if u.stopMode == StopModeGraceful {
				reqCtx = hard
			}
			outcome := u.exec.Execute(reqCtx, task.Name, spec, task.Timeout)
			u.record(task, outcome)
			if outcome.Cancelled {
				break
			}
		}

		iterations++
		if u.maxIters > 0 && iterations >= u.maxIters {
			break
		}
		if soft.Err() != nil {
			// Stop arrived mid-task: finish it, skip the wait.
			break
		}
		if !u.wait(soft) {
			break
		}
	}

	u.setState(UserStopping)
	if u.profile.OnStop != nil {
		u.profile.OnStop(u.session)
	}
}

func (u *VirtualUser) record(task behavior.Task, outcome behavior.Outcome) {
	if outcome.Cancelled {
		// Verdict is ignored for cancelled outcomes; they count toward
		// totals only.
		u.rec.Record(outcome, behavior.VerdictSuccess, "")
		return
	}
	verdict, reason := behavior.Classify(outcome, task.Policy)
	if verdict == behavior.VerdictSuccess && !task.Check.Passes(outcome.Body) {
		verdict, reason = behavior.VerdictFailure, "check failed"
	}
	u.rec.Record(outcome, verdict, reason)
	if verdict.IsFailure() && u.logger != nil {
		u.logger.LogFailure(fmt.Errorf("%s: %s", task.Name, reason))
	}
}

func (u *VirtualUser) recordBuildFailure(category string, err error) {
	outcome := behavior.Outcome{
		Category:  category,
		Timestamp: time.Now(),
	}
	reason := fmt.Sprintf("request build error: %v", err)
	u.rec.Record(outcome, behavior.VerdictFailure, reason)
	if u.logger != nil {
		u.logger.LogFailure(fmt.Errorf("%s: %s", category, reason))
	}
}

// wait sleeps for a uniformly drawn duration from the profile's wait range.
// Returns false when the stop signal interrupted the wait.
func (u *VirtualUser) wait(ctx context.Context) bool {
	delay := u.profile.Wait.Next(u.rnd)
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
