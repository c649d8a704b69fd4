package orchestrator

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Phase is the lifecycle stage of a run.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRamping
	PhaseRunning
	PhaseStopping
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRamping:
		return "ramping"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// RunState is the single shared mutable view of one test execution. It is
// owned by the Orchestrator and passed by reference; there is no process-wide
// singleton. Phase transitions are atomic and observed consistently by all
// pools.
type RunState struct {
	phase atomic.Int32

	TargetHost       string
	TotalUsersTarget int

	startedAt atomic.Int64 // unix nanos, 0 until the run starts

	currentUsers func() int
}

// NewRunState creates an idle run state for the given target.
func NewRunState(targetHost string, totalUsers int) *RunState {
	return &RunState{
		TargetHost:       targetHost,
		TotalUsersTarget: totalUsers,
	}
}

// Phase returns the current lifecycle phase.
func (s *RunState) Phase() Phase {
	return Phase(s.phase.Load())
}

// transition moves from exactly one phase to another; it reports whether the
// swap happened.
func (s *RunState) transition(from, to Phase) bool {
	return s.phase.CompareAndSwap(int32(from), int32(to))
}

// StartedAt returns when the run began, or the zero time before it did.
func (s *RunState) StartedAt() time.Time {
	ns := s.startedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (s *RunState) markStarted(t time.Time) {
	s.startedAt.Store(t.UnixNano())
}

// CurrentUserCount returns the number of virtual users currently running.
func (s *RunState) CurrentUserCount() int {
	if s.currentUsers == nil {
		return 0
	}
	return s.currentUsers()
}
