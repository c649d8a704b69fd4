// Package runner provides the virtual-user execution engine for stampede.
//
// A [VirtualUser] owns one simulated client: it repeatedly selects a weighted
// task from its behavior profile, executes the request, classifies the
// outcome, records it, and waits a randomized interval. A [Pool] ramps a
// population of users toward a target at a bounded spawn rate and tears them
// down on stop.
//
// # Virtual user lifecycle
//
// Starting → Running → Stopping → Stopped. An onStart failure moves the user
// straight to Stopped. Within one user the loop is strictly sequential; its
// session state is never touched by another goroutine.
//
// # Stop modes
//
//   - [StopModeGraceful] (default): the in-flight request finishes, the wait
//     is skipped, then the user stops. A pool-level grace period bounds the
//     drain; stragglers have their request cancelled and recorded as
//     cancelled.
//   - [StopModeImmediate]: the stop signal aborts the in-flight call; the
//     cancelled outcome never counts as a failure.
//
// # Ramping
//
// Pool.Ramp starts one user per 1/spawnRate seconds via a rate limiter,
// never batch-launching the population. Repeated onStart failures abort the
// remainder of the ramp with a [PartialRampError]; users already running
// keep running.
//
// # Middleware
//
// [WithRetry] wraps an [Executor] with retry-and-backoff as a task-level
// policy; the executor itself never retries.
package runner
