// Package behavior defines behavior profiles: named sets of weighted tasks a
// virtual user executes against a target, plus the wait-time bounds, lifecycle
// hooks, and classification policies attached to them.
package behavior

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// RequestSpec describes a single HTTP request a task wants issued. Path is
// resolved against the run's target base URL; an absolute URL overrides it.
type RequestSpec struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Message is one entry in a session's conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the mutable per-user state a task may read and update while
// building requests. Exactly one virtual user owns a Session; tasks must not
// retain it beyond the call.
type Session struct {
	ID         string
	Transcript []Message
	Values     map[string]interface{}

	rnd *rand.Rand
}

// NewSession creates a session with the given id and an independently seeded
// random source for payload selection.
func NewSession(id string, seed int64) *Session {
	return &Session{
		ID:     id,
		Values: map[string]interface{}{},
		rnd:    rand.New(rand.NewSource(seed)),
	}
}

// Rand returns the session's private random source. Safe only from the owning
// virtual user's goroutine.
func (s *Session) Rand() *rand.Rand {
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s.rnd
}

// Append adds a message to the conversation transcript.
func (s *Session) Append(role, content string) {
	s.Transcript = append(s.Transcript, Message{Role: role, Content: content})
}

// Task is a unit of work a virtual user may perform: build a request from the
// current session state, send it, classify the outcome under the task's policy.
type Task struct {
	Name    string        // statistics category
	Weight  int           // relative selection weight, must be >= 1
	Tags    []string      // optional tag set for --tags filtering
	Timeout time.Duration // per-task timeout override (0 uses the run default)

	// Build produces the request for this iteration. It may mutate the
	// session (e.g. append to the transcript) before returning.
	Build func(s *Session) (RequestSpec, error)

	// Policy maps status codes to verdicts; unmapped codes follow the
	// default classification rules.
	Policy Policy

	// Check optionally validates successful response bodies.
	Check *ResponseCheck
}

// Profile is a named, immutable set of weighted tasks plus lifecycle hooks and
// wait-time bounds. Validate before starting a run; do not mutate afterwards.
type Profile struct {
	Name    string
	Tasks   []Task
	Wait    WaitRange
	OnStart func(ctx context.Context, s *Session) error
	OnStop  func(s *Session)
}

// Validate rejects profiles that cannot drive a run: empty task sets,
// non-positive weights, unnamed tasks, missing builders, inverted wait bounds.
func (p Profile) Validate() error {
	var issues []string
	if strings.TrimSpace(p.Name) == "" {
		issues = append(issues, "profile name is required")
	}
	if len(p.Tasks) == 0 {
		issues = append(issues, "profile has no tasks")
	}
	total := 0
	for idx, task := range p.Tasks {
		if strings.TrimSpace(task.Name) == "" {
			issues = append(issues, fmt.Sprintf("tasks[%d]: name is required", idx))
		}
		if task.Weight <= 0 {
			issues = append(issues, fmt.Sprintf("tasks[%d]: weight must be >= 1", idx))
		}
		if task.Build == nil {
			issues = append(issues, fmt.Sprintf("tasks[%d]: builder is required", idx))
		}
		if task.Timeout < 0 {
			issues = append(issues, fmt.Sprintf("tasks[%d]: timeout must be >= 0", idx))
		}
		total += task.Weight
	}
	if len(p.Tasks) > 0 && total <= 0 {
		issues = append(issues, "task weights must sum to > 0")
	}
	if p.Wait.Min < 0 || p.Wait.Max < 0 {
		issues = append(issues, "wait bounds must be >= 0")
	}
	if p.Wait.Max < p.Wait.Min {
		issues = append(issues, "wait max must be >= wait min")
	}
	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// ValidationError aggregates everything wrong with a profile so callers can
// report all issues at once.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "profile validation failed"
	}
	return fmt.Sprintf("profile validation failed: %s", strings.Join(e.issues, "; "))
}

// Issues returns the individual validation problems.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}
