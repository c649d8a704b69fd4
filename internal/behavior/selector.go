package behavior

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// NoEligibleTaskError reports that a tag filter eliminated every task in a
// profile. Selection never silently falls back to a task outside the filter.
type NoEligibleTaskError struct {
	Profile string
	Filter  []string
}

func (e *NoEligibleTaskError) Error() string {
	return fmt.Sprintf("profile %s: no task matches tag filter [%s]", e.Profile, strings.Join(e.Filter, ", "))
}

// Selector picks tasks by weighted random selection. The eligible set and
// cumulative weights are fixed at construction; each draw is a single uniform
// sample resolved by binary search, so selection is deterministic under a
// fixed seed.
type Selector struct {
	tasks      []Task
	cumulative []int
	total      int
	rnd        *rand.Rand
}

// NewSelector builds a selector over the tasks of a profile. A task is
// eligible when its tag set is empty or intersects the filter; with no filter
// every task is eligible. The selector owns rnd and must only be used from a
// single goroutine.
func NewSelector(p Profile, filter []string, rnd *rand.Rand) (*Selector, error) {
	eligible := make([]Task, 0, len(p.Tasks))
	for _, task := range p.Tasks {
		if taskMatchesFilter(task, filter) {
			eligible = append(eligible, task)
		}
	}
	if len(eligible) == 0 {
		return nil, &NoEligibleTaskError{Profile: p.Name, Filter: append([]string(nil), filter...)}
	}

	cumulative := make([]int, len(eligible))
	total := 0
	for i, task := range eligible {
		total += task.Weight
		cumulative[i] = total
	}
	if total <= 0 {
		return nil, fmt.Errorf("profile %s: eligible task weights must sum to > 0", p.Name)
	}

	return &Selector{
		tasks:      eligible,
		cumulative: cumulative,
		total:      total,
		rnd:        rnd,
	}, nil
}

// Pick returns the next task. The probability of each task equals its weight
// divided by the total weight of the eligible set.
func (s *Selector) Pick() Task {
	if len(s.tasks) == 1 {
		return s.tasks[0]
	}
	draw := s.rnd.Intn(s.total)
	idx := sort.SearchInts(s.cumulative, draw+1)
	if idx >= len(s.tasks) {
		idx = len(s.tasks) - 1
	}
	return s.tasks[idx]
}

// Eligible returns how many tasks survived the tag filter.
func (s *Selector) Eligible() int {
	return len(s.tasks)
}

func taskMatchesFilter(task Task, filter []string) bool {
	if len(filter) == 0 || len(task.Tags) == 0 {
		return true
	}
	for _, want := range filter {
		for _, tag := range task.Tags {
			if strings.EqualFold(tag, want) {
				return true
			}
		}
	}
	return false
}
