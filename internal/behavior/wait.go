package behavior

import (
	"math/rand"
	"time"
)

// WaitRange bounds the randomized pause between a virtual user's task
// executions.
type WaitRange struct {
	Min time.Duration
	Max time.Duration
}

// Next draws a wait duration uniformly from [Min, Max] using the caller's
// random source. Each virtual user passes its own seeded source so thousands
// of users sharing one profile do not synchronize into a thundering herd.
func (w WaitRange) Next(rnd *rand.Rand) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	span := int64(w.Max - w.Min)
	return w.Min + time.Duration(rnd.Int63n(span+1))
}
