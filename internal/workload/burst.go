package workload

import (
	"net/http"
	"time"

	"github.com/mbaxter/stampede/internal/behavior"
)

// Burst hammers the chat endpoint with minimal think time to exercise the
// target's rate limiting. A 429 is the behavior under test, so the task's
// policy classifies it as success.
func Burst() behavior.Profile {
	return behavior.Profile{
		Name: "burst",
		Wait: behavior.WaitRange{Min: 100 * time.Millisecond, Max: 1 * time.Second},
		Tasks: []behavior.Task{
			{
				Name:   "rapid_requests",
				Weight: 1,
				Tags:   []string{"chat"},
				Policy: behavior.Policy{}.WithStatus(429, behavior.VerdictSuccess),
				Build: func(*behavior.Session) (behavior.RequestSpec, error) {
					return jsonBody(http.MethodPost, "/api/chat", chatPayload{
						Messages: []behavior.Message{{Role: "user", Content: "Quick test"}},
					})
				},
			},
		},
	}
}
