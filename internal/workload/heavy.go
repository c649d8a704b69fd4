package workload

import (
	"net/http"
	"strings"
	"time"

	"github.com/mbaxter/stampede/internal/behavior"
)

// Heavy simulates document-processing users sending large prompts to a more
// capable model with a longer per-task timeout.
func Heavy() behavior.Profile {
	largePrompt := "Please analyze the following text: " +
		strings.Repeat(strings.Join(samplePrompts, " ")+" ", 20)

	return behavior.Profile{
		Name: "heavy",
		Wait: behavior.WaitRange{Min: 2 * time.Second, Max: 8 * time.Second},
		Tasks: []behavior.Task{
			{
				Name:    "chat_heavy",
				Weight:  1,
				Tags:    []string{"chat"},
				Timeout: 60 * time.Second,
				Build: func(*behavior.Session) (behavior.RequestSpec, error) {
					return jsonBody(http.MethodPost, "/api/chat", chatPayload{
						Messages: []behavior.Message{{Role: "user", Content: largePrompt}},
						Model:    "claude-sonnet-4-20250514",
					})
				},
			},
		},
	}
}
