package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mbaxter/stampede/internal/behavior"
)

var samplePrompts = []string{
	"Write a product description for a new smartphone",
	"Create a marketing email for a summer sale",
	"Explain the benefits of cloud computing",
	"Write a blog post about SEO best practices",
	"Translate this text to Spanish: Hello, how are you?",
	"Summarize the importance of content marketing",
	"Generate social media captions for a coffee shop",
	"Write code to reverse a string in Python",
	"Create a business plan outline for a startup",
	"Explain machine learning in simple terms",
}

var chatModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-7-sonnet-20250219",
	"claude-3-haiku-20240307",
}

var toolEndpoints = []string{
	"/api/tools/grammar-check",
	"/api/tools/translator",
	"/api/tools/summarizer",
	"/api/tools/paraphraser",
	"/api/tools/content-generator",
	"/api/tools/seo-analyzer",
	"/api/tools/code-generator",
	"/api/tools/email-writer",
}

type chatPayload struct {
	Messages []behavior.Message `json:"messages"`
	Model    string             `json:"model,omitempty"`
}

type toolPayload struct {
	Text    string                 `json:"text"`
	Options map[string]interface{} `json:"options"`
}

func jsonBody(method, path string, payload interface{}) (behavior.RequestSpec, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return behavior.RequestSpec{}, fmt.Errorf("marshal payload: %w", err)
	}
	return behavior.RequestSpec{
		Method:  method,
		Path:    path,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	}, nil
}

// Chat simulates a typical user of the chat API: mostly single-shot prompts,
// some multi-turn conversations, occasional tool calls, and a trickle of
// monitoring traffic.
func Chat() behavior.Profile {
	return behavior.Profile{
		Name: "chat",
		Wait: behavior.WaitRange{Min: 1 * time.Second, Max: 5 * time.Second},
		OnStart: func(ctx context.Context, s *behavior.Session) error {
			s.Values["session_id"] = fmt.Sprintf("session_%04d", s.Rand().Intn(9000)+1000)
			return nil
		},
		Tasks: []behavior.Task{
			{
				Name:   "chat_simple",
				Weight: 10,
				Tags:   []string{"chat"},
				Check:  &behavior.ResponseCheck{JSONPath: "$.message"},
				Build: func(s *behavior.Session) (behavior.RequestSpec, error) {
					prompt := samplePrompts[s.Rand().Intn(len(samplePrompts))]
					model := chatModels[s.Rand().Intn(len(chatModels))]
					return jsonBody(http.MethodPost, "/api/chat", chatPayload{
						Messages: []behavior.Message{{Role: "user", Content: prompt}},
						Model:    model,
					})
				},
			},
			{
				Name:   "chat_conversation",
				Weight: 5,
				Tags:   []string{"chat"},
				Check:  &behavior.ResponseCheck{JSONPath: "$.message"},
				Build: func(s *behavior.Session) (behavior.RequestSpec, error) {
					if len(s.Transcript) < 2 {
						prompt := samplePrompts[s.Rand().Intn(len(samplePrompts))]
						s.Append("user", prompt)
						s.Append("assistant", "This is a test response.")
					}
					messages := append(append([]behavior.Message(nil), s.Transcript...),
						behavior.Message{Role: "user", Content: "Can you explain that in more detail?"})
					return jsonBody(http.MethodPost, "/api/chat", chatPayload{
						Messages: messages,
						Model:    "claude-3-7-sonnet-20250219",
					})
				},
			},
			{
				Name:   "tool_call",
				Weight: 3,
				Tags:   []string{"tools"},
				Build: func(s *behavior.Session) (behavior.RequestSpec, error) {
					endpoint := toolEndpoints[s.Rand().Intn(len(toolEndpoints))]
					return jsonBody(http.MethodPost, endpoint, toolPayload{
						Text:    "This is a sample text for testing the AI tool functionality.",
						Options: map[string]interface{}{},
					})
				},
			},
			{
				Name:   "health_check",
				Weight: 1,
				Tags:   []string{"monitoring"},
				Build: func(*behavior.Session) (behavior.RequestSpec, error) {
					return behavior.RequestSpec{Method: http.MethodGet, Path: "/api/health"}, nil
				},
			},
			{
				Name:   "homepage",
				Weight: 1,
				Tags:   []string{"monitoring"},
				Build: func(*behavior.Session) (behavior.RequestSpec, error) {
					return behavior.RequestSpec{Method: http.MethodGet, Path: "/"}, nil
				},
			},
		},
	}
}
