// Package llm wraps the completion backend behind a small client interface.
// Any OpenAI-compatible chat completion endpoint works, hosted or local.
package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Options struct {
	MaxTokens   int
	Temperature float64
	// ForceJSON asks the backend for a JSON object response where supported.
	ForceJSON bool
}

type Client interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}
