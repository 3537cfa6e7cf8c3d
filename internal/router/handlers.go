package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/nl2sql"
	"github.com/tabletalk/tabletalk/internal/schema"
)

// Handler produces the response body for one capability. Returned errors are
// mapped to safe user-facing text by the router; handlers never write their
// own apologies.
type Handler interface {
	Handle(ctx context.Context, userInput string, conv ConversationContext) (Response, error)
}

// GuardRejectionError marks a generated statement the guard refused.
type GuardRejectionError struct {
	Violations []nl2sql.Violation
}

func (e *GuardRejectionError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, violation := range e.Violations {
		parts[i] = string(violation)
	}
	return fmt.Sprintf("statement rejected: %s", strings.Join(parts, ", "))
}

// SchemaSource yields the snapshot queries are generated and validated
// against.
type SchemaSource interface {
	Current() schema.Context
}

// NL2SQLHandler runs the generate, guard, execute, format pipeline. Only
// sanitized text from an accepted verdict ever reaches the executor.
type NL2SQLHandler struct {
	generator *nl2sql.Generator
	guard     *nl2sql.Guard
	executor  *nl2sql.Executor
	formatter *nl2sql.Formatter
	schemas   SchemaSource
}

func NewNL2SQLHandler(generator *nl2sql.Generator, guard *nl2sql.Guard, executor *nl2sql.Executor, formatter *nl2sql.Formatter, schemas SchemaSource) *NL2SQLHandler {
	return &NL2SQLHandler{
		generator: generator,
		guard:     guard,
		executor:  executor,
		formatter: formatter,
		schemas:   schemas,
	}
}

func (h *NL2SQLHandler) Handle(ctx context.Context, userInput string, _ ConversationContext) (Response, error) {
	schemaCtx := h.schemas.Current()

	candidate, err := h.generator.Generate(ctx, userInput, schemaCtx)
	if err != nil {
		return Response{}, err
	}

	verdict := h.guard.Check(candidate, schemaCtx)
	if !verdict.Accepted {
		return Response{}, &GuardRejectionError{Violations: verdict.Violations}
	}

	result, err := h.executor.Execute(ctx, verdict.SanitizedText)
	if err != nil {
		return Response{}, err
	}

	return Response{Text: h.formatter.Format(result), Kind: ResponseTable}, nil
}

type ChatConfig struct {
	Temperature float64
	MaxTokens   int
}

// ChatHandler is the conversational fallback. Prior turns are replayed into
// the message list so the model keeps context across the session.
type ChatHandler struct {
	client      llm.Client
	temperature float64
	maxTokens   int
}

func NewChatHandler(client llm.Client, cfg ChatConfig) *ChatHandler {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 600
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	return &ChatHandler{client: client, temperature: temperature, maxTokens: maxTokens}
}

func (h *ChatHandler) Handle(ctx context.Context, userInput string, conv ConversationContext) (Response, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: chatPrompt}}
	for _, turn := range conv.PriorTurns {
		role := llm.RoleUser
		if strings.EqualFold(turn.Role, "assistant") {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userInput})

	text, err := h.client.Complete(ctx, messages, llm.Options{
		MaxTokens:   h.maxTokens,
		Temperature: h.temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Response{}, fmt.Errorf("chat completion: empty response")
	}

	return Response{Text: text, Kind: ResponseText}, nil
}

type CodeGenConfig struct {
	Temperature float64
	MaxTokens   int
}

// CodeGenHandler asks for code as structured JSON and renders it as a fenced
// block with the explanation underneath.
type CodeGenHandler struct {
	client      llm.Client
	temperature float64
	maxTokens   int
}

func NewCodeGenHandler(client llm.Client, cfg CodeGenConfig) *CodeGenHandler {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.2
	}
	return &CodeGenHandler{client: client, temperature: temperature, maxTokens: maxTokens}
}

type codeGenPayload struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	Explanation string `json:"explanation"`
}

func (h *CodeGenHandler) Handle(ctx context.Context, userInput string, _ ConversationContext) (Response, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: codeGenPrompt},
		{Role: llm.RoleUser, Content: userInput},
	}

	raw, err := h.client.Complete(ctx, messages, llm.Options{
		MaxTokens:   h.maxTokens,
		Temperature: h.temperature,
		ForceJSON:   true,
	})
	if err != nil {
		return Response{}, fmt.Errorf("code generation: %w", err)
	}

	var payload codeGenPayload
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return Response{}, fmt.Errorf("code generation: decode response: %w", err)
	}
	if strings.TrimSpace(payload.Code) == "" {
		return Response{}, fmt.Errorf("code generation: empty code in response")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "```%s\n%s\n```", payload.Language, strings.TrimSpace(payload.Code))
	if explanation := strings.TrimSpace(payload.Explanation); explanation != "" {
		sb.WriteString("\n\n")
		sb.WriteString(explanation)
	}

	return Response{Text: sb.String(), Kind: ResponseText}, nil
}

const chatPrompt = `You are a helpful, friendly, and knowledgeable assistant for an engineering team. You can engage in natural conversation while being informative and supportive.

GUIDELINES:
1. Be conversational and friendly
2. Provide helpful and accurate information
3. Ask clarifying questions when needed
4. Acknowledge when you don't know something
5. Keep responses concise but informative`

const codeGenPrompt = `You are an expert programmer. Generate clean, efficient, and well-documented code based on the user's request.

GUIDELINES:
1. Write production-ready code with proper error handling
2. Include helpful comments explaining complex logic
3. Follow language-specific best practices and conventions

RESPONSE FORMAT:
Return a JSON object with this structure:
{"code": "the actual code", "language": "the language used", "explanation": "what the code does and how it works"}`
