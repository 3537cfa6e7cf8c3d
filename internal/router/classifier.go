package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/observability"
)

// Classifier decides which capability should handle a message. It is total:
// every input yields a Classification, never an error.
type Classifier interface {
	Classify(ctx context.Context, userInput string) Classification
}

type ClassifierConfig struct {
	Temperature float64
	MaxTokens   int
}

// LLMClassifier asks the completion backend for a label and falls back to
// keyword scoring when the backend fails or answers outside the closed set.
type LLMClassifier struct {
	client      llm.Client
	logger      *slog.Logger
	temperature float64
	maxTokens   int
}

func NewLLMClassifier(client llm.Client, logger *slog.Logger, cfg ClassifierConfig) *LLMClassifier {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 200
	}
	return &LLMClassifier{client: client, logger: logger, temperature: cfg.Temperature, maxTokens: maxTokens}
}

type classifierPayload struct {
	Capability string  `json:"capability"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (c *LLMClassifier) Classify(ctx context.Context, userInput string) Classification {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: classificationPrompt},
		{Role: llm.RoleUser, Content: userInput},
	}

	raw, err := c.client.Complete(ctx, messages, llm.Options{
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ForceJSON:   true,
	})
	if err != nil {
		// Backend failure resolves to chat deterministically for every
		// input; keyword scoring only gets a say when the backend answered
		// with something unusable.
		c.logger.Warn("classifier backend failed, defaulting to chat", "error", err)
		observability.ObserveClassification(string(CapabilityChat), true)
		return Classification{Capability: CapabilityChat, Confidence: 0.0, Rationale: "fallback"}
	}

	classification, err := parseClassification(raw)
	if err != nil {
		c.logger.Warn("classifier returned unusable response, using keyword fallback", "error", err)
		return c.fallback(userInput)
	}

	observability.ObserveClassification(string(classification.Capability), false)
	return classification
}

func (c *LLMClassifier) fallback(userInput string) Classification {
	classification := classifyByKeywords(userInput)
	observability.ObserveClassification(string(classification.Capability), true)
	return classification
}

func parseClassification(raw string) (Classification, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return Classification{}, fmt.Errorf("no JSON object in response")
	}

	var payload classifierPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}

	capability, ok := parseCapability(payload.Capability)
	if !ok {
		return Classification{}, fmt.Errorf("unknown capability label %q", payload.Capability)
	}
	if payload.Confidence < 0 || payload.Confidence > 1 {
		return Classification{}, fmt.Errorf("confidence %v out of range", payload.Confidence)
	}

	rationale := strings.TrimSpace(payload.Reasoning)
	if rationale == "" {
		rationale = "model classification"
	}

	return Classification{Capability: capability, Confidence: payload.Confidence, Rationale: rationale}, nil
}

func parseCapability(label string) (Capability, bool) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "NL2SQL":
		return CapabilityNL2SQL, true
	case "CODE_GEN", "CODE_GENERATION":
		return CapabilityCodeGen, true
	case "CHAT", "GENERAL_CHAT":
		return CapabilityChat, true
	default:
		return "", false
	}
}

// extractJSONObject cuts the first balanced-looking object out of a response
// that may be wrapped in markdown fences or prose.
func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

var (
	nl2sqlTriggers = []string{
		"show", "list", "count", "how", "many", "failed", "passed", "test",
		"tests", "yesterday", "today", "last", "recent", "status", "history",
		"average", "executions", "runs", "database", "query", "data",
	}
	codeGenTriggers = []string{
		"write", "generate", "implement", "create", "function", "script",
		"code", "class", "method", "regex", "python", "go", "golang",
		"javascript", "typescript", "java", "sql", "refactor", "algorithm",
	}
)

// classifyByKeywords scores trigger-word hits per capability. A clear winner
// gets a mid confidence; ties and silence fall through to chat.
func classifyByKeywords(userInput string) Classification {
	words := map[string]bool{}
	for _, field := range strings.Fields(strings.ToLower(userInput)) {
		words[strings.Trim(field, ".,!?;:'\"()")] = true
	}

	nl2sqlScore := countHits(words, nl2sqlTriggers)
	codeGenScore := countHits(words, codeGenTriggers)

	switch {
	case nl2sqlScore > codeGenScore:
		return Classification{Capability: CapabilityNL2SQL, Confidence: 0.5, Rationale: "keyword match"}
	case codeGenScore > nl2sqlScore:
		return Classification{Capability: CapabilityCodeGen, Confidence: 0.5, Rationale: "keyword match"}
	default:
		return Classification{Capability: CapabilityChat, Confidence: 0.0, Rationale: "fallback"}
	}
}

func countHits(words map[string]bool, triggers []string) int {
	hits := 0
	for _, trigger := range triggers {
		if words[trigger] {
			hits++
		}
	}
	return hits
}

const classificationPrompt = `You are an intent classification system. Analyze the user's message and decide which capability should handle it.

CAPABILITIES:
- NL2SQL: questions about stored data that should become a database query (test results, execution history, counts, trends)
- CODE_GEN: requests to write or generate code, functions, or scripts
- CHAT: greetings, explanations, advice, and anything else

CLASSIFICATION RULES:
1. Analyze the user's message carefully
2. Pick exactly one capability from the list above
3. Provide a confidence score (0.0 to 1.0)
4. Explain your reasoning briefly

RESPONSE FORMAT:
Return a JSON object with this exact structure:
{"capability": "NL2SQL", "confidence": 0.85, "reasoning": "brief explanation"}

EXAMPLES:

User: "Show me failed tests from yesterday"
Response: {"capability": "NL2SQL", "confidence": 0.95, "reasoning": "asks for stored test execution data"}

User: "Write a Python function to calculate fibonacci"
Response: {"capability": "CODE_GEN", "confidence": 0.9, "reasoning": "requests code generation"}

User: "Hello, how are you?"
Response: {"capability": "CHAT", "confidence": 0.85, "reasoning": "general conversation"}`
