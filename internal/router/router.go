package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/nl2sql"
)

const defaultHelpText = `I can help you with:
- Questions about your test data ("show me failed tests from yesterday")
- Writing code ("write a function to parse timestamps")
- General questions

What would you like to know?`

// Safe user-facing messages. Internal error detail is logged and never
// surfaced here.
const (
	msgCouldNotUnderstand = "Sorry, I could not turn that into a data query. Try rephrasing the question."
	msgStatementRejected  = "That request produced a query that cannot be run. Only read-only questions about your data are supported."
	msgQueryTimeout       = "The query took too long and was cancelled. Try narrowing the question, for example with a shorter time range."
	msgQueryFailed        = "The query failed. Please try again later."
	msgBackendTrouble     = "I'm having trouble responding right now. Please try again."
	msgCancelled          = "The request was cancelled."
)

type Config struct {
	ConfidenceThreshold float64
	HelpText            string
}

// Router owns the classify-then-dispatch step. Exactly one handler runs per
// message.
type Router struct {
	classifier Classifier
	nl2sql     Handler
	codeGen    Handler
	chat       Handler
	threshold  float64
	helpText   string
	logger     *slog.Logger
}

func New(classifier Classifier, nl2sqlHandler, codeGenHandler, chatHandler Handler, logger *slog.Logger, cfg Config) *Router {
	helpText := cfg.HelpText
	if helpText == "" {
		helpText = defaultHelpText
	}
	return &Router{
		classifier: classifier,
		nl2sql:     nl2sqlHandler,
		codeGen:    codeGenHandler,
		chat:       chatHandler,
		threshold:  cfg.ConfidenceThreshold,
		helpText:   helpText,
		logger:     logger,
	}
}

// Route classifies the message and dispatches it. The returned Response
// always has non-empty Text, including every failure path.
func (r *Router) Route(ctx context.Context, userInput string, conv ConversationContext) Response {
	trimmed := strings.TrimSpace(userInput)
	if trimmed == "" {
		return Response{Text: r.helpText, Kind: ResponseText, UsedCapability: CapabilityChat}
	}

	classification := r.classifier.Classify(ctx, trimmed)
	if classification.Confidence < r.threshold && classification.Capability != CapabilityChat {
		r.logger.Info("classification below threshold, overriding to chat",
			"capability", classification.Capability,
			"confidence", classification.Confidence,
			"threshold", r.threshold,
		)
		classification.Capability = CapabilityChat
	}

	var handler Handler
	switch classification.Capability {
	case CapabilityNL2SQL:
		handler = r.nl2sql
	case CapabilityCodeGen:
		handler = r.codeGen
	case CapabilityChat:
		handler = r.chat
	default:
		// The classifier contract makes this unreachable; chat absorbs it
		// if the contract is ever broken.
		handler = r.chat
		classification.Capability = CapabilityChat
	}

	response, err := handler.Handle(ctx, trimmed, conv)
	if ctx.Err() != nil {
		r.logger.Info("request context ended before delivery", "error", ctx.Err())
		return Response{
			Text:           msgCancelled,
			Kind:           ResponseError,
			UsedCapability: classification.Capability,
			Confidence:     classification.Confidence,
		}
	}
	if err != nil {
		r.logger.Error("handler failed",
			"capability", classification.Capability,
			"session_id", conv.SessionID,
			"error", err,
		)
		return Response{
			Text:           safeMessage(classification.Capability, err),
			Kind:           ResponseError,
			UsedCapability: classification.Capability,
			Confidence:     classification.Confidence,
		}
	}

	response.UsedCapability = classification.Capability
	response.Confidence = classification.Confidence
	return response
}

// safeMessage maps a handler error onto fixed user-facing text. Driver and
// backend error strings never pass through.
func safeMessage(capability Capability, err error) string {
	if capability != CapabilityNL2SQL {
		return msgBackendTrouble
	}

	var guardErr *GuardRejectionError
	if errors.As(err, &guardErr) {
		return msgStatementRejected
	}

	var execErr *nl2sql.ExecError
	if errors.As(err, &execErr) {
		if execErr.Kind == nl2sql.ExecTimeout {
			return msgQueryTimeout
		}
		return msgQueryFailed
	}

	var llmErr *llm.Error
	if errors.Is(err, nl2sql.ErrNoStatement) || errors.As(err, &llmErr) {
		return msgCouldNotUnderstand
	}

	return msgQueryFailed
}

