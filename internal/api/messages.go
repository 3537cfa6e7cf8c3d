package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/router"
)

type messageRequest struct {
	UserInput string          `json:"user_input"`
	Context   *messageContext `json:"context"`
}

type messageContext struct {
	SessionID        string            `json:"session_id"`
	PriorTurns       []messageTurn     `json:"prior_turns"`
	PlatformMetadata map[string]string `json:"platform_metadata"`
}

type messageTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type messageResponse struct {
	Text                     string  `json:"text"`
	Kind                     string  `json:"kind"`
	UsedCapability           string  `json:"used_capability"`
	ClassificationConfidence float64 `json:"classification_confidence"`
}

func handleMessage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Router == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ROUTER_NOT_CONFIGURED", "message routing is not configured", false, nil)
		return
	}

	var request messageRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid message request body", false, map[string]any{"details": err.Error()})
		return
	}

	conv := router.ConversationContext{}
	if request.Context != nil {
		conv.SessionID = request.Context.SessionID
		conv.Metadata = request.Context.PlatformMetadata
		for _, turn := range request.Context.PriorTurns {
			conv.PriorTurns = append(conv.PriorTurns, router.Turn{Role: turn.Role, Text: turn.Text})
		}
	}

	response := deps.Router.Route(r.Context(), request.UserInput, conv)
	if r.Context().Err() != nil {
		// The client is gone; nothing useful can be written.
		return
	}

	attrs := []slog.Attr{
		slog.String("used_capability", string(response.UsedCapability)),
		slog.String("response_kind", string(response.Kind)),
	}
	if conv.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", conv.SessionID))
	}
	observability.AppendRequestAttrs(r.Context(), attrs...)

	writeJSON(w, http.StatusOK, messageResponse{
		Text:                     response.Text,
		Kind:                     string(response.Kind),
		UsedCapability:           string(response.UsedCapability),
		ClassificationConfidence: response.Confidence,
	})
}
