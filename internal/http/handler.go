package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/juristax/juristax-rag/internal/rag"
)

// Streamer is the orchestrator surface the transport needs.
type Streamer interface {
	Stream(ctx context.Context, req rag.ChatRequest) <-chan rag.StreamEvent
}

type Handler struct {
	orchestrator Streamer
}

func NewHandler(orchestrator Streamer) *Handler {
	return &Handler{orchestrator: orchestrator}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type chatRequestBody struct {
	ConversationID string `json:"conversationId"`
	Question       string `json:"question"`
}

func (h *Handler) chatRequest(r *http.Request) (rag.ChatRequest, error) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return rag.ChatRequest{}, fmt.Errorf("invalid json body")
	}
	if strings.TrimSpace(body.Question) == "" {
		return rag.ChatRequest{}, fmt.Errorf("question is required")
	}

	// The edge authenticates; we only trust its identity headers.
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		return rag.ChatRequest{}, fmt.Errorf("missing X-User-Id header")
	}

	return rag.ChatRequest{
		ConversationID: body.ConversationID,
		UserID:         userID,
		UserName:       r.Header.Get("X-User-Name"),
		Query:          body.Question,
	}, nil
}

// ChatStream answers one turn as a Server-Sent Events stream: one event per
// StreamEvent, then an explicit [DONE] marker.
func (h *Handler) ChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := h.chatRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx: disable buffering

	ctx := r.Context()
	for ev := range h.orchestrator.Stream(ctx, req) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}

	if ctx.Err() == nil {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

type askResponse struct {
	Answer    string           `json:"answer"`
	Citations []rag.Citation   `json:"citations"`
	Metrics   *rag.TurnMetrics `json:"metrics,omitempty"`
}

// Ask collects the whole event stream into one JSON response for clients
// that cannot consume SSE.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	req, err := h.chatRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var resp askResponse
	var answer strings.Builder
	resp.Citations = []rag.Citation{}

	for ev := range h.orchestrator.Stream(r.Context(), req) {
		switch ev.Type {
		case rag.EventChunk:
			answer.WriteString(ev.Text)
		case rag.EventCitations:
			resp.Citations = ev.Citations
		case rag.EventDone:
			resp.Metrics = ev.Metrics
		case rag.EventError:
			http.Error(w, ev.Err, http.StatusBadGateway)
			return
		}
	}

	resp.Answer = answer.String()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
