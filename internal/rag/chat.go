package rag

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	historyLimit    = 20
	maxGreetingLen  = 40
	greetingReplyFR = "Bonjour ! Je suis l'assistant fiscal du Code général des impôts. Posez-moi une question sur la fiscalité congolaise : impôt sur les sociétés, IPR, TVA, impôt foncier..."
)

// greetingLexicon short-circuits non-substantive turns: no retrieval, no
// citations, no model call.
var greetingLexicon = map[string]bool{
	"bonjour":        true,
	"bonsoir":        true,
	"salut":          true,
	"hello":          true,
	"hi":             true,
	"merci":          true,
	"merci beaucoup": true,
	"ok":             true,
	"d'accord":       true,
	"ca va":          true,
	"au revoir":      true,
	"bonne journee":  true,
}

// ChatRequest is one user turn, pre-authenticated by the edge.
type ChatRequest struct {
	ConversationID string
	UserID         string
	UserName       string
	Query          string
	TopK           int
}

// Orchestrator sequences intent analysis, hybrid retrieval, context build,
// streamed generation, citation validation and persistence for one turn.
type Orchestrator struct {
	repo     Repository
	searcher *Searcher
	analyzer *IntentAnalyzer
	chat     ChatClient
	callCfg  CallConfig
	topK     int
}

func NewOrchestrator(repo Repository, searcher *Searcher, analyzer *IntentAnalyzer, chat ChatClient, topK int) *Orchestrator {
	if topK <= 0 {
		topK = 5
	}
	cfg := DefaultCallConfig()
	cfg.Timeout = 0 // stream lifetime is bounded by the caller's context
	return &Orchestrator{
		repo:     repo,
		searcher: searcher,
		analyzer: analyzer,
		chat:     chat,
		callCfg:  cfg,
		topK:     topK,
	}
}

// Stream runs one turn and emits StreamEvents on the returned channel: one
// start, zero or more chunk, at most one citations, then done or error. The
// channel is closed when the turn terminates; cancelling ctx stops the
// upstream stream and skips persistence.
func (o *Orchestrator) Stream(ctx context.Context, req ChatRequest) <-chan StreamEvent {
	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		o.run(ctx, req, events)
	}()
	return events
}

func (o *Orchestrator) run(ctx context.Context, req ChatRequest, events chan<- StreamEvent) {
	started := time.Now()
	if !emit(ctx, events, StreamEvent{Type: EventStart}) {
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		emit(ctx, events, StreamEvent{Type: EventError, Err: "question is required"})
		return
	}

	if isGreeting(query) {
		if !emit(ctx, events, StreamEvent{Type: EventChunk, Text: greetingReplyFR}) {
			return
		}
		metrics := &TurnMetrics{DurationMs: time.Since(started).Milliseconds()}
		if err := o.persistTurn(ctx, req, query, greetingReplyFR, nil, metrics); err != nil {
			emit(ctx, events, StreamEvent{Type: EventError, Err: err.Error()})
			return
		}
		emit(ctx, events, StreamEvent{Type: EventDone, Metrics: metrics})
		return
	}

	history, err := o.repo.LoadRecentHistory(ctx, req.ConversationID, historyLimit)
	if err != nil {
		// History is framing, not correctness: degrade to a fresh turn.
		log.Printf("load history failed, continuing without: %v", err)
		history = nil
	}

	intent := o.analyzer.Analyze(query)

	results, err := o.retrieve(ctx, query, intent)
	if err != nil {
		emit(ctx, events, StreamEvent{Type: EventError, Err: err.Error()})
		return
	}

	lang := detectLang(query)
	var systemPrompt string
	userContent := query
	if len(results) > 0 {
		systemPrompt = buildGroundedPrompt(lang, req.UserName, intent)
		userContent = fmt.Sprintf(
			"Question:\n%s\n\nArticles du Code général des impôts:\n%s",
			query,
			BuildContext(results),
		)
	} else {
		systemPrompt = buildFallbackPrompt(lang)
	}

	deltas, err := Call(ctx, o.callCfg, "generate", func(callCtx context.Context) (<-chan StreamDelta, error) {
		return o.chat.GenerateStream(callCtx, systemPrompt, history, userContent)
	})
	if err != nil {
		emit(ctx, events, StreamEvent{Type: EventError, Err: err.Error()})
		return
	}

	var full strings.Builder
	var usage *TokenUsage
	for delta := range deltas {
		if delta.Err != nil {
			emit(ctx, events, StreamEvent{Type: EventError, Err: delta.Err.Error()})
			return
		}
		if delta.Usage != nil {
			usage = delta.Usage
		}
		if delta.Text == "" {
			continue
		}
		full.WriteString(delta.Text)
		if !emit(ctx, events, StreamEvent{Type: EventChunk, Text: delta.Text}) {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	answer := full.String()
	if strings.TrimSpace(answer) == "" {
		emit(ctx, events, StreamEvent{Type: EventError, Err: "model returned empty text"})
		return
	}

	citations := ExtractCitations(answer, results)
	if !emit(ctx, events, StreamEvent{Type: EventCitations, Citations: citations}) {
		return
	}

	metrics := &TurnMetrics{
		DurationMs: time.Since(started).Milliseconds(),
		Model:      o.chat.Model(),
	}
	if usage != nil {
		metrics.PromptTokens = usage.PromptTokens
		metrics.OutputTokens = usage.OutputTokens
	}

	if err := o.persistTurn(ctx, req, query, answer, citations, metrics); err != nil {
		emit(ctx, events, StreamEvent{Type: EventError, Err: fmt.Sprintf("persist turn: %v", err)})
		return
	}

	emit(ctx, events, StreamEvent{Type: EventDone, Metrics: metrics})
}

// retrieve scopes hybrid search by the analyzed intent. Comparative queries
// search both editions and interleave the results so neither edition is
// starved out of the context.
func (o *Orchestrator) retrieve(ctx context.Context, query string, intent QueryIntent) ([]SearchResult, error) {
	if intent.IsComparison {
		prev, err := o.searcher.Search(ctx, query, fmt.Sprint(editionPrevious), o.topK)
		if err != nil {
			return nil, err
		}
		cur, err := o.searcher.Search(ctx, query, fmt.Sprint(editionCurrent), o.topK)
		if err != nil {
			return nil, err
		}
		return interleave(prev, cur, o.topK*2), nil
	}

	version := fmt.Sprint(editionCurrent)
	if intent.TargetYear != nil {
		version = fmt.Sprint(*intent.TargetYear)
	}
	return o.searcher.Search(ctx, query, version, o.topK)
}

func interleave(a, b []SearchResult, max int) []SearchResult {
	out := make([]SearchResult, 0, len(a)+len(b))
	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) {
			out = append(out, a[i])
		}
		if i < len(b) {
			out = append(out, b[i])
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// persistTurn stores both halves of the turn. Runs only after the stream
// completed; a cancelled turn persists nothing.
func (o *Orchestrator) persistTurn(ctx context.Context, req ChatRequest, question, answer string, citations []Citation, metrics *TurnMetrics) error {
	if req.ConversationID == "" {
		return nil
	}
	if _, err := o.repo.CreateMessage(ctx, req.ConversationID, "user", question, nil, nil); err != nil {
		return err
	}
	if _, err := o.repo.CreateMessage(ctx, req.ConversationID, "assistant", answer, citations, metrics); err != nil {
		return err
	}
	return nil
}

func isGreeting(query string) bool {
	if len(query) > maxGreetingLen {
		return false
	}
	q := NormalizeQuery(query)
	q = strings.Trim(q, " !?.,")
	return greetingLexicon[q]
}

// emit pushes an event unless the consumer is gone. A false return means the
// turn was cancelled and the producer must stop.
func emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
