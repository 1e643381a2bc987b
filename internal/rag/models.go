package rag

import "time"

// Article
// Une unité du Code général des impôts, figée par édition. L'ingestion
// (cmd/import-cgi) écrit, le pipeline ne fait que lire.
type Article struct {
	ID       int64   `json:"id"`
	Numero   string  `json:"numero"` // ex: "Art. 86A"
	Titre    string  `json:"titre,omitempty"`
	Contenu  string  `json:"contenu"`
	Version  string  `json:"version"` // édition: "2025", "2026"
	Tome     string  `json:"tome,omitempty"`
	Livre    string  `json:"livre,omitempty"`
	Chapitre string  `json:"chapitre,omitempty"`
	Score    float64 `json:"score,omitempty"` // rempli par la recherche
}

type MatchType string

const (
	MatchVector  MatchType = "vector"
	MatchKeyword MatchType = "keyword"
	MatchBoth    MatchType = "both"
)

// SearchResult wraps an article with its fused relevance score for one query.
type SearchResult struct {
	Article   Article   `json:"article"`
	Score     float64   `json:"score"` // 0..1
	MatchType MatchType `json:"matchType"`
}

type Domain string

const (
	DomainIS         Domain = "impot_societes"
	DomainIPR        Domain = "impot_remunerations"
	DomainTVA        Domain = "tva"
	DomainFoncier    Domain = "impot_foncier"
	DomainVehicules  Domain = "impot_vehicules"
	DomainProcedures Domain = "procedures"
)

// QueryIntent is the per-query classification produced by the intent analyzer.
type QueryIntent struct {
	TargetYear       *int     `json:"targetYear"` // nil when comparative or undecidable
	IsComparison     bool     `json:"isComparison"`
	Domain           Domain   `json:"domain,omitempty"`
	Confidence       float64  `json:"confidence"`
	DetectedKeywords []string `json:"detectedKeywords"`
}

// EmbeddingResult carries a query or article vector plus its cost. Tokens is
// zero on cache hits.
type EmbeddingResult struct {
	Vector []float32 `json:"vector"`
	Tokens int       `json:"tokens"`
	Cached bool      `json:"cached"`
}

// Citation references an article mentioned by the model. Verified is false
// when the reference could not be traced back to the retrieved set; such
// citations keep an empty excerpt and a zero score but are never dropped.
type Citation struct {
	ArticleNumber string  `json:"articleNumber"`
	Titre         string  `json:"titre,omitempty"`
	Excerpt       string  `json:"excerpt"`
	Score         float64 `json:"score"`
	Verified      bool    `json:"verified"`
}

type EventType string

const (
	EventStart     EventType = "start"
	EventChunk     EventType = "chunk"
	EventCitations EventType = "citations"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// StreamEvent is the wire unit of one assistant turn. Per turn: exactly one
// start, zero or more chunk, at most one citations, then done xor error.
type StreamEvent struct {
	Type      EventType    `json:"type"`
	Text      string       `json:"text,omitempty"`
	Citations []Citation   `json:"citations,omitempty"`
	Metrics   *TurnMetrics `json:"metrics,omitempty"`
	Err       string       `json:"error,omitempty"`
}

// TurnMetrics is attached to the done event and persisted with the turn.
type TurnMetrics struct {
	PromptTokens int    `json:"promptTokens"`
	OutputTokens int    `json:"outputTokens"`
	DurationMs   int64  `json:"durationMs"`
	Model        string `json:"model,omitempty"`
}

// Message is a persisted conversation turn half (user or assistant).
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	Citations      []Citation   `json:"citations,omitempty"`
	Metrics        *TurnMetrics `json:"metrics,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// ChatMessage is the lightweight history entry handed to the model.
type ChatMessage struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}
