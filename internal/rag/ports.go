package rag

import (
	"context"
	"time"
)

type Repository interface {
	// QuerySimilar returns the topN closest articles of one edition, with
	// Article.Score set to the cosine similarity (0..1).
	QuerySimilar(ctx context.Context, embedding []float32, version string, topN int) ([]Article, error)
	GetArticlesByNumeros(ctx context.Context, version string, numeros []string) ([]Article, error)
	InsertArticle(ctx context.Context, a *Article, embedding []float32) (int64, error)
	CreateMessage(ctx context.Context, conversationID, role, content string, citations []Citation, metrics *TurnMetrics) (*Message, error)
	LoadRecentHistory(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error)
}

type EmbeddingsClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// StreamDelta is one inbound unit from the model stream: a text delta, a
// terminal error, or (last, optional) the token usage for the turn.
type StreamDelta struct {
	Text  string
	Usage *TokenUsage
	Err   error
}

type TokenUsage struct {
	PromptTokens int
	OutputTokens int
}

type ChatClient interface {
	// GenerateStream opens a streamed generation. The returned channel is
	// closed by the producer once the stream terminates; opening errors are
	// returned synchronously so callers can retry them.
	GenerateStream(ctx context.Context, systemPrompt string, history []ChatMessage, userMessage string) (<-chan StreamDelta, error)
	Model() string
}

type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
