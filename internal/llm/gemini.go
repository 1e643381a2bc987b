package llm

import (
	"context"
	"fmt"
	"iter"
	"os"

	"github.com/juristax/juristax-rag/internal/rag"
	"google.golang.org/genai"
)

const (
	embeddingModel = "models/text-embedding-004"
	ragChatModel   = "gemini-2.5-flash"
	embedDim       = 768
)

type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context) (*GeminiClient, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: c}, nil
}

func (g *GeminiClient) Model() string {
	return ragChatModel
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text for embedding")
	}

	resp, err := g.client.Models.EmbedContent(
		ctx,
		embeddingModel,
		genai.Text(text),
		&genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(embedDim)),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embed error: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return vectorFrom(resp.Embeddings[0])
}

func (g *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("empty text at index %d", i)
		}
		contents[i] = genai.Text(t)[0]
	}

	resp, err := g.client.Models.EmbedContent(
		ctx,
		embeddingModel,
		contents,
		&genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(embedDim)),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embed batch error: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if out[i], err = vectorFrom(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GenerateStream opens a streamed generation. The first response is pulled
// synchronously so that stream-open failures come back as a plain error the
// resilient caller can classify and retry; the rest of the stream is
// forwarded on the returned channel.
func (g *GeminiClient) GenerateStream(ctx context.Context, systemPrompt string, history []rag.ChatMessage, userMessage string) (<-chan rag.StreamDelta, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(userMessage, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.Text(systemPrompt)[0],
	}

	next, stop := iter.Pull2(g.client.Models.GenerateContentStream(ctx, ragChatModel, contents, cfg))

	first, err, ok := next()
	if err != nil {
		stop()
		return nil, fmt.Errorf("gemini stream error: %w", err)
	}

	ch := make(chan rag.StreamDelta)
	go func() {
		defer close(ch)
		defer stop()

		var usage *rag.TokenUsage
		resp, respErr, more := first, error(nil), ok
		for more {
			if respErr != nil {
				forward(ctx, ch, rag.StreamDelta{Err: fmt.Errorf("gemini stream error: %w", respErr)})
				return
			}
			if resp.UsageMetadata != nil {
				usage = &rag.TokenUsage{
					PromptTokens: int(resp.UsageMetadata.PromptTokenCount),
					OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				}
			}
			if txt := resp.Text(); txt != "" {
				if !forward(ctx, ch, rag.StreamDelta{Text: txt}) {
					return
				}
			}
			resp, respErr, more = next()
		}
		if usage != nil {
			forward(ctx, ch, rag.StreamDelta{Usage: usage})
		}
	}()

	return ch, nil
}

func forward(ctx context.Context, ch chan<- rag.StreamDelta, d rag.StreamDelta) bool {
	select {
	case ch <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func vectorFrom(e *genai.ContentEmbedding) ([]float32, error) {
	if e == nil || len(e.Values) != embedDim {
		return nil, fmt.Errorf("unexpected embedding size (expected %d)", embedDim)
	}
	out := make([]float32, embedDim)
	copy(out, e.Values)
	return out, nil
}

var _ rag.EmbeddingsClient = (*GeminiClient)(nil)
var _ rag.ChatClient = (*GeminiClient)(nil)
