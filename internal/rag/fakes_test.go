package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeRepo is an in-memory Repository used across the package tests.
type fakeRepo struct {
	mu sync.Mutex

	articles      map[string][]Article // version -> articles
	vectorResults map[string][]Article // version -> scored results for QuerySimilar
	vectorErr     error
	numerosErr    error

	history    []ChatMessage
	historyErr error
	messages   []*Message

	similarCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		articles:      map[string][]Article{},
		vectorResults: map[string][]Article{},
	}
}

func (f *fakeRepo) addArticle(a Article) {
	f.articles[a.Version] = append(f.articles[a.Version], a)
}

func (f *fakeRepo) QuerySimilar(ctx context.Context, embedding []float32, version string, topN int) ([]Article, error) {
	f.mu.Lock()
	f.similarCalls++
	f.mu.Unlock()
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	res := f.vectorResults[version]
	if len(res) > topN {
		res = res[:topN]
	}
	return res, nil
}

func (f *fakeRepo) GetArticlesByNumeros(ctx context.Context, version string, numeros []string) ([]Article, error) {
	if f.numerosErr != nil {
		return nil, f.numerosErr
	}
	want := map[string]bool{}
	for _, n := range numeros {
		want[CanonicalNumero(n)] = true
	}
	var out []Article
	for _, a := range f.articles[version] {
		if want[CanonicalNumero(a.Numero)] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertArticle(ctx context.Context, a *Article, embedding []float32) (int64, error) {
	f.addArticle(*a)
	return int64(len(f.articles[a.Version])), nil
}

func (f *fakeRepo) CreateMessage(ctx context.Context, conversationID, role, content string, citations []Citation, metrics *TurnMetrics) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := &Message{
		ID:             fmt.Sprintf("msg-%d", len(f.messages)+1),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Citations:      citations,
		Metrics:        metrics,
		CreatedAt:      time.Now(),
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeRepo) LoadRecentHistory(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

// fakeEmbeddings returns a deterministic vector derived from the text.
type fakeEmbeddings struct {
	mu         sync.Mutex
	embedCalls int
	batchCalls int
	batchSizes []int
	err        error
}

func embedVector(text string) []float32 {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%8] += float32(r) / 1000
	}
	return vec
}

func (f *fakeEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return embedVector(text), nil
}

func (f *fakeEmbeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	f.batchSizes = append(f.batchSizes, len(texts))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedVector(t)
	}
	return out, nil
}

// fakeChat scripts the model stream for orchestrator tests.
type fakeChat struct {
	deltas  []StreamDelta
	openErr error

	mu    sync.Mutex
	calls int
}

func (f *fakeChat) GenerateStream(ctx context.Context, systemPrompt string, history []ChatMessage, userMessage string) (<-chan StreamDelta, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	ch := make(chan StreamDelta)
	go func() {
		defer close(ch)
		for _, d := range f.deltas {
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (f *fakeChat) Model() string { return "fake-model" }

var errPermanent = errors.New("invalid api key")
