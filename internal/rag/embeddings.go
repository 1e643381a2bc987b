package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	embedBatchSize  = 100
	embedKeyPrefix  = "emb:"
	defaultL1Size   = 4096
	defaultCacheTTL = 7 * 24 * time.Hour
)

var ErrEmptyText = errors.New("empty text for embedding")

// CachedEmbedder memoizes embeddings by content hash: a process-local LRU in
// front of a shared TTL store. The cache is a performance layer only: any
// store failure degrades to a miss. Provider errors propagate un-retried;
// retry policy belongs to the resilient caller wired underneath.
type CachedEmbedder struct {
	provider EmbeddingsClient
	store    CacheStore // may be nil
	l1       *lru.Cache[string, []float32]
	ttl      time.Duration
}

func NewCachedEmbedder(provider EmbeddingsClient, store CacheStore, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	l1, err := lru.New[string, []float32](defaultL1Size)
	if err != nil {
		// only possible with a non-positive size
		panic(err)
	}
	return &CachedEmbedder{provider: provider, store: store, l1: l1, ttl: ttl}
}

// Embed returns the vector for one text. Cache hits report zero token cost.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	clean := normalizeWhitespace(text)
	if clean == "" {
		return EmbeddingResult{}, ErrEmptyText
	}

	key := cacheKey(clean)
	if vec, ok := e.lookup(ctx, key); ok {
		return EmbeddingResult{Vector: vec, Tokens: 0, Cached: true}, nil
	}

	vec, err := e.provider.Embed(ctx, clean)
	if err != nil {
		return EmbeddingResult{}, err
	}
	e.remember(ctx, key, vec)
	return EmbeddingResult{Vector: vec, Tokens: estimateTokens(clean), Cached: false}, nil
}

// EmbedMany embeds texts in provider-sized batches, skipping cached entries.
// The provider reports no per-item usage, so the estimated batch total is
// pro-rated over the missing items by character share.
func (e *CachedEmbedder) EmbedMany(ctx context.Context, texts []string) ([]EmbeddingResult, error) {
	results := make([]EmbeddingResult, len(texts))

	type pending struct {
		index int
		text  string
		key   string
	}
	var misses []pending

	for i, t := range texts {
		clean := normalizeWhitespace(t)
		if clean == "" {
			return nil, ErrEmptyText
		}
		key := cacheKey(clean)
		if vec, ok := e.lookup(ctx, key); ok {
			results[i] = EmbeddingResult{Vector: vec, Tokens: 0, Cached: true}
			continue
		}
		misses = append(misses, pending{index: i, text: clean, key: key})
	}

	for start := 0; start < len(misses); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		texts := make([]string, len(batch))
		totalChars := 0
		for i, p := range batch {
			texts[i] = p.text
			totalChars += len(p.text)
		}

		vectors, err := e.provider.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, errors.New("embedding batch size mismatch")
		}

		batchTokens := estimateTokensChars(totalChars)
		for i, p := range batch {
			tokens := batchTokens
			if totalChars > 0 {
				tokens = batchTokens * len(p.text) / totalChars
			}
			results[p.index] = EmbeddingResult{Vector: vectors[i], Tokens: tokens, Cached: false}
			e.remember(ctx, p.key, vectors[i])
		}
	}

	return results, nil
}

func (e *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	if vec, ok := e.l1.Get(key); ok {
		return vec, true
	}
	if e.store == nil {
		return nil, false
	}
	data, ok, err := e.store.Get(ctx, key)
	if err != nil {
		log.Printf("embedding cache get failed, treating as miss: %v", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}
	e.l1.Add(key, vec)
	return vec, true
}

func (e *CachedEmbedder) remember(ctx context.Context, key string, vec []float32) {
	e.l1.Add(key, vec)
	if e.store == nil {
		return
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, key, data, e.ttl); err != nil {
		log.Printf("embedding cache set failed: %v", err)
	}
}

func cacheKey(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return embedKeyPrefix + hex.EncodeToString(sum[:])
}

// estimateTokens approximates provider token usage at ~4 chars per token.
func estimateTokens(s string) int {
	return estimateTokensChars(len(s))
}

func estimateTokensChars(chars int) int {
	if chars == 0 {
		return 0
	}
	return (chars + 3) / 4
}
