package main

import (
	"context"
	"log"
	"net/http"

	"github.com/juristax/juristax-rag/internal/cache"
	"github.com/juristax/juristax-rag/internal/config"
	"github.com/juristax/juristax-rag/internal/db"
	apphttp "github.com/juristax/juristax-rag/internal/http"
	"github.com/juristax/juristax-rag/internal/llm"
	"github.com/juristax/juristax-rag/internal/rag"
)

func main() {
	ctx := context.Background()

	cfg := config.Load()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer pool.Close()

	repo := rag.NewPgRepository(pool)

	geminiClient, err := llm.NewGeminiClient(ctx)
	if err != nil {
		log.Fatalf("failed to init Gemini client: %v", err)
	}

	// Embedding cache is optional: without Redis every lookup is a miss.
	var store rag.CacheStore
	if cfg.RedisAddr != "" {
		store = cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
		log.Printf("embedding cache: redis at %s", cfg.RedisAddr)
	} else {
		log.Printf("embedding cache: redis disabled, in-process cache only")
	}

	embedder := rag.NewCachedEmbedder(
		&rag.RetryingEmbeddings{Inner: geminiClient, Cfg: rag.DefaultCallConfig()},
		store,
		cfg.EmbedCacheTTL,
	)

	searcher := rag.NewSearcher(repo, embedder, rag.NewKeywordIndex())
	orchestrator := rag.NewOrchestrator(repo, searcher, rag.NewIntentAnalyzer(), geminiClient, cfg.SearchTopK)

	h := apphttp.NewHandler(orchestrator)
	router := apphttp.NewRouter(h)
	handler := corsMiddleware(cfg.AllowedOrigin, router)

	addr := ":" + cfg.Port
	log.Printf("API listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, handler))
}

func corsMiddleware(allowedOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && origin == allowedOrigin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id, X-User-Name")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
