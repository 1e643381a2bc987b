package rag

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	minSimilarity  = 0.25
	agreementBonus = 0.10
	minVectorTopN  = 10
)

// Searcher fuses vector similarity and taxonomy keyword retrieval over one
// edition of the code.
type Searcher struct {
	repo     Repository
	embedder *CachedEmbedder
	keywords *KeywordIndex
}

func NewSearcher(repo Repository, embedder *CachedEmbedder, keywords *KeywordIndex) *Searcher {
	return &Searcher{repo: repo, embedder: embedder, keywords: keywords}
}

// Search returns at most topK results sorted by descending fused score, ties
// broken by article number so the ordering is reproducible. The vector and
// keyword branches run concurrently; one branch may fail as long as the
// other produced candidates.
func (s *Searcher) Search(ctx context.Context, query, version string, topK int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return []SearchResult{}, nil
	}

	topN := 3 * topK
	if topN < minVectorTopN {
		topN = minVectorTopN
	}

	var (
		vectorArts []Article
		vectorErr  error
		kwArts     []Article
		kwScores   map[string]float64
		kwErr      error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emb, err := s.embedder.Embed(gctx, query)
		if err != nil {
			vectorErr = fmt.Errorf("query embedding: %w", err)
			return nil
		}
		vectorArts, vectorErr = s.repo.QuerySimilar(gctx, emb.Vector, version, topN)
		return nil
	})
	g.Go(func() error {
		hits := s.keywords.Lookup(query)
		if len(hits) == 0 {
			return nil
		}
		numeros := make([]string, len(hits))
		kwScores = make(map[string]float64, len(hits))
		for i, h := range hits {
			numeros[i] = h.Numero
			kwScores[CanonicalNumero(h.Numero)] = h.Score
		}
		kwArts, kwErr = s.repo.GetArticlesByNumeros(gctx, version, numeros)
		return nil
	})
	_ = g.Wait()

	if vectorErr != nil && kwErr != nil {
		return nil, fmt.Errorf("hybrid search failed: vector=%v keyword=%v", vectorErr, kwErr)
	}
	if vectorErr != nil {
		log.Printf("vector branch degraded to keyword-only: %v", vectorErr)
	}
	if kwErr != nil {
		log.Printf("keyword branch degraded to vector-only: %v", kwErr)
	}

	fused := fuse(vectorArts, kwArts, kwScores)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

// fuse unions the two candidate sets by article number. Agreement between
// strategies earns a bonus on top of the better individual score, clamped to
// [0,1]; single-source candidates keep their own score and match type.
func fuse(vectorArts, kwArts []Article, kwScores map[string]float64) []SearchResult {
	merged := map[string]SearchResult{}

	for _, a := range vectorArts {
		score := clamp01(a.Score)
		if score < minSimilarity {
			continue
		}
		key := CanonicalNumero(a.Numero)
		if key == "" {
			continue
		}
		a.Score = score
		merged[key] = SearchResult{Article: a, Score: score, MatchType: MatchVector}
	}

	for _, a := range kwArts {
		key := CanonicalNumero(a.Numero)
		if key == "" {
			continue
		}
		kwScore := clamp01(kwScores[key])
		if prev, ok := merged[key]; ok {
			score := prev.Score
			if kwScore > score {
				score = kwScore
			}
			score = clamp01(score + agreementBonus)
			prev.Score = score
			prev.Article.Score = score
			prev.MatchType = MatchBoth
			merged[key] = prev
			continue
		}
		a.Score = kwScore
		merged[key] = SearchResult{Article: a, Score: kwScore, MatchType: MatchKeyword}
	}

	results := make([]SearchResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return numeroLess(results[i].Article.Numero, results[j].Article.Numero)
	})
	return results
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
