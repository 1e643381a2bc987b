package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContext_HeaderAndSeparator(t *testing.T) {
	results := []SearchResult{
		{Article: Article{
			Numero:   "Art. 86A",
			Titre:    "Taux de l'impôt",
			Contenu:  "Le taux normal est fixé à 30 %.",
			Version:  "2026",
			Tome:     "Tome I",
			Livre:    "Livre II",
			Chapitre: "Chapitre 3",
		}},
		{Article: Article{
			Numero:  "Art. 92",
			Contenu: "Le déficit d'un exercice est déductible.",
			Version: "2026",
		}},
	}

	out := BuildContext(results)

	assert.Contains(t, out, "[Art. 86A — Taux de l'impôt] (Tome I, Livre II, Chapitre 3) (édition 2026)")
	assert.Contains(t, out, "[Art. 92] (édition 2026)")
	assert.Contains(t, out, "Le taux normal est fixé à 30 %.")

	parts := strings.Split(out, contextSeparator)
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "[Art. 86A"))
	assert.True(t, strings.HasPrefix(parts[1], "[Art. 92"))
}

func TestBuildContext_BodyCapped(t *testing.T) {
	long := strings.Repeat("a", maxArticleChars+500)
	results := []SearchResult{
		{Article: Article{Numero: "Art. 5", Contenu: long, Version: "2026"}},
	}

	out := BuildContext(results)
	_, body, found := strings.Cut(out, "\n")
	require.True(t, found)
	assert.Len(t, []rune(body), maxArticleChars+3)
	assert.True(t, strings.HasSuffix(body, "..."))
}

func TestBuildContext_PreservesSearcherOrder(t *testing.T) {
	results := []SearchResult{
		{Article: Article{Numero: "Art. 92", Contenu: "x", Version: "2026"}},
		{Article: Article{Numero: "Art. 4A", Contenu: "y", Version: "2026"}},
	}

	out := BuildContext(results)
	assert.Less(t, strings.Index(out, "Art. 92"), strings.Index(out, "Art. 4A"))
}

func TestBuildContext_Empty(t *testing.T) {
	assert.Empty(t, BuildContext(nil))
}

func TestArticleHeader_MultilineTitleFlattened(t *testing.T) {
	h := articleHeader(Article{Numero: "Art. 7", Titre: "Ligne un\nligne deux", Version: "2025"})
	assert.Equal(t, "[Art. 7 — Ligne un ligne deux] (édition 2025)", h)
}
