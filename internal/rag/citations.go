package rag

import (
	"regexp"
	"sort"
	"strings"
)

const maxExcerptChars = 300

// citationListRe captures an article reference together with any
// comma/"et"-joined continuation: "article 86", "Art. 4A",
// "articles 3, 12 et 46bis". A single-letter suffix must be attached to the
// number, otherwise the "e" of a following "et" would be read as a suffix.
var citationListRe = regexp.MustCompile(`(?i)\bart(?:icle)?s?\.?\s+(\d{1,4}(?:\s?(?:bis|ter)\b|[a-z]\b)?(?:\s*(?:,|\bet\b)\s*\d{1,4}(?:\s?(?:bis|ter)\b|[a-z]\b)?)*)`)

var citationItemRe = regexp.MustCompile(`(?i)^(\d{1,4})\s*(bis|ter|[A-Za-z])?$`)

// ExtractCitations scans generated text for article references and validates
// each against the articles retrieved for this turn. References that cannot
// be traced to the retrieved set are kept, flagged unverified, with an empty
// excerpt and a zero score; dropping them could hide a model citing a real
// article outside the top-K. Output is sorted by article number for stable
// display.
func ExtractCitations(modelText string, results []SearchResult) []Citation {
	keys := referencedKeys(modelText)
	if len(keys) == 0 {
		return nil
	}

	byNumero := make(map[string]SearchResult, len(results))
	for _, r := range results {
		if k := CanonicalNumero(r.Article.Numero); k != "" {
			byNumero[k] = r
		}
	}

	citations := make([]Citation, 0, len(keys))
	for _, key := range keys {
		if r, ok := byNumero[key]; ok {
			citations = append(citations, Citation{
				ArticleNumber: r.Article.Numero,
				Titre:         r.Article.Titre,
				Excerpt:       truncateRunes(strings.TrimSpace(r.Article.Contenu), maxExcerptChars),
				Score:         r.Score,
				Verified:      true,
			})
			continue
		}
		citations = append(citations, Citation{
			ArticleNumber: "Art. " + key,
			Excerpt:       "",
			Score:         0,
			Verified:      false,
		})
	}

	sort.Slice(citations, func(i, j int) bool {
		return numeroLess(citations[i].ArticleNumber, citations[j].ArticleNumber)
	})
	return citations
}

// referencedKeys returns the deduplicated canonical keys cited in the text,
// in first-appearance order.
func referencedKeys(text string) []string {
	var keys []string
	seen := map[string]bool{}

	for _, m := range citationListRe.FindAllStringSubmatch(text, -1) {
		for _, item := range splitRefList(m[1]) {
			im := citationItemRe.FindStringSubmatch(item)
			if im == nil {
				continue
			}
			key := im[1] + strings.ToUpper(im[2])
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}

var refListSplitRe = regexp.MustCompile(`(?i)\s*(?:,|\bet\b)\s*`)

func splitRefList(list string) []string {
	parts := refListSplitRe.Split(list, -1)
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
