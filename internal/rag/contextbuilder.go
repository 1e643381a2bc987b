package rag

import (
	"fmt"
	"strings"
)

const (
	maxArticleChars  = 2000
	contextSeparator = "\n----\n"
)

// BuildContext renders retrieved articles into the prompt context. Order is
// whatever the searcher produced; each article body is capped to keep the
// prompt bounded.
func BuildContext(results []SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString(contextSeparator)
		}
		a := r.Article
		b.WriteString(articleHeader(a))
		b.WriteString("\n")
		b.WriteString(truncateRunes(strings.TrimSpace(a.Contenu), maxArticleChars))
	}
	return b.String()
}

func articleHeader(a Article) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(a.Numero)
	if a.Titre != "" {
		b.WriteString(" — ")
		b.WriteString(oneLine(a.Titre))
	}
	b.WriteString("]")

	loc := structuralLocation(a)
	if loc != "" {
		b.WriteString(" (")
		b.WriteString(loc)
		b.WriteString(")")
	}
	fmt.Fprintf(&b, " (édition %s)", a.Version)
	return b.String()
}

func structuralLocation(a Article) string {
	parts := make([]string, 0, 3)
	if a.Tome != "" {
		parts = append(parts, a.Tome)
	}
	if a.Livre != "" {
		parts = append(parts, a.Livre)
	}
	if a.Chapitre != "" {
		parts = append(parts, a.Chapitre)
	}
	return strings.Join(parts, ", ")
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	return truncateRunes(s, 160)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
