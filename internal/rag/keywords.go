package rag

import (
	"regexp"
	"sort"
	"strings"
)

const (
	keywordBaseScore = 0.70
	keywordTermBonus = 0.10
	keywordMaxScore  = 0.95
	directRefScore   = 0.90
)

// KeywordHit is a keyword-index candidate before fusion.
type KeywordHit struct {
	Numero string
	Score  float64
	Terms  []string
}

// KeywordIndex maps curated fiscal terminology to article numeros. Terms are
// stored normalized (lowercase, no diacritics); lookups go through
// NormalizeQuery so accents in the query are irrelevant.
type KeywordIndex struct {
	entries map[string][]string
}

func NewKeywordIndex() *KeywordIndex {
	idx := &KeywordIndex{entries: map[string][]string{}}
	for term, numeros := range defaultTaxonomy {
		idx.entries[NormalizeQuery(term)] = numeros
	}
	return idx
}

// Add registers extra taxonomy entries, mostly useful in tests.
func (idx *KeywordIndex) Add(term string, numeros ...string) {
	idx.entries[NormalizeQuery(term)] = append(idx.entries[NormalizeQuery(term)], numeros...)
}

var queryArticleRefRe = regexp.MustCompile(`(?i)\bart(?:icle)?s?\.?\s+\d{1,4}\s*(?:bis|ter|[a-z])?\b`)

// Lookup scans the query for taxonomy terms and explicit statutory
// cross-references and returns scored candidates, one per numero. Score is
// the base score plus a bonus per additional distinct matched term.
func (idx *KeywordIndex) Lookup(query string) []KeywordHit {
	q := NormalizeQuery(query)
	if q == "" {
		return nil
	}

	terms := map[string][]string{} // numero -> matched terms
	for term, numeros := range idx.entries {
		if strings.Contains(q, term) {
			for _, n := range numeros {
				terms[n] = append(terms[n], term)
			}
		}
	}

	hits := make([]KeywordHit, 0, len(terms))
	for numero, matched := range terms {
		score := keywordBaseScore + keywordTermBonus*float64(len(matched)-1)
		if score > keywordMaxScore {
			score = keywordMaxScore
		}
		sort.Strings(matched)
		hits = append(hits, KeywordHit{Numero: numero, Score: score, Terms: matched})
	}

	// A query citing an article directly is a near-certain candidate.
	for _, ref := range queryArticleRefRe.FindAllString(q, -1) {
		key := CanonicalNumero(ref)
		if key == "" {
			continue
		}
		numero := "Art. " + key
		if _, seen := terms[numero]; seen {
			continue
		}
		hits = append(hits, KeywordHit{Numero: numero, Score: directRefScore, Terms: []string{strings.ToLower(ref)}})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return numeroLess(hits[i].Numero, hits[j].Numero)
	})
	return hits
}

// defaultTaxonomy is the curated term → numeros mapping for the Code général
// des impôts. Numeros are shared across editions; version scoping happens at
// lookup time in the repository.
var defaultTaxonomy = map[string][]string{
	// Impôt sur les sociétés / impôt sur les bénéfices et profits
	"impôt sur les sociétés":    {"Art. 86A", "Art. 83"},
	"impot sur les benefices":   {"Art. 83", "Art. 86A"},
	"taux normal":               {"Art. 86A"},
	"bénéfice imposable":        {"Art. 84", "Art. 85"},
	"charges déductibles":       {"Art. 89"},
	"amortissement":             {"Art. 91"},
	"report déficitaire":        {"Art. 92"},
	"acomptes provisionnels":    {"Art. 117"},
	"impôt minimum forfaitaire": {"Art. 93"},

	// Impôt professionnel sur les rémunérations
	"ipr":                          {"Art. 47", "Art. 53"},
	"rémunérations":                {"Art. 47"},
	"impôt professionnel":          {"Art. 47", "Art. 53"},
	"barème progressif":            {"Art. 53"},
	"avantages en nature":          {"Art. 48"},
	"personnel expatrié":           {"Art. 56"},
	"indemnité de fin de carrière": {"Art. 49"},

	// TVA
	"tva":                        {"Art. 184", "Art. 192"},
	"taxe sur la valeur ajoutée": {"Art. 184", "Art. 192"},
	"assujetti":                  {"Art. 185"},
	"droit à déduction":          {"Art. 198"},
	"exonération":                {"Art. 194"},
	"crédit de tva":              {"Art. 201"},

	// Impôt foncier
	"impôt foncier":      {"Art. 1", "Art. 12"},
	"propriétés bâties":  {"Art. 1"},
	"superficie":         {"Art. 13"},
	"concession minière": {"Art. 14"},

	// Impôt sur les véhicules
	"véhicules": {"Art. 36"},
	"vignette":  {"Art. 36", "Art. 38"},

	// Procédures fiscales
	"déclaration":       {"Art. 104"},
	"pénalités":         {"Art. 126", "Art. 127"},
	"recouvrement":      {"Art. 130"},
	"réclamation":       {"Art. 135"},
	"contrôle fiscal":   {"Art. 121"},
	"taxation d'office": {"Art. 124"},
}
