package rag

import (
	"strings"
	"time"
)

const (
	editionPrevious = 2025
	editionCurrent  = 2026
)

// editionCutoff is when the 2026 edition becomes the default for queries that
// name no edition at all.
var editionCutoff = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultEditionPolicy resolves the edition for queries with no usable
// edition marker. The clock dependency is explicit so tests can pin it.
func DefaultEditionPolicy(now time.Time) int {
	if now.Before(editionCutoff) {
		return editionPrevious
	}
	return editionCurrent
}

var (
	markersPrevious = []string{
		"2025",
		"ancien regime",
		"ancienne edition",
		"ancienne loi",
		"avant la reforme",
		"edition precedente",
		"annee derniere",
	}
	markersCurrent = []string{
		"2026",
		"nouveau regime",
		"nouvelle edition",
		"nouvelle loi",
		"apres la reforme",
		"reforme fiscale",
		"loi de finances",
	}
	markersComparison = []string{
		"difference",
		"comparer",
		"comparaison",
		"comparatif",
		"changement",
		"evolution",
		"qu'est-ce qui change",
		"avant et apres",
		"versus",
		" vs ",
	}
)

// domainTable is scanned in order; the first domain with a matching keyword
// wins. First-match-wins is a deliberate simplification over best-match.
var domainTable = []struct {
	domain   Domain
	keywords []string
}{
	{DomainIS, []string{"impot sur les societes", "impot sur les benefices", "societe", "benefice", "is "}},
	{DomainIPR, []string{"ipr", "remuneration", "salaire", "impot professionnel", "employeur"}},
	{DomainTVA, []string{"tva", "taxe sur la valeur ajoutee", "assujetti", "deduction de la taxe"}},
	{DomainFoncier, []string{"foncier", "proprietes baties", "superficie", "terrain"}},
	{DomainVehicules, []string{"vehicule", "vignette", "automobile"}},
	{DomainProcedures, []string{"declaration", "penalite", "recouvrement", "reclamation", "controle fiscal", "taxation d'office"}},
}

// IntentAnalyzer classifies a query's target edition, comparison intent and
// fiscal domain. Pure lexical matching, no I/O.
type IntentAnalyzer struct {
	Now func() time.Time
}

func NewIntentAnalyzer() *IntentAnalyzer {
	return &IntentAnalyzer{Now: time.Now}
}

func (a *IntentAnalyzer) Analyze(query string) QueryIntent {
	q := NormalizeQuery(query)

	var detected []string
	scorePrev := countMarkers(q, markersPrevious, &detected)
	scoreCur := countMarkers(q, markersCurrent, &detected)
	scoreCmp := countMarkers(q, markersComparison, &detected)

	// Both edition years written out is always a comparison, whatever the
	// marker counts say.
	isComparison := scoreCmp > 0 ||
		(strings.Contains(q, "2025") && strings.Contains(q, "2026"))

	var targetYear *int
	if !isComparison {
		switch {
		case scorePrev > scoreCur:
			y := editionPrevious
			targetYear = &y
		case scoreCur > scorePrev:
			y := editionCurrent
			targetYear = &y
		default:
			y := DefaultEditionPolicy(a.Now())
			targetYear = &y
		}
	}

	var domain Domain
	for _, entry := range domainTable {
		for _, kw := range entry.keywords {
			if strings.Contains(q, kw) {
				domain = entry.domain
				detected = append(detected, kw)
				break
			}
		}
		if domain != "" {
			break
		}
	}

	confidence := 0.5 + 0.1*float64(len(detected))
	if confidence > 0.9 {
		confidence = 0.9
	}

	return QueryIntent{
		TargetYear:       targetYear,
		IsComparison:     isComparison,
		Domain:           domain,
		Confidence:       confidence,
		DetectedKeywords: detected,
	}
}

func countMarkers(q string, markers []string, detected *[]string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(q, m) {
			n++
			*detected = append(*detected, m)
		}
	}
	return n
}
