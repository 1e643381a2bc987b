package rag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyzerAt(t *testing.T, now time.Time) *IntentAnalyzer {
	t.Helper()
	return &IntentAnalyzer{Now: func() time.Time { return now }}
}

func TestAnalyze_BothYearLiteralsForceComparison(t *testing.T) {
	a := analyzerAt(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	queries := []string{
		"Quelle est la différence entre 2025 et 2026 pour la TVA ?",
		"taux IS 2025 versus 2026",
		"en 2026 par rapport à 2025",
	}
	for _, q := range queries {
		intent := a.Analyze(q)
		assert.True(t, intent.IsComparison, "query %q", q)
		assert.Nil(t, intent.TargetYear, "query %q", q)
	}
}

func TestAnalyze_ComparisonMarkers(t *testing.T) {
	a := analyzerAt(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	intent := a.Analyze("Qu'est-ce qui change avec la réforme, comparaison des barèmes ?")
	assert.True(t, intent.IsComparison)
	assert.Nil(t, intent.TargetYear)
}

func TestAnalyze_TargetYearFromMarkers(t *testing.T) {
	a := analyzerAt(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	intent := a.Analyze("Quel est le barème IPR prévu par la nouvelle loi ?")
	require.NotNil(t, intent.TargetYear)
	assert.Equal(t, 2026, *intent.TargetYear)
	assert.False(t, intent.IsComparison)

	intent = a.Analyze("taux applicable en 2025 pour l'impôt foncier")
	require.NotNil(t, intent.TargetYear)
	assert.Equal(t, 2025, *intent.TargetYear)
}

func TestAnalyze_TieFallsBackToClockPolicy(t *testing.T) {
	// No edition marker at all: strictly a tie at zero.
	q := "Quel est le taux de la TVA ?"

	before := analyzerAt(t, time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)).Analyze(q)
	require.NotNil(t, before.TargetYear)
	assert.Equal(t, 2025, *before.TargetYear)

	after := analyzerAt(t, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)).Analyze(q)
	require.NotNil(t, after.TargetYear)
	assert.Equal(t, 2026, *after.TargetYear)
}

func TestDefaultEditionPolicy(t *testing.T) {
	assert.Equal(t, 2025, DefaultEditionPolicy(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2026, DefaultEditionPolicy(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAnalyze_DomainFirstMatchWins(t *testing.T) {
	a := analyzerAt(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		query  string
		domain Domain
	}{
		{"Quel est le taux normal de l'impôt sur les sociétés ?", DomainIS},
		{"Comment est calculé l'IPR sur mon salaire ?", DomainIPR},
		{"Quel est le taux de la TVA ?", DomainTVA},
		{"impôt foncier sur les propriétés bâties", DomainFoncier},
		{"vignette automobile", DomainVehicules},
		{"délai de réclamation après une taxation", DomainProcedures},
		{"quelle heure est-il", Domain("")},
	}
	for _, tc := range tests {
		intent := a.Analyze(tc.query)
		assert.Equal(t, tc.domain, intent.Domain, "query %q", tc.query)
	}
}

func TestAnalyze_Confidence(t *testing.T) {
	a := analyzerAt(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	// Nothing matched: floor.
	none := a.Analyze("quelle heure est-il")
	assert.InDelta(t, 0.5, none.Confidence, 1e-9)
	assert.Empty(t, none.DetectedKeywords)

	// One domain keyword.
	one := a.Analyze("le taux de la tva")
	assert.InDelta(t, 0.6, one.Confidence, 1e-9)
	assert.NotEmpty(t, one.DetectedKeywords)

	// Confidence is capped whatever the match count.
	many := a.Analyze("différence comparaison comparatif changement évolution 2025 2026 tva nouvelle loi réforme fiscale")
	assert.LessOrEqual(t, many.Confidence, 0.9)
}

func TestAnalyze_DeterministicWithPinnedClock(t *testing.T) {
	a := analyzerAt(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	q := "Quel est le taux normal de l'impôt sur les sociétés en 2026 ?"

	first := a.Analyze(q)
	second := a.Analyze(q)
	assert.Equal(t, first, second)
}
