package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(repo *fakeRepo, chat *fakeChat) *Orchestrator {
	analyzer := &IntentAnalyzer{Now: func() time.Time {
		return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	}}
	return NewOrchestrator(repo, newTestSearcher(repo), analyzer, chat, 3)
}

func collect(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []StreamEvent) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func seededRepo() *fakeRepo {
	repo := newFakeRepo()
	for _, a := range corpus2026() {
		repo.addArticle(a)
	}
	repo.vectorResults["2026"] = []Article{
		scored(corpus2026()[2], 0.85), // Art. 86A
		scored(corpus2026()[1], 0.60),
	}
	return repo
}

func TestStream_EventOrdering(t *testing.T) {
	repo := seededRepo()
	chat := &fakeChat{deltas: []StreamDelta{
		{Text: "Le taux normal est de "},
		{Text: "30 % (Art. 86A)."},
		{Usage: &TokenUsage{PromptTokens: 120, OutputTokens: 15}},
	}}
	o := newTestOrchestrator(repo, chat)

	events := collect(t, o.Stream(context.Background(), ChatRequest{
		ConversationID: "conv-1",
		UserID:         "u-1",
		Query:          "Quel est le taux normal de l'impôt sur les sociétés ?",
	}))

	assert.Equal(t,
		[]EventType{EventStart, EventChunk, EventChunk, EventCitations, EventDone},
		eventTypes(events),
	)

	last := events[len(events)-1]
	require.NotNil(t, last.Metrics)
	assert.Equal(t, 120, last.Metrics.PromptTokens)
	assert.Equal(t, 15, last.Metrics.OutputTokens)
	assert.Equal(t, "fake-model", last.Metrics.Model)
}

func TestStream_VerifiedCitationFromRetrievedSet(t *testing.T) {
	repo := seededRepo()
	chat := &fakeChat{deltas: []StreamDelta{{Text: "Selon l'article 86A, le taux est de 30 %."}}}
	o := newTestOrchestrator(repo, chat)

	events := collect(t, o.Stream(context.Background(), ChatRequest{
		UserID: "u-1",
		Query:  "Quel est le taux normal de l'impôt sur les sociétés ?",
	}))

	var citations []Citation
	for _, ev := range events {
		if ev.Type == EventCitations {
			citations = ev.Citations
		}
	}
	require.Len(t, citations, 1)
	assert.Equal(t, "Art. 86A", citations[0].ArticleNumber)
	assert.True(t, citations[0].Verified)
}

func TestStream_HallucinatedCitationFlagged(t *testing.T) {
	repo := seededRepo()
	chat := &fakeChat{deltas: []StreamDelta{{Text: "Voir l'article 999 du code."}}}
	o := newTestOrchestrator(repo, chat)

	events := collect(t, o.Stream(context.Background(), ChatRequest{
		UserID: "u-1",
		Query:  "Quel est le taux normal de l'impôt sur les sociétés ?",
	}))

	var citations []Citation
	for _, ev := range events {
		if ev.Type == EventCitations {
			citations = ev.Citations
		}
	}
	require.Len(t, citations, 1)
	assert.False(t, citations[0].Verified)
	assert.Empty(t, citations[0].Excerpt)
}

func TestStream_GreetingShortCircuit(t *testing.T) {
	repo := seededRepo()
	chat := &fakeChat{}
	o := newTestOrchestrator(repo, chat)

	events := collect(t, o.Stream(context.Background(), ChatRequest{
		ConversationID: "conv-1",
		UserID:         "u-1",
		Query:          "Bonjour !",
	}))

	assert.Equal(t, []EventType{EventStart, EventChunk, EventDone}, eventTypes(events))
	assert.Equal(t, greetingReplyFR, events[1].Text)

	// No retrieval, no model call; the turn is still persisted.
	assert.Zero(t, repo.similarCalls)
	assert.Zero(t, chat.calls)
	require.Len(t, repo.messages, 2)
	assert.Equal(t, "user", repo.messages[0].Role)
	assert.Equal(t, "assistant", repo.messages[1].Role)
}

func TestStream_EmptyQuery(t *testing.T) {
	o := newTestOrchestrator(newFakeRepo(), &fakeChat{})

	events := collect(t, o.Stream(context.Background(), ChatRequest{UserID: "u-1", Query: "   "}))
	assert.Equal(t, []EventType{EventStart, EventError}, eventTypes(events))
}

func TestStream_UpstreamDeltaErrorSkipsPersistence(t *testing.T) {
	repo := seededRepo()
	chat := &fakeChat{deltas: []StreamDelta{
		{Text: "Le taux"},
		{Err: errPermanent},
	}}
	o := newTestOrchestrator(repo, chat)

	events := collect(t, o.Stream(context.Background(), ChatRequest{
		ConversationID: "conv-1",
		UserID:         "u-1",
		Query:          "Quel est le taux normal de l'impôt sur les sociétés ?",
	}))

	assert.Equal(t, EventError, events[len(events)-1].Type)
	assert.Empty(t, repo.messages)
}

func TestStream_OpenErrorSurfacesAsErrorEvent(t *testing.T) {
	repo := seededRepo()
	chat := &fakeChat{openErr: errPermanent}
	o := newTestOrchestrator(repo, chat)

	events := collect(t, o.Stream(context.Background(), ChatRequest{
		UserID: "u-1",
		Query:  "Quel est le taux normal de l'impôt sur les sociétés ?",
	}))

	assert.Equal(t, EventError, events[len(events)-1].Type)
	assert.Equal(t, 1, chat.calls) // permanent errors are not retried
}

func TestStream_PersistsBothHalvesOfTurn(t *testing.T) {
	repo := seededRepo()
	chat := &fakeChat{deltas: []StreamDelta{{Text: "Le taux est de 30 % (Art. 86A)."}}}
	o := newTestOrchestrator(repo, chat)

	collect(t, o.Stream(context.Background(), ChatRequest{
		ConversationID: "conv-1",
		UserID:         "u-1",
		Query:          "Quel est le taux normal de l'impôt sur les sociétés ?",
	}))

	require.Len(t, repo.messages, 2)
	user, assistant := repo.messages[0], repo.messages[1]
	assert.Equal(t, "user", user.Role)
	assert.Empty(t, user.Citations)
	assert.Equal(t, "assistant", assistant.Role)
	assert.NotEmpty(t, assistant.Citations)
	require.NotNil(t, assistant.Metrics)
	assert.Equal(t, "fake-model", assistant.Metrics.Model)
}

func TestStream_NoConversationIDSkipsPersistence(t *testing.T) {
	repo := seededRepo()
	chat := &fakeChat{deltas: []StreamDelta{{Text: "Le taux est de 30 %."}}}
	o := newTestOrchestrator(repo, chat)

	events := collect(t, o.Stream(context.Background(), ChatRequest{
		UserID: "u-1",
		Query:  "Quel est le taux normal de l'impôt sur les sociétés ?",
	}))

	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.Empty(t, repo.messages)
}

func TestStream_ComparisonSearchesBothEditions(t *testing.T) {
	repo := seededRepo()
	art2025 := Article{Numero: "Art. 86A", Titre: "Taux de l'impôt", Contenu: "Le taux normal est fixé à 35 %.", Version: "2025"}
	repo.addArticle(art2025)
	repo.vectorResults["2025"] = []Article{scored(art2025, 0.80)}

	chat := &fakeChat{deltas: []StreamDelta{{Text: "Le taux passe de 35 % à 30 % (Art. 86A)."}}}
	o := newTestOrchestrator(repo, chat)

	events := collect(t, o.Stream(context.Background(), ChatRequest{
		UserID: "u-1",
		Query:  "Quelle est la différence de taux IS entre 2025 et 2026 ?",
	}))

	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.Equal(t, 2, repo.similarCalls)
}

func TestStream_HistoryFailureDegrades(t *testing.T) {
	repo := seededRepo()
	repo.historyErr = errPermanent
	chat := &fakeChat{deltas: []StreamDelta{{Text: "Le taux est de 30 %."}}}
	o := newTestOrchestrator(repo, chat)

	events := collect(t, o.Stream(context.Background(), ChatRequest{
		ConversationID: "conv-1",
		UserID:         "u-1",
		Query:          "Quel est le taux normal de l'impôt sur les sociétés ?",
	}))

	assert.Equal(t, EventDone, events[len(events)-1].Type)
}

func TestStream_CancellationStopsProducer(t *testing.T) {
	repo := seededRepo()
	chat := &fakeChat{deltas: []StreamDelta{{Text: "a"}, {Text: "b"}, {Text: "c"}}}
	o := newTestOrchestrator(repo, chat)

	ctx, cancel := context.WithCancel(context.Background())
	events := o.Stream(ctx, ChatRequest{
		ConversationID: "conv-1",
		UserID:         "u-1",
		Query:          "Quel est le taux normal de l'impôt sur les sociétés ?",
	})

	<-events // start
	cancel()

	for range events {
		// drain until the producer notices and closes
	}
	assert.Empty(t, repo.messages)
}
