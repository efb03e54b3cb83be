package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/newsrag/models"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{0.5}
	}
	return vecs, nil
}

type fakeRetriever struct {
	matches []models.RetrievalMatch
	err     error
	topK    int
}

func (f *fakeRetriever) Query(ctx context.Context, vector []float32, topK int) ([]models.RetrievalMatch, error) {
	f.topK = topK
	return f.matches, f.err
}

type fakeCompleter struct {
	lastSystem string
	lastUser   string
	reply      string
	err        error
}

func (f *fakeCompleter) Completion(ctx context.Context, system, user string) (string, error) {
	f.lastSystem = system
	f.lastUser = user
	return f.reply, f.err
}

func match(score float64, title, text string) models.RetrievalMatch {
	return models.RetrievalMatch{Score: score, Metadata: models.IndexMetadata{Title: title, Text: text}}
}

func newResponder(retriever *fakeRetriever, completer *fakeCompleter) *Responder {
	return &Responder{
		Embedder: &fakeEmbedder{},
		Index:    retriever,
		Complete: completer,
		TopK:     3,
		MinScore: 0.70,
	}
}

func TestRespondUsesMatchesAboveGate(t *testing.T) {
	retriever := &fakeRetriever{matches: []models.RetrievalMatch{
		match(0.82, "Election Results", "the election text"),
		match(0.65, "Sports Recap", "the sports text"),
	}}
	completer := &fakeCompleter{reply: "an answer"}

	answer, err := newResponder(retriever, completer).Respond(context.Background(), "who won the election?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if answer != "an answer" {
		t.Fatalf("expected model output verbatim, got %q", answer)
	}
	if retriever.topK != 3 {
		t.Fatalf("expected topK=3, got %d", retriever.topK)
	}
	if !strings.Contains(completer.lastUser, "the election text") {
		t.Fatalf("prompt missing passing match: %q", completer.lastUser)
	}
	if strings.Contains(completer.lastUser, "the sports text") {
		t.Fatalf("below-gate match leaked into prompt: %q", completer.lastUser)
	}
	if strings.Contains(completer.lastUser, NoContextMarker) {
		t.Fatalf("marker present despite passing match: %q", completer.lastUser)
	}
	if !strings.Contains(completer.lastUser, `"who won the election?"`) {
		t.Fatalf("prompt missing verbatim query: %q", completer.lastUser)
	}
}

func TestRespondGateIsStrictlyGreater(t *testing.T) {
	// a best score of exactly 0.70 must be treated as below the gate
	retriever := &fakeRetriever{matches: []models.RetrievalMatch{
		match(0.70, "Borderline", "borderline text"),
	}}
	completer := &fakeCompleter{reply: "refusal"}

	if _, err := newResponder(retriever, completer).Respond(context.Background(), "anything"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !strings.Contains(completer.lastUser, NoContextMarker) {
		t.Fatalf("expected no-context marker for boundary score, got %q", completer.lastUser)
	}
	if strings.Contains(completer.lastUser, "borderline text") {
		t.Fatalf("boundary match leaked into prompt: %q", completer.lastUser)
	}
}

func TestRespondNoMatchesUsesMarker(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &fakeCompleter{reply: "refusal"}

	if _, err := newResponder(retriever, completer).Respond(context.Background(), "anything"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !strings.Contains(completer.lastUser, NoContextMarker) {
		t.Fatalf("expected no-context marker, got %q", completer.lastUser)
	}
}

func TestRespondErrorsWrapSingleFailure(t *testing.T) {
	cases := []struct {
		name      string
		responder *Responder
	}{
		{"embed failure", &Responder{
			Embedder: &fakeEmbedder{err: errors.New("embed down")},
			Index:    &fakeRetriever{},
			Complete: &fakeCompleter{},
		}},
		{"retrieval failure", &Responder{
			Embedder: &fakeEmbedder{},
			Index:    &fakeRetriever{err: errors.New("index down")},
			Complete: &fakeCompleter{},
		}},
		{"completion failure", &Responder{
			Embedder: &fakeEmbedder{},
			Index:    &fakeRetriever{},
			Complete: &fakeCompleter{err: errors.New("model down")},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			answer, err := tc.responder.Respond(context.Background(), "q")
			if !errors.Is(err, models.ErrResponseGeneration) {
				t.Fatalf("expected ErrResponseGeneration, got %v", err)
			}
			if answer != "" {
				t.Fatalf("expected no partial answer, got %q", answer)
			}
		})
	}
}
