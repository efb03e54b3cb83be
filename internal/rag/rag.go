package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/newsrag/models"
)

// NoContextMarker replaces the retrieved context when nothing passes the
// relevance gate, so the model refuses instead of inventing an answer.
const NoContextMarker = "NO RELEVANT ARTICLES FOUND"

const systemPrompt = `You are a news assistant that answers questions using only the retrieved news articles provided as context.

Rules:
- If the user greets you or asks what you can do, respond briefly and invite a news question.
- When the context contains relevant articles, answer from them and cite the source articles by title.
- For broad or general questions, summarize the relevant articles instead of quoting them wholesale.
- If the context says "` + NoContextMarker + `" or does not cover the question, say you have no relevant articles on that topic and do not answer from outside knowledge.
- If the message mixes several questions, address each part in order.
- If the message is empty, gibberish, or not a question, ask the user to rephrase.
- Never invent articles, titles, or facts that are not in the context.`

// Retriever answers top-K similarity queries over the article index.
type Retriever interface {
	Query(ctx context.Context, vector []float32, topK int) ([]models.RetrievalMatch, error)
}

// Embedder is the single-query slice of the provider interface.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer produces the final answer text.
type Completer interface {
	Completion(ctx context.Context, system, user string) (string, error)
}

// Responder is the retrieval-augmented query pipeline: embed the question,
// retrieve the closest articles, gate them by relevance, and delegate the
// final answer to the language model.
type Responder struct {
	Embedder Embedder
	Index    Retriever
	Complete Completer

	// TopK is the number of matches requested, default 3.
	TopK int
	// MinScore is the relevance gate. Matches must score strictly greater
	// than MinScore to reach the prompt; a best match of exactly MinScore
	// is rejected.
	MinScore float64

	Logger *log.Logger
}

// Respond answers a user query. Any step failure surfaces as a single
// models.ErrResponseGeneration; no partial answer is returned.
func (r *Responder) Respond(ctx context.Context, query string) (string, error) {
	topK := r.TopK
	if topK <= 0 {
		topK = 3
	}

	vectors, err := r.Embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("%w: embed query: %v", models.ErrResponseGeneration, err)
	}
	if len(vectors) != 1 {
		return "", fmt.Errorf("%w: expected one query embedding, got %d", models.ErrResponseGeneration, len(vectors))
	}

	matches, err := r.Index.Query(ctx, vectors[0], topK)
	if err != nil {
		return "", fmt.Errorf("%w: retrieve context: %v", models.ErrResponseGeneration, err)
	}

	contextBlock := r.buildContext(matches)
	userPrompt := fmt.Sprintf("Context:\n%s\n\nPlease provide a comprehensive answer for this question: %q", contextBlock, query)

	answer, err := r.Complete.Completion(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: completion: %v", models.ErrResponseGeneration, err)
	}
	return answer, nil
}

// buildContext keeps only matches above the gate. Matches arrive ranked
// descending, so an empty result after filtering means the best match
// already failed the gate.
func (r *Responder) buildContext(matches []models.RetrievalMatch) string {
	var parts []string
	for _, m := range matches {
		if m.Score > r.MinScore {
			parts = append(parts, fmt.Sprintf("[%s] %s", m.Metadata.Title, m.Metadata.Text))
		}
	}
	if len(parts) == 0 {
		if r.Logger != nil {
			r.Logger.Printf("no matches above %.2f, answering without context", r.MinScore)
		}
		return NoContextMarker
	}
	return strings.Join(parts, "\n---\n")
}
