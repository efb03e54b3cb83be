package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/newsrag/models"
)

var (
	articlesUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsrag_ingest_articles_upserted_total",
		Help: "Number of articles successfully upserted into the vector index.",
	})
	batchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsrag_ingest_batch_failures_total",
		Help: "Number of ingestion batches that failed to embed or upsert.",
	})
)

// Fetcher yields a bounded article list; fetch failures are absorbed upstream.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) []models.Article
}

// Embedder produces one vector per input text, order-preserving.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Upserter writes index entries, idempotent per entry id.
type Upserter interface {
	Upsert(ctx context.Context, entries []models.IndexEntry) error
}

// Stats summarizes one ingestion run.
type Stats struct {
	Fetched       int
	Skipped       int
	Upserted      int
	FailedBatches int
}

// Pipeline populates the vector index from a feed in fixed-size batches,
// strictly sequentially, with a delay between batches to respect provider
// rate limits. A failing batch is logged and skipped; it never aborts the run.
type Pipeline struct {
	Fetcher    Fetcher
	Embedder   Embedder
	Index      Upserter
	BatchSize  int
	BatchDelay time.Duration
	Logger     *log.Logger
}

type pair struct {
	article models.Article
	text    string
}

// Run attempts every batch exactly once and reports what happened. The only
// error it returns is context cancellation.
func (p *Pipeline) Run(ctx context.Context, feedURL string) (Stats, error) {
	logger := p.logger()
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	var stats Stats
	articles := p.Fetcher.Fetch(ctx, feedURL)
	stats.Fetched = len(articles)
	if len(articles) == 0 {
		logger.Printf("no articles fetched from %s, nothing to ingest", feedURL)
		return stats, nil
	}

	for start := 0; start < len(articles); start += batchSize {
		end := start + batchSize
		if end > len(articles) {
			end = len(articles)
		}
		batch := articles[start:end]

		// Filter and pair in a single pass so the embedding response
		// stays index-aligned with the surviving articles.
		pairs := make([]pair, 0, len(batch))
		for _, a := range batch {
			text := strings.TrimSpace(a.ContentSnippet)
			if text == "" {
				stats.Skipped++
				continue
			}
			pairs = append(pairs, pair{article: a, text: text})
		}
		if len(pairs) == 0 {
			logger.Printf("batch %d-%d: no articles with content, skipping", start, end-1)
		} else if err := p.ingestBatch(ctx, pairs); err != nil {
			stats.FailedBatches++
			batchFailures.Inc()
			logger.Printf("batch %d-%d failed: %v", start, end-1, err)
		} else {
			stats.Upserted += len(pairs)
			articlesUpserted.Add(float64(len(pairs)))
			logger.Printf("batch %d-%d: upserted %d articles", start, end-1, len(pairs))
		}

		if end < len(articles) && p.BatchDelay > 0 {
			if err := sleep(ctx, p.BatchDelay); err != nil {
				return stats, err
			}
		}
	}

	logger.Printf("ingestion complete: %+v", stats)
	return stats, ctx.Err()
}

func (p *Pipeline) ingestBatch(ctx context.Context, pairs []pair) error {
	texts := make([]string, len(pairs))
	for i, pr := range pairs {
		texts[i] = pr.text
	}

	vectors, err := p.Embedder.CreateEmbedding(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(pairs) {
		return fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(pairs), len(vectors))
	}

	entries := make([]models.IndexEntry, len(pairs))
	for i, pr := range pairs {
		id := pr.article.ID
		if id == "" {
			id = pr.article.Link
		}
		entries[i] = models.IndexEntry{
			ID:     id,
			Vector: vectors[i],
			Metadata: models.IndexMetadata{
				Text:  pr.text,
				Title: pr.article.Title,
				Link:  pr.article.Link,
			},
		}
	}
	if err := p.Index.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

// RunOnSchedule repeats Run on a cron schedule until the context is canceled.
// Runs never overlap: the next run is scheduled only after the current one
// finishes.
func (p *Pipeline) RunOnSchedule(ctx context.Context, feedURL string, expr *cronexpr.Expression) error {
	logger := p.logger()
	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			return fmt.Errorf("cron expression yields no future run")
		}
		logger.Printf("next ingestion run at %s", next.Format(time.RFC3339))
		if err := sleep(ctx, time.Until(next)); err != nil {
			return err
		}
		if _, err := p.Run(ctx, feedURL); err != nil {
			return err
		}
	}
}

func (p *Pipeline) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
