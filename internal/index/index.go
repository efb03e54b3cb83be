package index

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/newsrag/config"
	"github.com/mohammad-safakhou/newsrag/models"
)

// Index stores article embeddings in a Postgres pgvector column and answers
// top-K cosine similarity queries.
type Index struct {
	DB *sql.DB
}

// New opens a connection and verifies it with a ping.
func New(ctx context.Context, cfg config.PostgresConfig) (*Index, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Index{DB: db}, nil
}

// Upsert writes the entries in a single transaction, keyed by article id.
// Re-upserting an id overwrites the prior row.
func (ix *Index) Upsert(ctx context.Context, entries []models.IndexEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	tx, err := ix.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO articles (article_id, title, link, content, embedding, updated_at)
VALUES ($1,$2,$3,$4,$5::vector,NOW())
ON CONFLICT (article_id) DO UPDATE SET
  title = EXCLUDED.title,
  link = EXCLUDED.link,
  content = EXCLUDED.content,
  embedding = EXCLUDED.embedding,
  updated_at = NOW();
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range entries {
		if entry.ID == "" {
			err = fmt.Errorf("article id required")
			return err
		}
		var vectorLiteral string
		vectorLiteral, err = encodeVectorLiteral(entry.Vector)
		if err != nil {
			return err
		}
		if _, err = stmt.ExecContext(ctx, entry.ID, entry.Metadata.Title, entry.Metadata.Link, entry.Metadata.Text, vectorLiteral); err != nil {
			return err
		}
	}
	return nil
}

// Query returns at most topK matches ordered by descending similarity score.
// pgvector's <=> operator yields cosine distance; score = 1 - distance,
// clamped to [0,1].
func (ix *Index) Query(ctx context.Context, vector []float32, topK int) ([]models.RetrievalMatch, error) {
	if topK <= 0 {
		topK = 3
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := ix.DB.QueryContext(ctx, `
SELECT content, title, link, embedding <=> $1::vector AS distance
FROM articles
ORDER BY embedding <=> $1::vector
LIMIT $2
`, vecLiteral, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []models.RetrievalMatch
	for rows.Next() {
		var meta models.IndexMetadata
		var distance float64
		if err := rows.Scan(&meta.Text, &meta.Title, &meta.Link, &distance); err != nil {
			return nil, err
		}
		matches = append(matches, models.RetrievalMatch{
			Score:    clampScore(1 - distance),
			Metadata: meta,
		})
	}
	return matches, rows.Err()
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
