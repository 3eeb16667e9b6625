package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"sentinel-edge/llm"
	"sentinel-edge/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReferenceRepository searches the reference_passages pgvector table
type ReferenceRepository struct {
	db *pgxpool.Pool
}

// NewReferenceRepository creates a new reference repository
func NewReferenceRepository(db *pgxpool.Pool) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// formatVector formats an embedding as a pgvector literal
func formatVector(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', 6, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// SearchSimilar returns the k passages closest to embedding by cosine distance
func (r *ReferenceRepository) SearchSimilar(ctx context.Context, embedding []float32, k int) ([]models.ReferenceMatch, error) {
	if len(embedding) != llm.EmbeddingDimensions {
		return nil, fmt.Errorf("embedding must be %d dimensions, got %d", llm.EmbeddingDimensions, len(embedding))
	}

	query := `
		SELECT id, category, content, source_document, embedding <=> $1::vector AS distance
		FROM reference_passages
		ORDER BY embedding <=> $1::vector
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, formatVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference passages: %w", err)
	}
	defer rows.Close()

	var matches []models.ReferenceMatch
	for rows.Next() {
		var m models.ReferenceMatch
		if err := rows.Scan(&m.ID, &m.Category, &m.Content, &m.Source, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan reference passage: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reference passages: %w", err)
	}
	return matches, nil
}

// InsertPassages writes passages in one batch
func (r *ReferenceRepository) InsertPassages(ctx context.Context, passages []models.ReferencePassage) error {
	if len(passages) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range passages {
		batch.Queue(`
			INSERT INTO reference_passages (category, source_document, chunk_index, content, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5::vector, $6)`,
			p.Category, p.SourceDocument, p.ChunkIndex, p.Content, formatVector(p.Embedding), p.Metadata,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := range passages {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert passage %d of %s: %w", i, passages[i].SourceDocument, err)
		}
	}
	return nil
}

// DeleteBySource removes every passage ingested from a source document
func (r *ReferenceRepository) DeleteBySource(ctx context.Context, source string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM reference_passages WHERE source_document = $1`, source)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of stored passages
func (r *ReferenceRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reference_passages`).Scan(&n)
	return n, err
}
