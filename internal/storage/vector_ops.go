package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// globalScanCap bounds the embeddings compared in Go when no lexical
// candidates exist and the vector extension is unavailable.
const globalScanCap = 5000

// ListChunksNeedingEmbeddings returns chunks lacking a vector for model,
// lowest id first.
func (s *SQLiteStore) ListChunksNeedingEmbeddings(ctx context.Context, model string, limit int) ([]PendingChunk, error) {
	return s.ListChunksNeedingEmbeddingsAfter(ctx, model, 0, limit)
}

// ListChunksNeedingEmbeddingsAfter is the keyset-paginated form of
// ListChunksNeedingEmbeddings; only chunks with id > afterID are returned.
func (s *SQLiteStore) ListChunksNeedingEmbeddingsAfter(ctx context.Context, model string, afterID int64, limit int) ([]PendingChunk, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.content, c.heading_path
		FROM chunks c
		WHERE c.id > ?
		  AND NOT EXISTS (
			SELECT 1 FROM embeddings e WHERE e.chunk_id = c.id AND e.model = ?
		  )
		ORDER BY c.id
		LIMIT ?
	`, afterID, model, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pending []PendingChunk
	for rows.Next() {
		var p PendingChunk
		if err := rows.Scan(&p.ChunkID, &p.Content, &p.HeadingPath); err != nil {
			return nil, fmt.Errorf("failed to scan pending chunk: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// UpsertEmbedding stores the vector of a chunk for model, replacing any
// previous one. Returns ErrNotFound if the chunk no longer exists.
func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, chunkID int64, vector []float32, dim int, model string) error {
	if len(vector) == 0 || len(vector) != dim {
		return fmt.Errorf("%w: length %d, dimension %d", ErrInvalidVector, len(vector), dim)
	}
	return s.withTx(ctx, func(q querier) error {
		var exists int
		err := q.QueryRowContext(ctx, "SELECT 1 FROM chunks WHERE id = ?", chunkID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("chunk %d: %w", chunkID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO embeddings (chunk_id, model, dimension, vector, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(chunk_id, model) DO UPDATE SET
				dimension = excluded.dimension,
				vector = excluded.vector,
				created_at = excluded.created_at
		`, chunkID, model, dim, serializeVector(vector), time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to upsert embedding: %w", err)
		}
		return nil
	})
}

// GetEmbeddings returns the stored vectors for model keyed by chunk id.
// Chunks without a vector are absent from the map.
func (s *SQLiteStore) GetEmbeddings(ctx context.Context, chunkIDs []int64, model string) (map[int64][]float32, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	vectors := make(map[int64][]float32, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return vectors, nil
	}

	placeholders, args := inClause(chunkIDs)
	args = append(args, model)
	rows, err := db.QueryContext(ctx,
		"SELECT chunk_id, vector FROM embeddings WHERE chunk_id IN ("+placeholders+") AND model = ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vectors[id] = deserializeVector(blob)
	}
	return vectors, rows.Err()
}

// NearestEmbeddings returns up to limit chunks whose vectors for model are
// most similar to query, best first.
func (s *SQLiteStore) NearestEmbeddings(ctx context.Context, model string, query []float32, limit int) ([]ScoredChunk, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if len(query) == 0 || limit <= 0 {
		return nil, nil
	}
	if VectorExtensionAvailable {
		return nearestOptimized(ctx, db, model, query, limit)
	}
	return nearestFallback(ctx, db, model, query, limit)
}

// nearestOptimized uses sqlite-vec to rank inside the database.
func nearestOptimized(ctx context.Context, db *sql.DB, model string, query []float32, limit int) ([]ScoredChunk, error) {
	blob, err := encodeQueryVector(query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query vector: %w", err)
	}
	// vec_distance_cosine returns distance (lower is better)
	rows, err := db.QueryContext(ctx, `
		SELECT chunk_id, vector, 1.0 - vec_distance_cosine(vector, ?) AS similarity
		FROM embeddings
		WHERE model = ? AND dimension = ?
		ORDER BY similarity DESC
		LIMIT ?
	`, blob, model, len(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]ScoredChunk, 0, limit)
	for rows.Next() {
		var (
			sc  ScoredChunk
			raw []byte
		)
		if err := rows.Scan(&sc.ChunkID, &raw, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		sc.Vector = deserializeVector(raw)
		results = append(results, sc)
	}
	return results, rows.Err()
}

// nearestFallback compares a capped set of recent vectors in Go.
func nearestFallback(ctx context.Context, db *sql.DB, model string, query []float32, limit int) ([]ScoredChunk, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT chunk_id, vector
		FROM embeddings
		WHERE model = ? AND dimension = ?
		ORDER BY id DESC
		LIMIT ?
	`, model, len(query), globalScanCap)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []ScoredChunk
	for rows.Next() {
		var (
			sc  ScoredChunk
			raw []byte
		)
		if err := rows.Scan(&sc.ChunkID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		sc.Vector = deserializeVector(raw)
		sc.Similarity = cosineSimilarity(query, sc.Vector)
		candidates = append(candidates, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes cosine similarity over the common prefix of a
// and b. A zero vector yields 0.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dotProduct, normA, normB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineSimilarity is the similarity used by vector retrieval
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
