package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// vectorHit is a content ID with its cosine similarity to the query
type vectorHit struct {
	ContentID       string
	SimilarityScore float64
}

// searchVector performs vector similarity search using cosine similarity.
// Contents without an embedding are never returned.
func searchVector(ctx context.Context, q querier, queryVector []float32, limit int) ([]vectorHit, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	// Use SQL-side distance when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, queryVector, limit)
	}
	return searchVectorFallback(ctx, q, queryVector, limit)
}

// searchVectorOptimized uses the sqlite-vec extension for SQL-based search
func searchVectorOptimized(ctx context.Context, q querier, queryVector []float32, limit int) ([]vectorHit, error) {
	if limit <= 0 {
		return []vectorHit{}, nil
	}

	// vec_distance_cosine returns distance (lower is better)
	rows, err := q.QueryContext(ctx, `
		SELECT id, 1.0 - vec_distance_cosine(embedding, ?) AS similarity
		FROM contents
		WHERE embedding IS NOT NULL AND length(embedding) = ?
		ORDER BY similarity DESC
		LIMIT ?
	`, serializeVector(queryVector), len(queryVector)*4, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]vectorHit, 0, limit)
	for rows.Next() {
		var hit vectorHit
		if err := rows.Scan(&hit.ContentID, &hit.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, hit)
	}
	return results, rows.Err()
}

// searchVectorFallback computes cosine similarity in Go. This is used when
// the sqlite-vec extension is not available (purego builds).
func searchVectorFallback(ctx context.Context, q querier, queryVector []float32, limit int) ([]vectorHit, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, embedding FROM contents WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		var id string
		var vectorBlob []byte
		if err := rows.Scan(&id, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		candidates = append(candidates, candidate{id: id, score: cosineSimilarity(queryVector, vector)})
	}

	return candidates, rows.Err()
}

// buildVectorResults keeps the top limit candidates; limit <= 0 keeps all
func buildVectorResults(candidates []candidate, limit int) []vectorHit {
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]vectorHit, limit)
	for i := 0; i < limit; i++ {
		results[i] = vectorHit{
			ContentID:       candidates[i].id,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
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

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a content row with its similarity score
type candidate struct {
	id    string
	score float64
}

// sortCandidates sorts by score descending; ties keep ID order so results
// are deterministic
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
