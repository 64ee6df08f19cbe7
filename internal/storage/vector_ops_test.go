package storage

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeVectorRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.125e-5}
	blob := serializeVector(in)
	assert.Len(t, blob, len(in)*4)
	assert.Equal(t, in, deserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSortCandidatesDeterministic(t *testing.T) {
	candidates := []candidate{
		{id: "c", score: 0.5},
		{id: "a", score: 0.9},
		{id: "b", score: 0.5},
	}
	sortCandidates(candidates)
	assert.Equal(t, []string{"a", "b", "c"}, []string{candidates[0].id, candidates[1].id, candidates[2].id})
}

func TestBuildVectorResultsLimit(t *testing.T) {
	candidates := []candidate{{id: "a", score: 1}, {id: "b", score: 0.5}}
	assert.Len(t, buildVectorResults(candidates, 1), 1)
	assert.Len(t, buildVectorResults(candidates, 0), 2)
	assert.Len(t, buildVectorResults(candidates, 10), 2)
}

func seedVectors(t *testing.T, db *sql.DB) {
	t.Helper()
	vectors := map[string][]float32{
		"c1": {1, 0, 0},
		"c2": {0.9, 0.1, 0},
		"c3": {0, 1, 0},
		"c4": {1, 0}, // wrong dimension
	}
	for id, v := range vectors {
		_, err := db.Exec(`INSERT INTO contents (id, kind, title, body, source_key, embedding, created_at)
			VALUES (?, 'SUMMARY', ?, 'body', ?, ?, 0)`, id, id, "key-"+id, serializeVector(v))
		require.NoError(t, err)
	}
	_, err := db.Exec(`INSERT INTO contents (id, kind, title, body, source_key, created_at)
		VALUES ('c5', 'SUMMARY', 'c5', 'body', 'key-c5', 0)`)
	require.NoError(t, err)
}

func TestSearchVectorFallback(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()
	seedVectors(t, s.db)

	hits, err := searchVectorFallback(context.Background(), s.db, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3, "mismatched dimensions and missing embeddings are skipped")
	assert.Equal(t, "c1", hits[0].ContentID)
	assert.Equal(t, "c2", hits[1].ContentID)
	assert.Equal(t, "c3", hits[2].ContentID)
	assert.InDelta(t, 1.0, hits[0].SimilarityScore, 1e-6)
}

// TestVectorSearchOptimization verifies that the SQL search ranks like the
// Go fallback
func TestVectorSearchOptimization(t *testing.T) {
	if !VectorExtensionAvailable {
		t.Skip("Skipping test: sqlite-vec extension not available")
	}

	s := setupTestDB(t)
	defer s.Close()
	seedVectors(t, s.db)

	ctx := context.Background()
	query := []float32{1, 0, 0}
	for _, limit := range []int{1, 2, 10} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			fast, err := searchVectorOptimized(ctx, s.db, query, limit)
			require.NoError(t, err)
			slow, err := searchVectorFallback(ctx, s.db, query, limit)
			require.NoError(t, err)
			require.Equal(t, len(slow), len(fast))
			for i := range fast {
				assert.Equal(t, slow[i].ContentID, fast[i].ContentID)
				assert.InDelta(t, slow[i].SimilarityScore, fast[i].SimilarityScore, 1e-4)
			}
		})
	}
}
