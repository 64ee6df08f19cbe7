package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/editalindex/pkg/types"
)

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"controle", "de", "leis"}, queryTerms("Controle de  LEIS, controle! a"))
	assert.Empty(t, queryTerms(" ? "))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `10\%\_a\\b`, escapeLike(`10%_a\b`))
}

func TestSearchContentsText(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	defer store.Close()

	insert := func(key, title, body string) {
		_, err := store.InsertContent(ctx, &types.IndexedContent{Kind: types.KindSummary, Title: title, Body: body, SourceKey: key})
		require.NoError(t, err)
	}
	insert("a", "Controle de constitucionalidade", "O controle difuso e o controle concentrado.")
	insert("b", "Crédito tributário", "Lançamento e constituição do crédito.")
	insert("c", "Atos administrativos", "Controle dos atos pela administração.")
	insert("d", "Percentuais", "Alíquota de 100% sobre a base.")

	results, err := store.SearchContentsText(ctx, "controle", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Content.SourceKey, "title hits and repeated terms rank first")
	assert.Equal(t, "c", results[1].Content.SourceKey)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
	assert.Nil(t, results[0].Content.Embedding)

	results, err = store.SearchContentsText(ctx, "controle", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// Wildcards in the query are literal
	results, err = store.SearchContentsText(ctx, "0%", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d", results[0].Content.SourceKey)

	results, err = store.SearchContentsText(ctx, "?", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
