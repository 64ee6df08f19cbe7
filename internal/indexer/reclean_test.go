package indexer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/editalindex/internal/llm"
	"github.com/dshills/editalindex/internal/normalizer"
	"github.com/dshills/editalindex/internal/storage"
	"github.com/dshills/editalindex/pkg/types"
)

const dirtyBody = bodyLine + "\nwww.grancursosonline.com.br\n" + bodyLine

// fakeLLM returns a canned rewrite or error
type fakeLLM struct {
	mu       sync.Mutex
	calls    int
	response string
	err      error
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.response, f.err
}

func (f *fakeLLM) Name() string { return "fake" }

func insertContent(t *testing.T, store storage.Storage, key, body string) {
	t.Helper()
	created, err := store.InsertContent(context.Background(), &types.IndexedContent{
		Kind: types.KindSummary, Title: key, Body: body, SourceKey: key,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func bodyOf(t *testing.T, store storage.Storage, key string) string {
	t.Helper()
	c, err := store.GetContentBySourceKey(context.Background(), key)
	require.NoError(t, err)
	return c.Body
}

func TestReclean_RulePassWithoutModel(t *testing.T) {
	store := setupTestStorage(t)
	insertContent(t, store, "dirty", dirtyBody)
	insertContent(t, store, "clean", longBody())

	idx := New(Deps{Store: store})
	stats, err := idx.Reclean(context.Background(), RecleanOptions{BatchSize: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Checked)
	assert.Equal(t, 1, stats.Dirty)
	assert.Equal(t, 1, stats.Cleaned)
	assert.NotContains(t, bodyOf(t, store, "dirty"), "grancursosonline")
	assert.Equal(t, longBody(), bodyOf(t, store, "clean"))
}

func TestReclean_UsesRepairModel(t *testing.T) {
	store := setupTestStorage(t)
	insertContent(t, store, "dirty", dirtyBody)

	model := &fakeLLM{response: bodyLine + " " + bodyLine}
	idx := New(Deps{Store: store, Normalizer: normalizer.New(normalizer.Options{AI: model})})

	stats, err := idx.Reclean(context.Background(), RecleanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Cleaned)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, bodyLine+" "+bodyLine, bodyOf(t, store, "dirty"))
}

func TestReclean_DryRunLeavesBodies(t *testing.T) {
	store := setupTestStorage(t)
	insertContent(t, store, "dirty", dirtyBody)

	idx := New(Deps{Store: store})
	stats, err := idx.Reclean(context.Background(), RecleanOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dirty)
	assert.Zero(t, stats.Cleaned)
	assert.Equal(t, dirtyBody, bodyOf(t, store, "dirty"))
}

func TestReclean_StopsOnCapacityErrors(t *testing.T) {
	store := setupTestStorage(t)
	insertContent(t, store, "a", dirtyBody)
	insertContent(t, store, "b", dirtyBody)

	model := &fakeLLM{err: &llm.Error{Provider: "fake", Kind: llm.KindQuotaExceeded, Status: 402, Message: "credit balance too low"}}
	idx := New(Deps{Store: store, Normalizer: normalizer.New(normalizer.Options{AI: model})})

	stats, err := idx.Reclean(context.Background(), RecleanOptions{})
	require.ErrorIs(t, err, ErrCapacityExhausted)
	require.NotNil(t, stats)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, 1, stats.Errors)
	assert.NotEmpty(t, stats.StopID)
	assert.False(t, idx.lock.Held())
}

func TestReclean_ContinuesPastOtherErrors(t *testing.T) {
	store := setupTestStorage(t)
	insertContent(t, store, "a", dirtyBody)
	insertContent(t, store, "b", dirtyBody)

	model := &fakeLLM{err: &llm.Error{Provider: "fake", Kind: llm.KindTransient, Status: 500, Message: "boom"}}
	idx := New(Deps{Store: store, Normalizer: normalizer.New(normalizer.Options{AI: model})})

	stats, err := idx.Reclean(context.Background(), RecleanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls)
	assert.Equal(t, 2, stats.Errors)
	assert.Zero(t, stats.Cleaned)
}

func TestReclean_Limit(t *testing.T) {
	store := setupTestStorage(t)
	for _, key := range []string{"a", "b", "c"} {
		insertContent(t, store, key, dirtyBody)
	}

	idx := New(Deps{Store: store})
	stats, err := idx.Reclean(context.Background(), RecleanOptions{Limit: 2, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Checked)
}
