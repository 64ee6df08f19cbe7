package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/editalindex/internal/embedder"
	"github.com/dshills/editalindex/internal/extractor"
	"github.com/dshills/editalindex/internal/storage"
)

const bodyLine = "O controle de constitucionalidade verifica a compatibilidade das leis com a Constituição."

// mockEmbedder implements embedder.Embedder for testing
type mockEmbedder struct {
	dimension   int
	generateErr error
	callCount   int
	inputs      []string
	mu          sync.Mutex
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dimension: 8}
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generateErr != nil {
		return nil, m.generateErr
	}

	m.callCount++
	m.inputs = append(m.inputs, req.Text)
	vector := make([]float32, m.dimension)
	for i := range vector {
		vector[i] = 0.5
	}
	return &embedder.Embedding{Vector: vector, Dimension: m.dimension, Provider: "mock", Model: "test-v1"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	resp := &embedder.BatchEmbeddingResponse{Provider: "mock"}
	for _, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		resp.Embeddings = append(resp.Embeddings, emb)
	}
	return resp, nil
}

func (m *mockEmbedder) Dimension() int   { return m.dimension }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "test-v1" }
func (m *mockEmbedder) Close() error     { return nil }

func (m *mockEmbedder) getCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// textExtractor treats file bytes as already extracted text. Files whose
// content starts with "BROKEN" fail to extract.
type textExtractor struct{}

func (textExtractor) Extract(content []byte) (extractor.Result, error) {
	text := string(content)
	if strings.HasPrefix(text, "BROKEN") {
		return extractor.Result{}, extractor.ErrMalformedDocument
	}
	return extractor.Result{Text: text, Pages: 1, Usable: extractor.Usable(text, extractor.MinTextLength)}, nil
}

func setupTestStorage(t testing.TB) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestIndexer(t testing.TB, store storage.Storage, emb embedder.Embedder) *Indexer {
	return New(Deps{Store: store, Extractor: textExtractor{}, Embedder: emb})
}

func longBody() string {
	return strings.Repeat(bodyLine+"\n", 3)
}

func TestRun_IndexesClassifiedDocuments(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := createTestFile(t, root, "DIREITO CONSTITUCIONAL/controle.pdf", longBody())
	createTestFile(t, root, "DIREITO CONSTITUCIONAL/notes.txt", longBody())

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	idx := newTestIndexer(t, store, emb)

	var events []Event
	stats, err := idx.Run(ctx, Options{Roots: []string{root}, Progress: func(ev Event) { events = append(events, ev) }})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Indexed)
	assert.Zero(t, stats.Errors)
	require.Len(t, events, 1)
	assert.Equal(t, OutcomeIndexed, events[0].Outcome)
	assert.Equal(t, 1, emb.getCallCount())

	content, err := store.GetContentBySourceKey(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "controle", content.Title)
	assert.Contains(t, content.Body, "controle de constitucionalidade")
	assert.Len(t, content.Embedding, 8)

	d, err := store.GetDisciplineBySlug(ctx, "direito-constitucional")
	require.NoError(t, err)
	require.NotNil(t, content.DisciplineID)
	assert.Equal(t, d.ID, *content.DisciplineID)
}

func TestRun_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	createTestFile(t, root, "DIREITO CONSTITUCIONAL/a.pdf", longBody())
	createTestFile(t, root, "DIREITO CONSTITUCIONAL/b.pdf", longBody())

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	idx := newTestIndexer(t, store, emb)

	first, err := idx.Run(ctx, Options{Roots: []string{root}})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Indexed)

	second, err := idx.Run(ctx, Options{Roots: []string{root}})
	require.NoError(t, err)
	assert.Zero(t, second.Indexed)
	assert.Equal(t, 2, second.Skips[SkipAlreadyIndexed])
	assert.Equal(t, 2, emb.getCallCount(), "second run must not embed")

	n, err := store.CountContents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	disciplines, err := store.ListDisciplines(ctx)
	require.NoError(t, err)
	assert.Len(t, disciplines, 1)
}

func TestRun_SkipReasons(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	createTestFile(t, root, "MISC/unknown.pdf", longBody())
	createTestFile(t, root, "DIREITO PENAL/short.pdf", "too short")
	createTestFile(t, root, "DIREITO PENAL/ok.pdf", longBody())

	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, newMockEmbedder())

	stats, err := idx.Run(ctx, Options{Roots: []string{root}})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Skips[SkipUnclassified])
	assert.Equal(t, 1, stats.Skips[SkipNoText])
}

func TestRun_EmptyPDFIsSkippedAsNoText(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "DIREITO PENAL/vazio.pdf", "")

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	idx := New(Deps{Store: store, Extractor: extractor.NewPDF(), Embedder: emb})

	stats, err := idx.Run(context.Background(), Options{Roots: []string{root}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Zero(t, stats.Errors)
	assert.Equal(t, 1, stats.Skips[SkipNoText])
	assert.Zero(t, emb.getCallCount())
}

func TestRun_DisciplineFilter(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	createTestFile(t, root, "DIREITO PENAL/a.pdf", longBody())
	createTestFile(t, root, "DIREITO CIVIL/b.pdf", longBody())

	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, newMockEmbedder())

	stats, err := idx.Run(ctx, Options{Roots: []string{root}, DisciplineFilter: "penal"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.Skips[SkipFiltered])
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	createTestFile(t, root, "DIREITO PENAL/a.pdf", longBody())

	store := setupTestStorage(t)
	idx := New(Deps{Store: store, Extractor: textExtractor{}})

	stats, err := idx.Run(ctx, Options{Roots: []string{root}, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	n, err := store.CountContents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	disciplines, err := store.ListDisciplines(ctx)
	require.NoError(t, err)
	assert.Empty(t, disciplines)
}

func TestRun_RequiresEmbedderUnlessDryRun(t *testing.T) {
	idx := New(Deps{Store: setupTestStorage(t), Extractor: textExtractor{}})
	_, err := idx.Run(context.Background(), Options{Roots: []string{t.TempDir()}})
	assert.Error(t, err)
}

func TestRun_MaxFiles(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		createTestFile(t, root, filepath.Join("DIREITO PENAL", name), longBody())
	}

	idx := newTestIndexer(t, setupTestStorage(t), newMockEmbedder())
	stats, err := idx.Run(context.Background(), Options{Roots: []string{root}, MaxFiles: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
}

func TestRun_PerFileErrorsDoNotAbort(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "DIREITO PENAL/broken.pdf", "BROKEN document")
	createTestFile(t, root, "DIREITO PENAL/good.pdf", longBody())

	idx := newTestIndexer(t, setupTestStorage(t), newMockEmbedder())
	stats, err := idx.Run(context.Background(), Options{Roots: []string{root}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.Errors)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "broken.pdf")
}

func TestRun_EmbeddingErrors(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := createTestFile(t, root, "DIREITO PENAL/a.pdf", longBody())

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	emb.generateErr = errors.New("provider down")
	idx := newTestIndexer(t, store, emb)

	stats, err := idx.Run(ctx, Options{Roots: []string{root}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)

	exists, err := store.ContentExists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists, "failed documents must be retried on the next run")
}

func TestRun_EmbeddingInputIsBounded(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "DIREITO PENAL/big.pdf", strings.Repeat(bodyLine+"\n", 200))

	emb := newMockEmbedder()
	idx := newTestIndexer(t, setupTestStorage(t), emb)
	_, err := idx.Run(context.Background(), Options{Roots: []string{root}})
	require.NoError(t, err)

	require.Len(t, emb.inputs, 1)
	assert.LessOrEqual(t, len([]rune(emb.inputs[0])), MaxEmbeddingChars)
}

func TestRun_WorkerConcurrency(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	for i := range 12 {
		createTestFile(t, root, filepath.Join("DIREITO CIVIL", string(rune('a'+i))+".pdf"), longBody())
	}

	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, newMockEmbedder())
	stats, err := idx.Run(ctx, Options{Roots: []string{root}, Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Indexed)

	counts, err := store.CountByDiscipline(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 12, counts[0].Count)
}

func TestRun_ConcurrentCalls(t *testing.T) {
	idx := newTestIndexer(t, setupTestStorage(t), newMockEmbedder())
	require.True(t, idx.lock.TryAcquire())
	defer idx.lock.Release()

	_, err := idx.Run(context.Background(), Options{Roots: []string{t.TempDir()}})
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	_, err = idx.Reclean(context.Background(), RecleanOptions{})
	assert.ErrorIs(t, err, ErrIndexingInProgress)
}

func TestRun_ContextCancellation(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "DIREITO PENAL/a.pdf", longBody())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := newTestIndexer(t, setupTestStorage(t), newMockEmbedder())
	_, err := idx.Run(ctx, Options{Roots: []string{root}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, idx.lock.Held())
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "controle", Title("/bank/DIREITO CONSTITUCIONAL/controle.pdf"))
	assert.Equal(t, "Aula 01 - Princípios", Title("Aula 01 - Princípios.PDF"))
}

func TestIndexLock_ConcurrentAcquisition(t *testing.T) {
	var lock IndexLock
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lock.TryAcquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired)
	assert.True(t, lock.Held())
	lock.Release()
	assert.False(t, lock.Held())
	assert.True(t, lock.TryAcquire())
}
