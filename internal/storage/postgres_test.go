package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/editalindex/pkg/types"
)

// EnvTestDatabaseURL points the Postgres tests at a disposable database
// with the pgvector extension available
const EnvTestDatabaseURL = "EDITAL_TEST_DATABASE_URL"

func setupPostgres(t *testing.T) *PostgresStorage {
	t.Helper()
	url := os.Getenv(EnvTestDatabaseURL)
	if url == "" {
		t.Skipf("%s not set", EnvTestDatabaseURL)
	}

	ctx := context.Background()
	s, err := NewPostgresStorage(ctx, url, 3)
	require.NoError(t, err)

	for _, table := range []string{"study_plans", "jobs", "exam_disciplines", "notices", "contents", "disciplines"} {
		_, err := s.pool.Exec(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresContents(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	d := &types.Discipline{Slug: "auditoria", Name: "Auditoria"}
	require.NoError(t, s.UpsertDiscipline(ctx, d))

	created, err := s.InsertContent(ctx, newContent("near", &d.ID, []float32{1, 0.1, 0}))
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.InsertContent(ctx, newContent("near", nil, []float32{0, 0, 1}))
	require.NoError(t, err)
	assert.False(t, created)
	_, err = s.InsertContent(ctx, newContent("far", nil, []float32{0, 0, 1}))
	require.NoError(t, err)

	got, err := s.GetContentBySourceKey(ctx, "near")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{1, 0.1, 0}, got.Embedding, 1e-6)

	results, err := s.SearchContents(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].Content.SourceKey)

	counts, err := s.CountByDiscipline(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 1, counts[0].Count)
}

func TestPostgresNoticePipelineState(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	n := createNotice(t, s, "owner-1", "h1")
	require.NoError(t, s.TransitionNotice(ctx, n.ID, types.NoticeQueued, types.NoticeParsing))
	assert.ErrorIs(t, s.TransitionNotice(ctx, n.ID, types.NoticeQueued, types.NoticeParsing), ErrConflict)

	j := &types.ProcessingJob{NoticeID: n.ID}
	require.NoError(t, s.CreateJob(ctx, j))
	require.NoError(t, s.UpdateJobProgress(ctx, j.ID, JobUpdate{Stage: "b", Progress: 60}))
	require.NoError(t, s.UpdateJobProgress(ctx, j.ID, JobUpdate{Stage: "a", Progress: 35}))
	got, err := s.LatestJob(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Progress)

	require.NoError(t, s.ReplaceExamDisciplines(ctx, n.ID, []types.ExamDiscipline{
		{Name: "Português", Weight: 0.5, Topics: []string{"Crase"}},
	}))
	ds, err := s.ListExamDisciplines(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, []string{"Crase"}, ds[0].Topics)
}
