package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/editalindex/internal/config"
	"github.com/dshills/editalindex/internal/indexer"
)

// setupEnv isolates a command run: temp working directory, temp database,
// offline embeddings and no model keys
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range []string{config.EnvDBDriver, config.EnvDatabaseURL, config.EnvOpenAIAPIKey,
		config.EnvJinaAPIKey, config.EnvAnthropicAPIKey, config.EnvLLMProvider, config.EnvLLMModel,
		config.EnvAICleanup, config.EnvBankDir, config.EnvLogLevel} {
		t.Setenv(k, "")
	}
	t.Setenv(config.EnvDBPath, filepath.Join(dir, "data", "test.db"))
	t.Setenv(config.EnvEmbeddingProvider, "local")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, cleanup := newRootCmd(io.Discard)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	require.NoError(t, cleanup())
	return buf.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "editalindex dev")
	assert.Contains(t, out, "SQLite Driver:")
}

func TestIndex_RequiresRoots(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "index")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bank roots")
}

func TestIndex_DryRunReportsMarksAndFails(t *testing.T) {
	dir := setupEnv(t)
	bank := filepath.Join(dir, "bank")
	writeFile(t, filepath.Join(bank, "SEM CATEGORIA", "avulso.pdf"), "not classified")
	writeFile(t, filepath.Join(bank, "DIREITO CONSTITUCIONAL", "quebrado.pdf"), "not a pdf")

	out, err := run(t, "index", "--dry-run", bank)
	require.Error(t, err, "per-file errors make the command fail")
	assert.Contains(t, err.Error(), "1 documents failed")
	assert.Contains(t, out, "s")
	assert.Contains(t, out, "x")
	assert.Contains(t, out, "processed 2, would index 0, skipped 1, errored 1")
	assert.Contains(t, out, "unclassified")
}

func TestIndex_EmptyPDFIsSkipped(t *testing.T) {
	dir := setupEnv(t)
	bank := filepath.Join(dir, "bank")
	writeFile(t, filepath.Join(bank, "DIREITO CONSTITUCIONAL", "vazio.pdf"), "")

	out, err := run(t, "index", "--dry-run", bank)
	require.NoError(t, err)
	assert.Contains(t, out, "_")
	assert.Contains(t, out, "processed 1, would index 0, skipped 1, errored 0")
	assert.Contains(t, out, "no_text")
}

func TestIndex_RootsFromEnvironment(t *testing.T) {
	dir := setupEnv(t)
	bank := filepath.Join(dir, "bank")
	writeFile(t, filepath.Join(bank, "OUTROS", "a.pdf"), "x")
	t.Setenv(config.EnvBankDir, bank)

	out, err := run(t, "index", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "processed 1")
}

func TestStats_EmptyStore(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "0 contents indexed (sqlite")
}

func TestSearch(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "search", "--mode", "keyword", "controle de constitucionalidade")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")

	_, err = run(t, "search", "ab")
	assert.Error(t, err)

	_, err = run(t, "search")
	assert.Error(t, err)
}

func TestNotice_RequiresModelToSubmit(t *testing.T) {
	dir := setupEnv(t)
	file := filepath.Join(dir, "edital.pdf")
	writeFile(t, file, "content")

	_, err := run(t, "notice", "submit", "--owner", "ana", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "language model")
}

func TestNotice_ReadCommands(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "notice", "list", "--owner", "ana")
	require.NoError(t, err)
	assert.Contains(t, out, "No notices.")

	_, err = run(t, "notice", "status", "--owner", "ana", "missing-id")
	assert.Error(t, err)

	_, err = run(t, "notice", "active", "--owner", "ana")
	assert.Error(t, err)
}

func TestReclean_EmptyStore(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "reclean", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "checked 0, dirty 0, cleaned 0, errored 0")
}

func TestInvalidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv(config.EnvDBDriver, "mysql")
	_, err := run(t, "stats")
	assert.True(t, errors.Is(err, config.ErrInvalid))
}

func TestProgressMark(t *testing.T) {
	tests := []struct {
		ev   indexer.Event
		want string
	}{
		{indexer.Event{Outcome: indexer.OutcomeIndexed}, "."},
		{indexer.Event{Outcome: indexer.OutcomeError}, "x"},
		{indexer.Event{Outcome: indexer.OutcomeSkipped, Reason: indexer.SkipNoText}, "_"},
		{indexer.Event{Outcome: indexer.OutcomeSkipped, Reason: indexer.SkipAlreadyIndexed}, "s"},
		{indexer.Event{Outcome: indexer.OutcomeSkipped, Reason: indexer.SkipUnclassified}, "s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, progressMark(tt.ev))
	}
}
