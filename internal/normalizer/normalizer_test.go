package normalizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/editalindex/internal/llm"
)

const bodyLine = "O controle de constitucionalidade verifica a compatibilidade das leis com a Constituição."

// fakeLLM records prompts and returns a canned response
type fakeLLM struct {
	mu       sync.Mutex
	calls    int
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	return f.response, f.err
}

func (f *fakeLLM) Name() string { return "fake" }

func TestCleanRemovesTOCAndFooters(t *testing.T) {
	raw := strings.Join([]string{
		"Apostila de Direito",
		"Sumário",
		"Chapter One ......... 14",
		"Chapter Two ......... 20",
		"3",
		bodyLine,
		"3 de 164",
		bodyLine,
	}, "\n")

	out := Clean(raw)
	assert.NotContains(t, out, "Chapter One")
	assert.NotContains(t, out, "3 de 164")
	assert.NotContains(t, out, "Apostila de Direito")
	assert.Contains(t, out, "controle de constitucionalidade")
}

func TestCleanRemovesStrayTOCEntries(t *testing.T) {
	raw := strings.Join([]string{
		bodyLine,
		"Chapter One ......... 14",
		bodyLine,
		"Page 4 of 20",
		"www.example.com.br",
	}, "\n")

	out := Clean(raw)
	assert.NotContains(t, out, "Chapter One")
	assert.NotContains(t, out, "Page 4")
	assert.NotContains(t, out, "www.")
	assert.Equal(t, 2, strings.Count(out, "controle de constitucionalidade"))
}

func TestCleanCoverZoneBudget(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, fmt.Sprintf("short line %03d", i))
	}
	out := Clean(strings.Join(lines, "\n"))

	assert.NotContains(t, out, "short line 010")
	assert.Contains(t, out, "short line 180")
}

func TestCleanCoverMarkers(t *testing.T) {
	raw := strings.Join([]string{
		"Professor Fulano de Tal, doutor em direito pela universidade federal de algum lugar do Brasil",
		"Copyright 2024 todos os direitos reservados a editora e aos autores deste material didatico",
		bodyLine,
	}, "\n")

	out := Clean(raw)
	assert.NotContains(t, out, "Professor")
	assert.NotContains(t, out, "Copyright")
	assert.Contains(t, out, "controle de constitucionalidade")
}

func TestCleanShortDocumentKeepsContent(t *testing.T) {
	out := Clean("Resumo curto\nOutra linha curta")
	assert.Equal(t, "Resumo curto\nOutra linha curta", out)
}

func TestFixSpacing(t *testing.T) {
	assert.Equal(t, "você Já sabe. Próximo tema", FixSpacing("vocêJá sabe.Próximo tema"))
	assert.Equal(t, "valor 3.5 em www.site.com", FixSpacing("valor  3.5 em www.site.com"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "açã", Truncate("ação", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestIsDirty(t *testing.T) {
	assert.True(t, IsDirty("visite www.grancursosonline.com.br"))
	assert.True(t, IsDirty("Introdução ...... 4"))
	assert.True(t, IsDirty("texto\n3 de 164\nmais"))
	assert.True(t, IsDirty("DiReiTO TRiBuTÁRIO"))
	assert.True(t, IsDirty("É vedada a sua reprodução"))
	assert.False(t, IsDirty(bodyLine))
}

func TestNormalizeRuleOnly(t *testing.T) {
	n := New(Options{})

	res, err := n.Normalize(context.Background(), strings.Repeat(bodyLine+"\n", 200))
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.False(t, res.UsedAI)
	assert.LessOrEqual(t, len([]rune(res.Text)), DefaultMaxChars)

	res, err = n.Normalize(context.Background(), "curto")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestNormalizeSkipsModelForCleanText(t *testing.T) {
	ai := &fakeLLM{response: "irrelevant"}
	n := New(Options{AI: ai})

	res, err := n.Normalize(context.Background(), bodyLine+"\n"+bodyLine)
	require.NoError(t, err)
	assert.False(t, res.UsedAI)
	assert.Equal(t, 0, ai.calls)
}

func dirtyText() string {
	return strings.Join([]string{
		bodyLine,
		"Este material foi distribuido por grancursosonline e nao pode ser repassado a terceiros.",
		bodyLine,
	}, "\n")
}

func TestNormalizeUsesModelForDirtyText(t *testing.T) {
	ai := &fakeLLM{response: "  " + bodyLine + "  "}
	n := New(Options{AI: ai, AIInputChars: 40})

	res, err := n.Normalize(context.Background(), dirtyText())
	require.NoError(t, err)
	assert.True(t, res.UsedAI)
	assert.Equal(t, bodyLine, res.Text)
	require.Len(t, ai.prompts, 1)
	assert.NotContains(t, ai.prompts[0], "grancursosonline", "only the bounded prefix is sent")
}

func TestNormalizeAlwaysUseAI(t *testing.T) {
	ai := &fakeLLM{response: bodyLine}
	n := New(Options{AI: ai, AlwaysUseAI: true})

	res, err := n.Normalize(context.Background(), bodyLine)
	require.NoError(t, err)
	assert.True(t, res.UsedAI)
	assert.Equal(t, 1, ai.calls)
}

func TestNormalizeFallsBackOnCapacityErrors(t *testing.T) {
	for _, kind := range []llm.Kind{llm.KindRateLimited, llm.KindQuotaExceeded} {
		t.Run(kind.String(), func(t *testing.T) {
			ai := &fakeLLM{err: fmt.Errorf("call: %w", &llm.Error{Provider: "fake", Kind: kind})}
			n := New(Options{AI: ai})

			res, err := n.Normalize(context.Background(), dirtyText())
			require.NoError(t, err)
			assert.True(t, res.FellBack)
			assert.False(t, res.UsedAI)
			assert.Contains(t, res.Text, "controle de constitucionalidade")
		})
	}
}

func TestNormalizePropagatesOtherErrors(t *testing.T) {
	ai := &fakeLLM{err: &llm.Error{Provider: "fake", Kind: llm.KindMalformed}}
	n := New(Options{AI: ai})

	_, err := n.Normalize(context.Background(), dirtyText())
	require.Error(t, err)
	assert.Equal(t, llm.KindMalformed, llm.KindOf(err))

	ai.err = errors.New("connection reset")
	_, err = n.Normalize(context.Background(), dirtyText())
	assert.Error(t, err)
}

func TestNormalizeIgnoresTooShortModelOutput(t *testing.T) {
	ai := &fakeLLM{response: "ok"}
	n := New(Options{AI: ai})

	res, err := n.Normalize(context.Background(), dirtyText())
	require.NoError(t, err)
	assert.False(t, res.UsedAI)
	assert.Contains(t, res.Text, "controle de constitucionalidade")
}

func TestRepairWithoutModel(t *testing.T) {
	_, err := New(Options{}).Repair(context.Background(), "x")
	assert.Error(t, err)
	assert.False(t, New(Options{}).AIEnabled())
}
