package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"

	"github.com/dshills/editalindex/pkg/types"
)

func p(parts ...string) string {
	return string(filepath.Separator) + filepath.Join(parts...)
}

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	require.NotEmpty(t, table)

	// Public accounting must be checked before the general accounting fallback
	pub, gen := -1, -1
	for i, e := range table {
		if e.Slug == "contabilidade-publica" && pub < 0 {
			pub = i
		}
		if e.Slug == "contabilidade-geral" && gen < 0 {
			gen = i
		}
	}
	assert.Less(t, pub, gen)
}

func TestClassifyPath(t *testing.T) {
	c := NewPathClassifier(DefaultTable())

	tests := []struct {
		name string
		path string
		slug string
		ok   bool
	}{
		{"simple", p("bank", "DIREITO TRIBUTARIO", "resumo.pdf"), "direito-tributario", true},
		{"innermost wins", p("bank", "CONTABILIDADE", "modulo 2", "AUDITORIA", "file.pdf"), "auditoria", true},
		{"outer folder used when inner is generic", p("bank", "DIREITO CONSTITUCIONAL", "Aula 01", "x.pdf"), "direito-constitucional", true},
		{"lowercase folder", p("bank", "direito penal", "x.pdf"), "direito-penal", true},
		{"public before general accounting", p("bank", "Contabilidade Pública", "x.pdf"), "contabilidade-publica", true},
		{"general accounting fallback", p("bank", "CONTABILIDADE AVANÇADA", "x.pdf"), "contabilidade-geral", true},
		{"keyword in file name ignored", p("bank", "misc", "DIREITO PENAL.pdf"), "", false},
		{"unclassified", p("bank", "misc", "x.pdf"), "", false},
		{"no directory", "x.pdf", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := c.Classify(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.slug, m.Slug)
		})
	}
}

func TestClassifyPathNFD(t *testing.T) {
	c := NewPathClassifier(DefaultTable())
	path := norm.NFD.String(p("bank", "ESTATÍSTICA", "aula.pdf"))

	m, ok := c.Classify(path)
	require.True(t, ok)
	assert.Equal(t, "estatistica", m.Slug)
	assert.Equal(t, "Estatística", m.Name)
}

func TestClassifyDeterministic(t *testing.T) {
	c := NewPathClassifier(DefaultTable())
	path := p("bank", "ÁREA FISCAL", "LEGISLAÇÃO TRIBUTÁRIA", "CBS e IBS", "aula.pdf")

	first, ok := c.Classify(path)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, _ := c.Classify(path)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "direito-tributario", first.Slug)
}

func TestMatchName(t *testing.T) {
	known := []types.Discipline{
		{ID: "3", Slug: "direito-constitucional"},
		{ID: "1", Slug: "direito-administrativo"},
		{ID: "2", Slug: "contabilidade-geral"},
		{ID: "4", Slug: "raciocinio-logico"},
	}

	tests := []struct {
		name string
		want string
	}{
		{"Direito Constitucional", "direito-constitucional"},
		{"DIREITO ADMINISTRATIVO", "direito-administrativo"},
		{"Raciocínio Lógico-Matemático", "raciocinio-logico"},
		{"Noções de Contabilidade", "contabilidade-geral"},
		{"Noções de Direito", "direito-administrativo"},
		{"Língua Inglesa", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchName(tt.name, known)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Slug)
		})
	}
}

func TestMatchNameOrderIndependent(t *testing.T) {
	a := []types.Discipline{{Slug: "direito-penal"}, {Slug: "direito-civil"}}
	b := []types.Discipline{{Slug: "direito-civil"}, {Slug: "direito-penal"}}

	ga := MatchName("Direito", a)
	gb := MatchName("Direito", b)
	require.NotNil(t, ga)
	require.NotNil(t, gb)
	assert.Equal(t, ga.Slug, gb.Slug)
	assert.Equal(t, "direito-civil", ga.Slug)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "licitacoes e contratos", Fold("Licitações e Contratos"))
	assert.Equal(t, "portugues", Fold("PORTUGUÊS"))
}

func TestInferAreaAndColor(t *testing.T) {
	tests := []struct {
		slug  string
		area  types.Area
		color string
	}{
		{"direito-tributario", types.AreaJuridica, "#5B8CFF"},
		{"contabilidade-publica", types.AreaContabil, "#22C55E"},
		{"tecnologia-informacao", types.AreaTI, "#F59E0B"},
		{"legislacao-tributaria", types.AreaFiscal, "#EF4444"},
		{"economia-financas", types.AreaFiscal, "#EF4444"},
		{"estatistica", types.AreaGeral, "#94A3B8"},
		{"matematica-financeira", types.AreaGeral, "#94A3B8"},
		{"portugues", types.AreaGeral, "#94A3B8"},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			area := InferArea(tt.slug)
			assert.Equal(t, tt.area, area)
			assert.Equal(t, tt.color, AreaColor(area))
		})
	}
	assert.Equal(t, "#64748B", AreaColor("unknown"))
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- slug: fisica
  name: Física
  keywords: ["física", "mecanica"]
`), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, []string{"FÍSICA", "MECANICA"}, table[0].Keywords)

	m, ok := NewPathClassifier(table).Classify(p("bank", "Física Básica", "a.pdf"))
	require.True(t, ok)
	assert.Equal(t, "fisica", m.Slug)
	assert.Equal(t, types.AreaGeral, m.Discipline().Area)
}

func TestParseTableValidation(t *testing.T) {
	_, err := ParseTable([]byte(`[]`))
	assert.ErrorIs(t, err, ErrInvalidTable)

	_, err = ParseTable([]byte(`- slug: x
  name: X
`))
	assert.ErrorIs(t, err, ErrInvalidTable)

	_, err = ParseTable([]byte(`{not: [valid`))
	assert.Error(t, err)
}
