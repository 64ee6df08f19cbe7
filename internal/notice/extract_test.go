package notice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validResponse = `{
  "issuing_body": "CEBRASPE",
  "agency": "Receita Federal",
  "role": "Auditor-Fiscal",
  "notice_number": "1/2026",
  "published_at": "2026-09-01",
  "exam_date": "2026-12-20",
  "salary": 21029.09,
  "vacancies": 100,
  "total_questions": 120,
  "disciplines": [
    {"name": "Direito Constitucional", "weight": 0.6, "question_count": 72, "topics": ["Controle de constitucionalidade"]},
    {"name": "Língua Portuguesa", "weight": 0.4, "question_count": 48, "topics": null}
  ]
}`

func TestParseMetadata(t *testing.T) {
	m, raw, err := ParseMetadata(validResponse)
	require.NoError(t, err)
	assert.JSONEq(t, validResponse, raw)

	assert.Equal(t, "CEBRASPE", m.IssuingBody)
	assert.Equal(t, "Receita Federal", m.Agency)
	assert.Equal(t, "Auditor-Fiscal", m.Role)
	require.NotNil(t, m.Vacancies)
	assert.Equal(t, 100, *m.Vacancies)
	require.Len(t, m.Disciplines, 2)
	assert.InDelta(t, 0.6, m.Disciplines[0].Weight, 1e-9)
	assert.Equal(t, []string{}, m.Disciplines[1].Topics)
}

func TestParseMetadata_StripsSurroundingText(t *testing.T) {
	m, _, err := ParseMetadata("Here is the result:\n```json\n" + validResponse + "\n```\n")
	require.NoError(t, err)
	assert.Equal(t, "CEBRASPE", m.IssuingBody)
}

func TestParseMetadata_Malformed(t *testing.T) {
	tests := map[string]string{
		"prose only":      "I could not read the notice.",
		"broken object":   `{"issuing_body": "CEBRASPE",`,
		"wrong types":     `{"vacancies": "many"}`,
		"nameless entry":  `{"disciplines": [{"name": " ", "weight": 1}]}`,
		"reversed braces": "} nothing {",
	}
	for name, resp := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseMetadata(resp)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestParseMetadata_NormalizesWeights(t *testing.T) {
	m, _, err := ParseMetadata(`{"total_questions": 100, "disciplines": [
		{"name": "A", "weight": 60},
		{"name": "B", "weight": 40}
	]}`)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, m.Disciplines[0].Weight, 1e-9)
	assert.InDelta(t, 0.4, m.Disciplines[1].Weight, 1e-9)

	m, _, err = ParseMetadata(`{"total_questions": 80, "disciplines": [
		{"name": "A", "question_count": 20},
		{"name": "B", "weight": -1}
	]}`)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, m.Disciplines[0].Weight, 1e-9)
	assert.Zero(t, m.Disciplines[1].Weight)
}

func TestParseDate(t *testing.T) {
	s := func(v string) *string { return &v }
	want := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, want, *ParseDate(s("2026-12-20")))
	assert.Equal(t, want, *ParseDate(s("20/12/2026")))
	assert.Nil(t, ParseDate(nil))
	assert.Nil(t, ParseDate(s("")))
	assert.Nil(t, ParseDate(s("null")))
	assert.Nil(t, ParseDate(s("to be announced")))
}
