package notice

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Metadata is the structured description of an exam notice as returned by
// the extraction model
type Metadata struct {
	IssuingBody    string           `json:"issuing_body"`
	Agency         string           `json:"agency"`
	Role           string           `json:"role"`
	NoticeNumber   string           `json:"notice_number"`
	PublishedAt    *string          `json:"published_at"`
	ExamDate       *string          `json:"exam_date"`
	Salary         *float64         `json:"salary"`
	Vacancies      *int             `json:"vacancies"`
	TotalQuestions *int             `json:"total_questions"`
	Disciplines    []DisciplineSpec `json:"disciplines"`
}

// DisciplineSpec is one tested discipline of a notice
type DisciplineSpec struct {
	Name          string   `json:"name"`
	Weight        float64  `json:"weight"`
	QuestionCount *int     `json:"question_count"`
	Topics        []string `json:"topics"`
}

// dateLayouts are tried in order; the model is asked for the first
var dateLayouts = []string{"2006-01-02", "02/01/2006", time.RFC3339}

// ParseDate parses a date field. Missing or unparseable values yield nil.
func ParseDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ParseMetadata pulls the outermost JSON object out of a model response and
// decodes it. The response may wrap the object in prose or a code fence.
// It returns the decoded metadata and the JSON text it was decoded from.
func ParseMetadata(response string) (*Metadata, string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, "", fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}
	raw := response[start : end+1]

	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for i := range m.Disciplines {
		if strings.TrimSpace(m.Disciplines[i].Name) == "" {
			return nil, "", fmt.Errorf("%w: discipline %d has no name", ErrMalformedResponse, i)
		}
	}
	normalizeWeights(&m)
	return &m, raw, nil
}

// normalizeWeights turns model weights into fractions. Missing weights are
// derived from question counts; percentages are scaled down; the rest is
// clamped into [0, 1].
func normalizeWeights(m *Metadata) {
	percent := false
	for _, d := range m.Disciplines {
		if d.Weight > 1 {
			percent = true
			break
		}
	}
	for i := range m.Disciplines {
		d := &m.Disciplines[i]
		if percent {
			d.Weight /= 100
		}
		if d.Weight <= 0 && d.QuestionCount != nil && m.TotalQuestions != nil && *m.TotalQuestions > 0 {
			d.Weight = float64(*d.QuestionCount) / float64(*m.TotalQuestions)
		}
		d.Weight = min(max(d.Weight, 0), 1)
		if d.Topics == nil {
			d.Topics = []string{}
		}
	}
}

const extractionSystemPrompt = `You analyse official notices for Brazilian public service exams.
You answer with a single JSON object and nothing else.`

func extractionPrompt(text string) string {
	return `Read the exam notice below and extract its structure.

Return ONLY a JSON object that follows EXACTLY this schema:
{
  "issuing_body": "exam board that runs the exam",
  "agency": "public body that is hiring",
  "role": "specific position",
  "notice_number": "notice number",
  "published_at": "YYYY-MM-DD or null",
  "exam_date": "YYYY-MM-DD or null",
  "salary": number or null,
  "vacancies": integer or null,
  "total_questions": integer or null,
  "disciplines": [
    {
      "name": "exact discipline name",
      "weight": fraction of the exam between 0 and 1,
      "question_count": integer or null,
      "topics": ["topic 1", "topic 2"]
    }
  ]
}

Rules:
- Use null for anything the notice does not state
- Keep discipline names in Portuguese, as written in the notice
- Topics are the items of the syllabus for that discipline
- weight is question_count / total_questions

NOTICE:
` + text
}
