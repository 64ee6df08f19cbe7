package types

import "time"

// ContentKind is the kind of an indexed content record
type ContentKind string

const (
	KindSummary  ContentKind = "SUMMARY"
	KindQuestion ContentKind = "QUESTION"
	KindNote     ContentKind = "NOTE"
)

// IndexedContent is one processed source document.
// At most one record exists per SourceKey and records are never mutated after
// creation, except through the explicit body re-clean path.
type IndexedContent struct {
	ID           string
	DisciplineID *string // Nullable - content may be unclassified
	Kind         ContentKind
	Title        string
	Body         string
	SourceKey    string
	Embedding    []float32 // nil until computed
	CreatedAt    time.Time
}

// Validate checks that the content can be persisted
func (c *IndexedContent) Validate() error {
	if c.SourceKey == "" {
		return ErrEmptySourceKey
	}
	if c.Kind == "" {
		c.Kind = KindSummary
	}
	return nil
}

// HasEmbedding reports whether a vector has been computed
func (c *IndexedContent) HasEmbedding() bool {
	return len(c.Embedding) > 0
}
