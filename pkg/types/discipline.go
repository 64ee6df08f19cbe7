package types

import "time"

// Area groups disciplines for presentation purposes
type Area string

const (
	AreaJuridica Area = "juridica"
	AreaContabil Area = "contabil"
	AreaTI       Area = "ti"
	AreaFiscal   Area = "fiscal"
	AreaGeral    Area = "geral"
)

// Discipline is a subject-matter category (e.g. Constitutional Law)
type Discipline struct {
	ID        string
	Slug      string // Unique, URL-safe
	Name      string
	Area      Area
	Color     string // Hex display color derived from Area
	CreatedAt time.Time
}

// Validate checks that the discipline can be persisted
func (d *Discipline) Validate() error {
	if d.Slug == "" {
		return ErrEmptySlug
	}
	return nil
}
