package classifier

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// ErrInvalidTable is returned when a taxonomy table fails validation
var ErrInvalidTable = errors.New("invalid taxonomy table")

// Entry maps path keywords to a discipline
type Entry struct {
	Slug     string   `yaml:"slug"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Table is an ordered list of entries; earlier entries take precedence
type Table []Entry

// DefaultTable returns the built-in taxonomy
func DefaultTable() Table {
	t, err := ParseTable(defaultTaxonomy)
	if err != nil {
		panic(fmt.Sprintf("classifier: built-in taxonomy: %v", err))
	}
	return t
}

// LoadTable reads a YAML taxonomy from path
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes and validates a YAML taxonomy.
// Keywords are normalised to NFC upper case so they compare against
// normalised path segments.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidTable)
	}

	for i := range t {
		e := &t[i]
		if e.Slug == "" || e.Name == "" {
			return nil, fmt.Errorf("%w: entry %d needs slug and name", ErrInvalidTable, i)
		}
		if len(e.Keywords) == 0 {
			return nil, fmt.Errorf("%w: entry %d (%s) has no keywords", ErrInvalidTable, i, e.Slug)
		}
		for j, kw := range e.Keywords {
			e.Keywords[j] = strings.ToUpper(norm.NFC.String(kw))
		}
	}
	return t, nil
}
