// Package classifier assigns documents to disciplines.
//
// Two modes share one vocabulary. Path mode reads the folder a document was
// filed under and walks an ordered keyword table. Fuzzy mode matches a free
// text discipline name, as extracted from an exam notice, against the slugs
// of already known disciplines. Both are pure functions of their inputs.
package classifier

import (
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dshills/editalindex/pkg/types"
)

// Match is a path classification result
type Match struct {
	Slug string
	Name string
	Area types.Area
}

// Discipline builds a new discipline record for the match
func (m Match) Discipline() *types.Discipline {
	return &types.Discipline{
		Slug:  m.Slug,
		Name:  m.Name,
		Area:  m.Area,
		Color: AreaColor(m.Area),
	}
}

// PathClassifier classifies documents by their directory path
type PathClassifier struct {
	table     Table
	separator string
}

// NewPathClassifier creates a path classifier over table
func NewPathClassifier(table Table) *PathClassifier {
	return &PathClassifier{table: table, separator: string(filepath.Separator)}
}

// Classify scans the directory segments of path from the innermost outwards.
// For each segment the table is walked in order and the first entry with a
// keyword contained in the segment wins. The file name itself is not
// considered.
func (c *PathClassifier) Classify(path string) (Match, bool) {
	// NFC so paths from NFD filesystems match NFC keywords
	normalized := strings.ToUpper(norm.NFC.String(path))
	i := strings.LastIndex(normalized, c.separator)
	if i < 0 {
		return Match{}, false
	}

	segments := strings.Split(normalized[:i], c.separator)
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "" {
			continue
		}
		for _, e := range c.table {
			if slices.ContainsFunc(e.Keywords, func(kw string) bool { return strings.Contains(seg, kw) }) {
				return Match{Slug: e.Slug, Name: e.Name, Area: InferArea(e.Slug)}, true
			}
		}
	}
	return Match{}, false
}

// slugPrefixLen bounds the hyphenated name used for slug prefix matching
const slugPrefixLen = 20

// minWordLen is the exclusive lower bound on word length for word matching
const minWordLen = 4

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritics
func Fold(s string) string {
	out, _, err := transform.String(stripMarks, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// MatchName finds the known discipline best matching a free-text name.
// It first tries the hyphenated, folded name (capped at 20 characters) as a
// slug substring, then any folded word longer than four characters. known is
// searched in slug order so results do not depend on the caller's ordering.
func MatchName(name string, known []types.Discipline) *types.Discipline {
	folded := strings.TrimSpace(Fold(name))
	if folded == "" || len(known) == 0 {
		return nil
	}

	sorted := slices.Clone(known)
	slices.SortFunc(sorted, func(a, b types.Discipline) int { return strings.Compare(a.Slug, b.Slug) })

	words := strings.Fields(folded)
	prefix := []rune(strings.Join(words, "-"))
	if len(prefix) > slugPrefixLen {
		prefix = prefix[:slugPrefixLen]
	}
	for i := range sorted {
		if strings.Contains(sorted[i].Slug, string(prefix)) {
			return &sorted[i]
		}
	}

	for _, w := range words {
		if len([]rune(w)) <= minWordLen {
			continue
		}
		for i := range sorted {
			if strings.Contains(sorted[i].Slug, w) {
				return &sorted[i]
			}
		}
	}
	return nil
}

// InferArea derives the presentation area from a discipline slug
func InferArea(slug string) types.Area {
	tokens := strings.Split(slug, "-")
	switch {
	case strings.Contains(slug, "direito"):
		return types.AreaJuridica
	case strings.Contains(slug, "contabil"):
		return types.AreaContabil
	case strings.Contains(slug, "tecnologia") || slices.Contains(tokens, "ti"):
		return types.AreaTI
	case strings.Contains(slug, "fiscal"), strings.Contains(slug, "tributar"),
		strings.Contains(slug, "legisla"), strings.Contains(slug, "economia"):
		return types.AreaFiscal
	default:
		return types.AreaGeral
	}
}

var areaColors = map[types.Area]string{
	types.AreaJuridica: "#5B8CFF",
	types.AreaContabil: "#22C55E",
	types.AreaTI:       "#F59E0B",
	types.AreaFiscal:   "#EF4444",
	types.AreaGeral:    "#94A3B8",
}

// AreaColor returns the display color for an area
func AreaColor(a types.Area) string {
	if c, ok := areaColors[a]; ok {
		return c
	}
	return "#64748B"
}
