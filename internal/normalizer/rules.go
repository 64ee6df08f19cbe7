package normalizer

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// coverBudget is how many characters of leading boilerplate may be dropped
	coverBudget = 2500
	// coverLineLen is the length under which a leading line counts as cover material
	coverLineLen = 60
	// tocLineLen is the length under which a line inside a TOC block is skipped
	tocLineLen = 5
)

var (
	reCaseJoin  = regexp.MustCompile(`(\p{Ll})(\p{Lu})`)
	rePunctJoin = regexp.MustCompile(`([.!?;:,])(\p{Lu})`)
	reSpaces    = regexp.MustCompile(` {2,}`)

	reTOCHeading = regexp.MustCompile(`(?i)^(sum[aá]rio|[íi]ndice|conte[uú]do|summary|index|contents|table of contents)\s*$`)
	reLeaderDots = regexp.MustCompile(`\.{3,}`)
	reDigitsOnly = regexp.MustCompile(`^\d+$`)
	reTOCEntry   = regexp.MustCompile(`\.{4,}\s*\d+\s*$`)

	reCoverMarker = regexp.MustCompile(`(?i)^(presidente|vice|diretor|coordenador|c[oó]digo|o conte[uú]do|www\.|todo o material|ser[aá] proibid|isbn|©|copyright|gran cursos|professor|autora?:|doutor|mestre|especiali|bacharel|pela universidade|lattes\.cnpq)`)

	reFooter     = regexp.MustCompile(`(?i)^(www\.|o conte[uú]do deste livro|c[óo]digo:|de \d{1,3}\s*www\.)`)
	rePageFooter = regexp.MustCompile(`(?i)^(p[áa]gina\s+|page\s+)?\d{1,4}\s+(de|of)\s+\d{1,4}\b`)
)

// FixSpacing separates words glued together by PDF font extraction:
// a lower case letter directly followed by an upper case one, and sentence
// punctuation directly followed by a capitalised word. Runs of spaces collapse.
func FixSpacing(s string) string {
	s = reCaseJoin.ReplaceAllString(s, "$1 $2")
	s = rePunctJoin.ReplaceAllString(s, "$1 $2")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Clean applies the rule-based pass: it drops table-of-contents blocks,
// the leading cover and credits zone, page footers and publisher boilerplate,
// then fixes word spacing. Short documents whose every line looks like cover
// material are re-cleaned without the cover rule rather than emptied.
func Clean(raw string) string {
	lines := strings.Split(raw, "\n")

	kept := filterLines(lines, true)
	if strings.TrimSpace(strings.Join(kept, "\n")) == "" {
		kept = filterLines(lines, false)
	}
	return FixSpacing(strings.Join(kept, "\n"))
}

func filterLines(lines []string, skipCover bool) []string {
	kept := make([]string, 0, len(lines))
	inTOC := false
	coverChars := 0
	passedCover := !skipCover

	for _, original := range lines {
		line := strings.TrimSpace(original)
		n := utf8.RuneCountInString(line)

		if reTOCHeading.MatchString(line) {
			inTOC = true
			continue
		}
		if inTOC {
			if reLeaderDots.MatchString(line) || reDigitsOnly.MatchString(line) || n < tocLineLen {
				continue
			}
			inTOC = false
		}

		if !passedCover && coverChars < coverBudget {
			if n < coverLineLen || reCoverMarker.MatchString(line) {
				coverChars += n + 1
				continue
			}
			passedCover = true
		}

		if reFooter.MatchString(line) || rePageFooter.MatchString(line) || reTOCEntry.MatchString(line) {
			continue
		}

		kept = append(kept, original)
	}
	return kept
}

// Truncate returns at most max runes of s
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
