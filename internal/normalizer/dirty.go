package normalizer

import "regexp"

// dirtyPatterns flag text that still carries extraction artefacts
var dirtyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)grancursosonline`),
	regexp.MustCompile(`(?i)gran cursos`),
	regexp.MustCompile(`(?i)www\.gran`),
	regexp.MustCompile(`(?i)o conte[uú]do deste livro [eé] licenciado`),
	regexp.MustCompile(`(?i)vedada.*reprodu[çc][ãa]o`),
	regexp.MustCompile(`\.{6}`),
	regexp.MustCompile(`\.{4,}\s*\d+`),
	regexp.MustCompile(`(?m)^\d{1,3}\s+de\s+\d{1,3}`),
	regexp.MustCompile(`(?i)lattes\.cnpq`),
	regexp.MustCompile(`DiRei|TRiBu|CONSTi`),
}

// IsDirty reports whether text still contains publisher marks, licence
// notices, leader dots, page footers or broken-case words
func IsDirty(text string) bool {
	for _, p := range dirtyPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
