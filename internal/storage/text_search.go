package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dshills/editalindex/pkg/types"
)

// textCandidateLimit bounds the rows scored in Go for one keyword query
const textCandidateLimit = 500

// queryTerms splits a keyword query into distinct lower case terms of at
// least two characters
func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, `.,;:!?"'()[]`)
		if utf8.RuneCountInString(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// escapeLike escapes LIKE wildcards with a backslash
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func likePatterns(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = "%" + escapeLike(t) + "%"
	}
	return out
}

// keywordScore counts term occurrences; hits in the title count double
func keywordScore(c *types.IndexedContent, terms []string) float64 {
	title := strings.ToLower(c.Title)
	body := strings.ToLower(c.Body)
	score := 0
	for _, t := range terms {
		score += 2*strings.Count(title, t) + strings.Count(body, t)
	}
	return float64(score)
}

// rankText scores candidates and keeps the best limit, ties in ID order
func rankText(candidates []*types.IndexedContent, terms []string, limit int) []ContentResult {
	results := make([]ContentResult, 0, len(candidates))
	for _, c := range candidates {
		if score := keywordScore(c, terms); score > 0 {
			c.Embedding = nil
			results = append(results, ContentResult{Content: c, Similarity: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Content.ID < results[j].Content.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// SearchContentsText ranks contents by keyword occurrences in title and body.
// The returned Similarity is the raw occurrence score.
func (s *SQLiteStorage) SearchContentsText(ctx context.Context, query string, limit int) ([]ContentResult, error) {
	terms := queryTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return []ContentResult{}, nil
	}

	clauses := make([]string, len(terms))
	args := make([]interface{}, 0, 2*len(terms)+1)
	for i, p := range likePatterns(terms) {
		clauses[i] = `(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`
		args = append(args, p, p)
	}
	args = append(args, textCandidateLimit)

	rows, err := s.db.QueryContext(ctx, `SELECT `+contentColumns+` FROM contents WHERE `+
		strings.Join(clauses, " OR ")+` ORDER BY id LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute text search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []*types.IndexedContent
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankText(candidates, terms, limit), nil
}

// SearchContentsText ranks contents by keyword occurrences in title and body
func (s *PostgresStorage) SearchContentsText(ctx context.Context, query string, limit int) ([]ContentResult, error) {
	terms := queryTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return []ContentResult{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, discipline_id, kind, title, body, source_key, created_at
		FROM contents
		WHERE title ILIKE ANY($1) OR body ILIKE ANY($1)
		ORDER BY id
		LIMIT $2
	`, likePatterns(terms), textCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute text search: %w", err)
	}
	defer rows.Close()

	var candidates []*types.IndexedContent
	for rows.Next() {
		var c types.IndexedContent
		var kind string
		var created int64
		if err := rows.Scan(&c.ID, &c.DisciplineID, &kind, &c.Title, &c.Body, &c.SourceKey, &created); err != nil {
			return nil, err
		}
		c.Kind = types.ContentKind(kind)
		c.CreatedAt = fromMillis(created)
		candidates = append(candidates, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankText(candidates, terms, limit), nil
}
