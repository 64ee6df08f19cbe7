package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/editalindex/internal/embedder"
	"github.com/dshills/editalindex/internal/storage"
	"github.com/dshills/editalindex/pkg/types"
)

// Request limits and defaults
const (
	MinQueryLength       = 3
	MaxQueryLength       = 200
	DefaultLimit         = 10
	MaxLimit             = 50
	DefaultMinSimilarity = 0.7
	DefaultRRFConstant   = 60
	DefaultCacheTTL      = time.Hour
	cacheSize            = 1000
	excerptChars         = 300
)

// ErrInvalidQuery is returned for queries outside the accepted length
var ErrInvalidQuery = errors.New("invalid query")

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeVector  SearchMode = "vector"  // Cosine similarity over embeddings
	SearchModeKeyword SearchMode = "keyword" // Term occurrences, works without an embedder
	SearchModeHybrid  SearchMode = "hybrid"  // Both, merged with Reciprocal Rank Fusion
)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query         string
	Limit         int
	Mode          SearchMode
	MinSimilarity float64 // Vector hits at or below this are dropped
	UseCache      bool
	CacheTTL      time.Duration
	RRFConstant   float64
}

// Result is one ranked content record
type Result struct {
	Rank           int
	ContentID      string
	Title          string
	SourceKey      string
	Discipline     string // Slug, empty when unclassified
	Excerpt        string
	RelevanceScore float64 // Cosine similarity, keyword score or RRF score by mode
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []Result
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher answers content queries over the indexed bank
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
}

// NewSearcher creates a new Searcher instance. emb may be nil, in which case
// only keyword search is available.
func NewSearcher(store storage.Storage, emb embedder.Embedder) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{storage: store, embedder: emb, cache: cache}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var (
		response *SearchResponse
		err      error
	)
	switch req.Mode {
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeKeyword:
		response, err = s.keywordSearch(ctx, req)
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}
	return response, nil
}

// vectorHits embeds the query and keeps neighbours above the threshold.
// Twice the limit is retrieved because the threshold is applied afterwards.
func (s *Searcher) vectorHits(ctx context.Context, req SearchRequest) ([]storage.ContentResult, error) {
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	hits, err := s.storage.SearchContents(ctx, emb.Vector, req.Limit*2)
	if err != nil {
		return nil, err
	}
	kept := hits[:0]
	for _, h := range hits {
		if h.Similarity > req.MinSimilarity {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	hits, err := s.vectorHits(ctx, req)
	if err != nil {
		return nil, err
	}
	results, err := s.buildResults(ctx, toRanked(hits), req.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: results, TotalResults: len(results), VectorResults: len(hits)}, nil
}

func (s *Searcher) keywordSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	hits, err := s.storage.SearchContentsText(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	results, err := s.buildResults(ctx, toRanked(hits), req.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: results, TotalResults: len(results), TextResults: len(hits)}, nil
}

// searchResult holds results from concurrent search operations
type searchResult struct {
	hits []storage.ContentResult
	err  error
}

// hybridSearch runs both searches concurrently and fuses their rankings
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vectorChan := make(chan searchResult, 1)
	textChan := make(chan searchResult, 1)

	go func() {
		hits, err := s.vectorHits(ctx, req)
		vectorChan <- searchResult{hits: hits, err: err}
	}()
	go func() {
		hits, err := s.storage.SearchContentsText(ctx, req.Query, req.Limit*2)
		textChan <- searchResult{hits: hits, err: err}
	}()

	var vectorRes, textRes searchResult
	var vectorDone, textDone bool
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// One side may fail
	if vectorRes.err != nil && textRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%v", vectorRes.err, textRes.err)
	}

	fused := applyRRF(vectorRes.hits, textRes.hits, req.RRFConstant)
	results, err := s.buildResults(ctx, fused, req.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorRes.hits),
		TextResults:   len(textRes.hits),
	}, nil
}

// rankedResult is a content with its relevance score
type rankedResult struct {
	content *types.IndexedContent
	score   float64
}

func toRanked(hits []storage.ContentResult) []rankedResult {
	out := make([]rankedResult, len(hits))
	for i, h := range hits {
		out[i] = rankedResult{content: h.Content, score: h.Similarity}
	}
	return out
}

// applyRRF applies Reciprocal Rank Fusion to combine both rankings
// RRF formula: RRF(d) = Σ 1/(k + rank(d))
func applyRRF(vectorHits, textHits []storage.ContentResult, k float64) []rankedResult {
	if k == 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[string]*rankedResult)
	add := func(hits []storage.ContentResult) {
		for rank, h := range hits {
			r, ok := scores[h.Content.ID]
			if !ok {
				r = &rankedResult{content: h.Content}
				scores[h.Content.ID] = r
			}
			r.score += 1.0 / (k + float64(rank+1))
		}
	}
	add(vectorHits)
	add(textHits)

	results := make([]rankedResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, *r)
	}
	sortRankedResults(results)
	return results
}

// buildResults attaches discipline slugs and excerpts to the top limit results
func (s *Searcher) buildResults(ctx context.Context, ranked []rankedResult, limit int) ([]Result, error) {
	if limit > len(ranked) {
		limit = len(ranked)
	}
	if limit == 0 {
		return []Result{}, nil
	}

	disciplines, err := s.storage.ListDisciplines(ctx)
	if err != nil {
		return nil, err
	}
	slugs := make(map[string]string, len(disciplines))
	for _, d := range disciplines {
		slugs[d.ID] = d.Slug
	}

	results := make([]Result, 0, limit)
	for i, rr := range ranked[:limit] {
		c := rr.content
		r := Result{
			Rank:           i + 1,
			ContentID:      c.ID,
			Title:          c.Title,
			SourceKey:      c.SourceKey,
			Excerpt:        excerpt(c.Body),
			RelevanceScore: rr.score,
		}
		if c.DisciplineID != nil {
			r.Discipline = slugs[*c.DisciplineID]
		}
		results = append(results, r)
	}
	return results, nil
}

// excerpt returns the start of body, cut on a word boundary
func excerpt(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(body) <= excerptChars {
		return body
	}
	cut := string([]rune(body)[:excerptChars])
	if i := strings.LastIndexByte(cut, ' '); i > excerptChars/2 {
		cut = cut[:i]
	}
	return cut + "…"
}

// validateRequest fills defaults and rejects unusable queries
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if n := utf8.RuneCountInString(req.Query); n < MinQueryLength || n > MaxQueryLength {
		return fmt.Errorf("%w: length must be between %d and %d characters", ErrInvalidQuery, MinQueryLength, MaxQueryLength)
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.Mode == "" {
		req.Mode = SearchModeVector
		if s.embedder == nil {
			req.Mode = SearchModeKeyword
		}
	}
	if req.Mode != SearchModeKeyword && s.embedder == nil {
		return fmt.Errorf("%s search needs an embedder: %w", req.Mode, embedder.ErrNoProviderEnabled)
	}

	if req.MinSimilarity == 0 {
		req.MinSimilarity = DefaultMinSimilarity
	}
	if req.MinSimilarity < 0 {
		req.MinSimilarity = 0
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = DefaultRRFConstant
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves a copy of response
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a copy whose result slice is not shared.
// Result holds only value fields.
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = append([]Result(nil), src.Results...)
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	key := fmt.Sprintf("%s|%s|%d|%.4f|%.1f", req.Query, req.Mode, req.Limit, req.MinSimilarity, req.RRFConstant)
	return sha256.Sum256([]byte(key))
}

// sortRankedResults sorts by score descending, ties in content ID order
func sortRankedResults(results []rankedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].content.ID < results[j].content.ID
	})
}

// InvalidateCache drops every cached response. Called after the bank changes.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen reports the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

// Provider names the embedding provider behind vector search, or "" when
// only keyword search is available
func (s *Searcher) Provider() string {
	if s.embedder == nil {
		return ""
	}
	return s.embedder.Provider()
}
