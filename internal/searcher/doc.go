// Package searcher answers free text queries over the indexed study bank.
//
// Three modes are available:
//   - Vector (default): embeds the query and ranks contents by cosine
//     similarity, keeping only hits above MinSimilarity (0.7 by default)
//   - Keyword: ranks contents by term occurrences in title and body; needs
//     no embedding provider
//   - Hybrid: runs both concurrently and merges them with Reciprocal Rank
//     Fusion, RRF(d) = Σ 1/(k + rank(d)) with k = 60
//
// Queries must be between 3 and 200 characters. The similarity threshold is
// applied after retrieval, so the store is asked for twice the limit.
//
//	s := searcher.NewSearcher(store, emb)
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "controle de constitucionalidade",
//	    Limit: 5,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (%s) %.2f\n", r.Rank, r.Title, r.Discipline, r.RelevanceScore)
//	}
//
// Responses can be cached in an LRU keyed by the normalised request. Call
// InvalidateCache after indexing so new contents become visible.
package searcher
