// Package embedder turns normalized document text into vector embeddings.
//
// Three providers are available: OpenAI, Jina AI and a local hashed
// bag-of-words model that needs no network. New resolves the provider from
// Config, falling back to DetectProvider, which consults
// EDITAL_EMBEDDING_PROVIDER and then whichever API key is present.
//
//	emb, err := embedder.New(embedder.Config{CacheSize: 1000})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vectors, err := embedder.EmbedBatch(ctx, emb, texts, embedder.BatchOptions{})
//
// EmbedBatch sends fixed-size chunks of DefaultBatchSize texts, pausing
// DefaultBatchDelay between requests. Any chunk failure fails the call.
//
// Inputs longer than MaxSingleInputChars (or MaxBatchInputChars per batch
// item) are truncated. HTTP providers retry transport errors, 429 and 5xx
// responses with exponential backoff; other API errors surface as *APIError
// wrapped in ErrProviderFailed.
//
// Vectors are stored as the text literal "[a,b,...]" produced by
// FormatVector and read back with ParseVector.
package embedder
