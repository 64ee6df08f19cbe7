package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	DefaultJinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	DefaultOpenAIEndpoint = "https://api.openai.com/v1/embeddings"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hashed-bow"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 1536

	// Batch limits
	DefaultBatchSize = 20
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// APIError is a non-success response from an embedding API
type APIError struct {
	Provider   string
	Status     int
	Body       string
	RetryAfter time.Duration // From the Retry-After header, 0 when absent
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error %d: %s", e.Provider, e.Status, e.Body)
}

// Retryable reports whether the request may succeed if repeated
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// HTTPProvider implements Embedder against an OpenAI-style /embeddings endpoint.
// OpenAI and Jina share the wire format and differ only in defaults.
type HTTPProvider struct {
	name           string
	endpoint       string
	apiKey         string
	model          string
	dimension      int
	sendDimensions bool
	httpClient     *http.Client
	cache          *Cache
	retry          RetryConfig
}

// ProviderOption customises an HTTPProvider
type ProviderOption func(*HTTPProvider)

// WithEndpoint overrides the API URL
func WithEndpoint(url string) ProviderOption {
	return func(p *HTTPProvider) { p.endpoint = url }
}

// WithModel overrides the default model
func WithModel(model string) ProviderOption {
	return func(p *HTTPProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithDimension requests vectors of the given size
func WithDimension(dim int) ProviderOption {
	return func(p *HTTPProvider) {
		if dim > 0 {
			p.dimension = dim
		}
	}
}

// WithRetry overrides the retry policy
func WithRetry(cfg RetryConfig) ProviderOption {
	return func(p *HTTPProvider) { p.retry = cfg }
}

// NewOpenAIProvider creates an OpenAI embedder
func NewOpenAIProvider(apiKey string, cache *Cache, opts ...ProviderOption) (*HTTPProvider, error) {
	return newHTTPProvider(ProviderOpenAI, apiKey, EnvOpenAIAPIKey, cache, &HTTPProvider{
		endpoint:       DefaultOpenAIEndpoint,
		model:          DefaultOpenAIModel,
		dimension:      OpenAIDimension,
		sendDimensions: true,
	}, opts)
}

// NewJinaProvider creates a Jina AI embedder
func NewJinaProvider(apiKey string, cache *Cache, opts ...ProviderOption) (*HTTPProvider, error) {
	return newHTTPProvider(ProviderJina, apiKey, EnvJinaAPIKey, cache, &HTTPProvider{
		endpoint:       DefaultJinaEndpoint,
		model:          DefaultJinaModel,
		dimension:      JinaDimension,
		sendDimensions: true,
	}, opts)
}

func newHTTPProvider(name, apiKey, envKey string, cache *Cache, p *HTTPProvider, opts []ProviderOption) (*HTTPProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(envKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, envKey)
	}

	p.name = name
	p.apiKey = apiKey
	p.cache = cache
	p.httpClient = &http.Client{Timeout: 30 * time.Second}
	p.retry = DefaultRetryConfig()
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	text := truncate(req.Text, MaxSingleInputChars)
	model := p.modelFor(req.Model)

	if p.cache != nil {
		if emb, ok := p.cache.Get(model, ComputeHash(text)); ok {
			return emb, nil
		}
	}

	embeddings, err := p.embed(ctx, []string{text}, model)
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (p *HTTPProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	texts := make([]string, len(req.Texts))
	for i, t := range req.Texts {
		texts[i] = truncate(t, MaxBatchInputChars)
	}

	model := p.modelFor(req.Model)
	embeddings, err := p.embed(ctx, texts, model)
	if err != nil {
		return nil, err
	}
	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

func (p *HTTPProvider) modelFor(override string) string {
	if override != "" {
		return override
	}
	return p.model
}

// embed calls the API with retry and caches the results under model
func (p *HTTPProvider) embed(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	embeddings, err := retryWithBackoff(ctx, p.retry, func() ([]*Embedding, error) {
		return p.callAPI(ctx, texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(texts), len(embeddings))
	}

	for i, emb := range embeddings {
		if err := CheckVector(emb.Vector); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		emb.Hash = ComputeHash(texts[i])
		if p.cache != nil {
			p.cache.Set(model, emb)
		}
	}
	return embeddings, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}
	if p.sendDimensions {
		reqBody["dimensions"] = p.dimension
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			Provider:   p.name,
			Status:     resp.StatusCode,
			Body:       string(bodyBytes),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Results are matched to inputs by index, not response order
	sort.Slice(apiResp.Data, func(i, j int) bool { return apiResp.Data[i].Index < apiResp.Data[j].Index })

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     apiResp.Model,
		}
	}
	return embeddings, nil
}

func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

func (p *HTTPProvider) Provider() string {
	return p.name
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic hashed bag-of-words vectors.
// It needs no network and keeps texts that share words close in cosine
// space, which is enough for offline runs and tests.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a local embedder with the given dimension
// (LocalDimension when dim <= 0)
func NewLocalProvider(cache *Cache, dim int) (*LocalProvider, error) {
	if dim <= 0 {
		dim = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dim,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	text := truncate(req.Text, MaxSingleInputChars)

	hash := ComputeHash(text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(l.model, hash); ok {
			return emb, nil
		}
	}

	vector := make([]float32, l.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		idx := int(sum % uint32(l.dimension))
		if sum&(1<<31) != 0 {
			vector[idx]--
		} else {
			vector[idx]++
		}
	}

	emb := &Embedding{
		Vector:    NormalizeVector(vector),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}
	if l.cache != nil {
		l.cache.Set(l.model, emb)
	}
	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: truncate(text, MaxBatchInputChars), Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
