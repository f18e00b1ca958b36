package repo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fleetstack/fleet-sentinel/internal/cache"
)

// EmbedderClient calls the external embedding capability. Vectors for
// identical text are immutable, so they are cached in the byte-cache provider
// and reused across regenerations.
type EmbedderClient struct {
	baseURL    string
	embedPath  string
	httpClient *http.Client
	cache      cache.Provider
	vectorTTL  time.Duration
}

// NewEmbedderClient constructs an embedder client.
func NewEmbedderClient(baseURL, embedPath string, timeout time.Duration, cacheProvider cache.Provider, vectorTTL time.Duration) *EmbedderClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if vectorTTL < 0 {
		vectorTTL = 0
	}
	return &EmbedderClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedPath:  embedPath,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		vectorTTL:  vectorTTL,
	}
}

// Embed returns the embedding vector for the text, from cache when possible.
func (c *EmbedderClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c == nil {
		return nil, fmt.Errorf("embedder client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("embedder base URL not configured")
	}

	cacheKey := ""
	if c.vectorTTL > 0 {
		cacheKey = embeddingCacheKey(text)
		if data, err := c.cache.Get(ctx, cacheKey); err == nil {
			var cached []float32
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	body, err := json.Marshal(map[string]string{"input": text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.embedPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder returned %s", resp.Status)
	}

	var response struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("embedder returned empty vector")
	}

	if c.vectorTTL > 0 && cacheKey != "" {
		if payload, err := json.Marshal(response.Embedding); err == nil {
			_ = c.cache.Set(ctx, cacheKey, payload, c.vectorTTL)
		}
	}

	return response.Embedding, nil
}

func embeddingCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embed:" + hex.EncodeToString(sum[:])
}
