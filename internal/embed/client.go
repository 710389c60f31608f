package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const defaultMaxRetries = 3

// Client talks to an OpenAI-compatible /embeddings endpoint (OpenAI, Ollama,
// LocalAI, llama.cpp server). A batch request either yields one vector per
// input, in order, or fails as a whole; there are no partial results.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	maxRetries int
}

// ClientConfig configures the embeddings client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string // optional; local servers often need none
	Model      string
	Dimensions int // declared vector dimension; responses are validated against it
	Timeout    time.Duration
}

// NewClient creates an embeddings client. Dimensions must be positive: the
// index format is fixed-dimension and vectors from a different model or
// dimension are not comparable.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embeddings base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embeddings model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embeddings dimensions must be positive, got %d", cfg.Dimensions)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
		maxRetries: defaultMaxRetries,
	}, nil
}

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. On transport errors and retryable
// statuses (429, 5xx) the whole batch is retried with backoff; any other
// failure, or a malformed response, fails the whole batch.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embeddingsRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshal embeddings request: %w", err)
	}
	url := c.baseURL + "/embeddings"

	var lastErr error
	waited := false // previous attempt already slept on Retry-After
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && !waited {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}
		waited = false
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build embeddings request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("embeddings request failed: %s", resp.Status)
			// Respect Retry-After if provided; it replaces the next
			// attempt's backoff, the two never stack.
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil {
					_ = resp.Body.Close()
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(time.Duration(secs) * time.Second):
					}
					waited = true
					continue
				}
			}
			_ = resp.Body.Close()
			continue
		}
		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("embeddings request failed: %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		vecs, err := c.decodeBatch(payload, len(texts))
		if err != nil {
			return nil, err
		}
		return vecs, nil
	}
	return nil, fmt.Errorf("embeddings request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// decodeBatch validates the response carries exactly one vector per input,
// each of the declared dimension, ordered by the service's index field.
func (c *Client) decodeBatch(payload []byte, want int) ([][]float32, error) {
	var out embeddingsResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(out.Data) != want {
		return nil, fmt.Errorf("embeddings response has %d vectors, want %d", len(out.Data), want)
	}
	vecs := make([][]float32, want)
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= want {
			return nil, fmt.Errorf("embeddings response index %d out of range", d.Index)
		}
		if len(d.Embedding) != c.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(d.Embedding), c.dimensions)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("embeddings response missing vector for index %d", i)
		}
	}
	return vecs, nil
}

// Dimensions returns the declared embedding dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op; the underlying http.Client needs no teardown.
func (c *Client) Close() error {
	return nil
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
