// Package cohere embeds statement lines and catalog works with the Cohere
// Embed v2 API for the semantic matching stage.
package cohere

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"royalties/internal/services"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "embed-english-v3.0"
	// maxBatch is the per-request text limit of the Embed endpoint.
	maxBatch       = 96
	defaultTimeout = 30 * time.Second
)

// Config holds the embedder settings.
type Config struct {
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// Embedder produces float vectors for text.
type Embedder struct {
	client *cohereclient.Client
	model  string
}

// Option customizes the embedder.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the HTTP client handed to the SDK.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// New constructs an embedder. A missing API key is a configuration error.
func New(cfg Config, opts ...Option) (*Embedder, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, services.Wrap(services.ErrConfiguration, "embeddings", "init", "cohere api key not set", nil)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" || !strings.HasPrefix(model, "embed-") {
		model = DefaultModel
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	o := options{httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(&o)
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(key),
		cohereclient.WithHTTPClient(o.httpClient),
	)
	return &Embedder{client: client, model: model}, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// EmbedQuery embeds a single statement line for nearest-neighbour search.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("cohere embed: empty query")
	}
	vectors, err := e.embed(ctx, []string{text}, cohere.EmbedInputTypeSearchQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds catalog texts, batching requests as needed.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		vectors, err := e.embed(ctx, texts[start:end], cohere.EmbedInputTypeSearchDocument)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) embed(ctx context.Context, texts []string, inputType cohere.EmbedInputType) ([][]float32, error) {
	resp, err := e.client.V2.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          texts,
		Model:          e.model,
		InputType:      inputType,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "embeddings", "cohere embed", "", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, services.Wrap(services.ErrTransient, "embeddings", "cohere embed", "response carried no float embeddings", nil)
	}
	if len(resp.Embeddings.Float) != len(texts) {
		return nil, services.Wrap(services.ErrTransient, "embeddings", "cohere embed",
			fmt.Sprintf("expected %d vectors, got %d", len(texts), len(resp.Embeddings.Float)), nil)
	}
	out := make([][]float32, len(resp.Embeddings.Float))
	for i, vec := range resp.Embeddings.Float {
		converted := make([]float32, len(vec))
		for j, v := range vec {
			converted[j] = float32(v)
		}
		out[i] = converted
	}
	return out, nil
}
