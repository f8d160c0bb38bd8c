package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"txtvec/internal/domain"
	"txtvec/internal/port"
)

// OpenAIConfig configures an embedder for any server speaking the OpenAI
// embeddings API (OpenAI itself, text-embeddings-inference, Ollama, ...).
type OpenAIConfig struct {
	APIKeyEnv     string
	Model         string
	BaseURL       string // empty for https://api.openai.com/v1
	Dimension     int    // 0 accepts whatever the server returns
	QueryPrefix   string
	PassagePrefix string
	Normalize     bool
	Timeout       time.Duration // per request, 0 for none
	HTTPClient    *http.Client
}

type OpenAIEmbedder struct {
	client        *openai.Client
	model         string
	dimension     int
	queryPrefix   string
	passagePrefix string
	normalize     bool
	timeout       time.Duration
}

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, &domain.ConfigError{Field: "embedding.model", Reason: "must be set"}
	}

	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		if cfg.BaseURL == "" {
			return nil, &domain.ConfigError{
				Field:  "embedding.api_key_env",
				Reason: fmt.Sprintf("API key not found in environment variable: %s", cfg.APIKeyEnv),
			}
		}
		// Self-hosted servers usually ignore the key.
		apiKey = "none"
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIEmbedder{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         cfg.Model,
		dimension:     cfg.Dimension,
		queryPrefix:   cfg.QueryPrefix,
		passagePrefix: cfg.PassagePrefix,
		normalize:     cfg.Normalize,
		timeout:       cfg.Timeout,
	}, nil
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{e.queryPrefix + text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = e.passagePrefix + t
	}
	return e.embed(ctx, inputs)
}

func (e *OpenAIEmbedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.EmbeddingError{Reason: fmt.Sprintf("request timed out after %s", e.timeout), Err: err}
		}
		return nil, &domain.EmbeddingError{Reason: "request failed", Err: err}
	}

	if len(resp.Data) != len(inputs) {
		return nil, &domain.EmbeddingError{
			Reason: fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(resp.Data)),
		}
	}

	vectors := make([][]float32, len(inputs))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(vectors) || vectors[data.Index] != nil {
			return nil, &domain.EmbeddingError{Reason: fmt.Sprintf("unexpected embedding index %d", data.Index)}
		}
		v := make([]float32, len(data.Embedding))
		for i, x := range data.Embedding {
			v[i] = float32(x)
		}
		if e.dimension > 0 && len(v) != e.dimension {
			return nil, &domain.EmbeddingError{
				Reason: "model returned wrong dimension",
				Err:    &domain.DimensionMismatchError{Want: e.dimension, Got: len(v)},
			}
		}
		if e.normalize {
			l2normalize(v)
		}
		vectors[data.Index] = v
	}

	return vectors, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// l2normalize scales v to unit length in place. A zero vector is left as is.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

var _ port.Embedder = (*OpenAIEmbedder)(nil)
